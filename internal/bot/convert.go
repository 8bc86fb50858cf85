package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sentrabot/sentra/internal/engine/event"
)

// messageContent converts a gateway message into the engine's content shape.
// Referenced messages and forwarded snapshots are carried along so filters can
// scan quoted text the author did not type themselves.
func messageContent(m discord.Message, guildID, parentChannelID snowflake.ID) *event.Content {
	c := &event.Content{
		MessageID:       m.ID,
		CommunityID:     guildID,
		ChannelID:       m.ChannelID,
		ParentChannelID: parentChannelID,
		AuthorID:        m.Author.ID,
		Timestamp:       m.ID.Time(),
		Body:            m.Content,
		IsReply:         m.Type == discord.MessageTypeReply,
		Embeds:          convertEmbeds(m.Embeds),
		Attachments:     convertAttachments(m.Attachments),
	}

	if m.Member != nil {
		c.AuthorRoles = m.Member.RoleIDs
	}

	if m.ReferencedMessage != nil {
		c.Referenced = messageContent(*m.ReferencedMessage, guildID, 0)
	}

	for _, snapshot := range m.MessageSnapshots {
		c.Forwarded = append(c.Forwarded, snapshotContent(snapshot, guildID))
	}

	return c
}

// snapshotContent converts one forwarded-message snapshot. Snapshots are
// partial messages: no author, no ID, just the content that was forwarded.
func snapshotContent(snapshot discord.MessageSnapshot, guildID snowflake.ID) *event.Content {
	m := snapshot.Message
	return &event.Content{
		CommunityID: guildID,
		Body:        m.Content,
		Embeds:      convertEmbeds(m.Embeds),
		Attachments: convertAttachments(m.Attachments),
	}
}

func convertEmbeds(embeds []discord.Embed) []event.Embed {
	if len(embeds) == 0 {
		return nil
	}

	converted := make([]event.Embed, 0, len(embeds))
	for _, e := range embeds {
		embed := event.Embed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, event.EmbedField{
				Name:  f.Name,
				Value: f.Value,
			})
		}
		if e.Author != nil {
			embed.AuthorName = e.Author.Name
			embed.AuthorURL = e.Author.URL
		}
		converted = append(converted, embed)
	}
	return converted
}

func convertAttachments(attachments []discord.Attachment) []event.Attachment {
	if len(attachments) == 0 {
		return nil
	}

	converted := make([]event.Attachment, 0, len(attachments))
	for _, a := range attachments {
		converted = append(converted, event.Attachment{
			URL:      a.URL,
			ProxyURL: a.ProxyURL,
		})
	}
	return converted
}

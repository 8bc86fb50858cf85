// Package event defines the platform-neutral content event the engine
// evaluates. The bot layer converts gateway messages into this shape; nothing
// in the engine touches platform types directly.
package event

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/sentrabot/sentra/internal/utils"
)

// Embed carries the scannable parts of a rich embed.
// Thumbnail, image and video URLs are platform CDN links and deliberately
// excluded: they false-positive against link rules.
type Embed struct {
	Title       string
	Description string
	URL         string
	Fields      []EmbedField
	AuthorName  string
	AuthorURL   string
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name  string
	Value string
}

// Attachment references an uploaded file by URL.
type Attachment struct {
	URL      string
	ProxyURL string
}

// Content is one inspectable unit of user-submitted content (a message or an
// edit) plus the metadata rules evaluate against. It is transient and never
// persisted.
type Content struct {
	MessageID   snowflake.ID
	CommunityID snowflake.ID
	ChannelID   snowflake.ID
	// ParentChannelID is the containing channel when the message was posted
	// in a thread, zero otherwise.
	ParentChannelID snowflake.ID
	AuthorID        snowflake.ID
	AuthorRoles []snowflake.ID
	Timestamp   time.Time

	Body          string
	SystemContent string
	IsReply       bool

	Embeds      []Embed
	Attachments []Attachment

	// Referenced is the replied-to or quoted message, when resolvable.
	Referenced *Content
	// Forwarded holds forwarded-message snapshots.
	Forwarded []*Content

	tokens []string
}

// Tokens returns the lower-cased word tokens of the body, computed once and
// cached. Safe because evaluation for one (community, author) key is
// serialized by the engine.
func (c *Content) Tokens() []string {
	if c.tokens == nil {
		c.tokens = utils.Tokenize(c.Body)
	}
	return c.tokens
}

// InChannel reports whether the event's channel, or the parent channel of
// the thread it was posted in, is in set.
func (c *Content) InChannel(set map[snowflake.ID]struct{}) bool {
	if _, ok := set[c.ChannelID]; ok {
		return true
	}
	if c.ParentChannelID != 0 {
		_, ok := set[c.ParentChannelID]
		return ok
	}
	return false
}

// HasRole reports whether the author carries the given role.
func (c *Content) HasRole(role snowflake.ID) bool {
	for _, r := range c.AuthorRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the author carries at least one role in set.
func (c *Content) HasAnyRole(set map[snowflake.ID]struct{}) bool {
	for _, r := range c.AuthorRoles {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

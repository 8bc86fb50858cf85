// Package extract flattens a content event into the ordered list of text
// fragments that pattern rules scan. The policy is deliberate: scan
// everything reachable from the event, favoring false positives over evasion
// through embeds, attachments or quoted content.
package extract

import (
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"github.com/sentrabot/sentra/internal/engine/event"
)

// Blocks returns every non-empty scannable fragment of the event in a stable
// order: body, distinct system text, embed text, attachment URLs, then the
// same extraction applied recursively to referenced and forwarded content.
// A visited set guards against circular references.
func Blocks(c *event.Content) []string {
	seen := make(map[snowflake.ID]struct{})
	return collect(c, seen)
}

func collect(c *event.Content, seen map[snowflake.ID]struct{}) []string {
	if c == nil {
		return nil
	}
	if c.MessageID != 0 {
		if _, ok := seen[c.MessageID]; ok {
			return nil
		}
		seen[c.MessageID] = struct{}{}
	}

	var blocks []string
	add := func(s string) {
		if strings.TrimSpace(s) != "" {
			blocks = append(blocks, s)
		}
	}

	add(c.Body)
	if c.SystemContent != c.Body {
		add(c.SystemContent)
	}

	for _, embed := range c.Embeds {
		add(embed.Title)
		add(embed.Description)
		add(embed.URL)
		for _, field := range embed.Fields {
			add(field.Name)
			add(field.Value)
		}
		add(embed.AuthorName)
		add(embed.AuthorURL)
	}

	for _, att := range c.Attachments {
		add(att.URL)
		if att.ProxyURL != att.URL {
			add(att.ProxyURL)
		}
	}

	blocks = append(blocks, collect(c.Referenced, seen)...)
	for _, fwd := range c.Forwarded {
		blocks = append(blocks, collect(fwd, seen)...)
	}

	return blocks
}

package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/dedup"
	"github.com/deusflow/hotpush/internal/pipeline"
)

// maxMessageBytes stays under Telegram's 4096 character limit.
const maxMessageBytes = 4000

// Escaped field caps. A rendered item or topic header always fits in one
// message, so markup is never split.
const (
	maxTitleBytes   = 1500
	maxURLBytes     = 1500
	maxSourceBytes  = 200
	maxTopicBytes   = 200
	maxSummaryBytes = 1500
)

// FormatDigest renders a delivery as HTML messages, each below the Telegram
// size limit. Blocks are never split across messages unless a single block
// is too long on its own.
func FormatDigest(d pipeline.Delivery) []string {
	byTitle := make(map[string]content.Item, len(d.Items))
	for _, it := range d.Items {
		if _, ok := byTitle[it.Title]; !ok {
			byTitle[it.Title] = it
		}
	}

	topics := d.Topics
	if len(topics) == 0 {
		topics = content.TopicsBySource(d.Items)
	}

	var blocks []string
	blocks = append(blocks, fmt.Sprintf("🔥 <b>Trending now</b> · %d new\n━━━━━━━━━━━━━━━━━━━━", len(d.Items)))

	n := 1
	for _, t := range topics {
		var b strings.Builder
		fmt.Fprintf(&b, "\n📂 <b>%s</b>", escape(t.Name, maxTopicBytes))
		if t.Summary != "" {
			fmt.Fprintf(&b, "\n<i>%s</i>", escape(t.Summary, maxSummaryBytes))
		}
		blocks = append(blocks, b.String())

		for _, title := range t.Titles {
			blocks = append(blocks, formatItem(n, byTitle[title], title))
			n++
		}
	}

	if d.Stats != nil && d.Stats.TotalDuplicates > 0 {
		blocks = append(blocks, "\n"+html.EscapeString(dedup.Summary(*d.Stats)))
	}
	return pack(blocks, maxMessageBytes)
}

func formatItem(n int, it content.Item, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. ", n)
	// A cut URL would point somewhere else, so an oversized one is dropped.
	if href := html.EscapeString(it.URL); href != "" && len(href) <= maxURLBytes {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, href, escape(title, maxTitleBytes))
	} else {
		b.WriteString(escape(title, maxTitleBytes))
	}
	if it.Source != "" {
		fmt.Fprintf(&b, " <i>[%s]</i>", escape(it.Source, maxSourceBytes))
	}
	if len(it.Ranks) > 0 {
		fmt.Fprintf(&b, " #%d", it.Ranks[0])
	}
	return b.String()
}

// pack joins blocks with newlines into messages of at most limit bytes.
func pack(blocks []string, limit int) []string {
	var msgs []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			msgs = append(msgs, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	for _, block := range blocks {
		for _, piece := range splitBlock(block, limit) {
			if cur.Len() > 0 && cur.Len()+1+len(piece) > limit {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte('\n')
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return msgs
}

// escape HTML-escapes s and truncates the result to at most max bytes,
// ending it with an ellipsis when something was cut. Entities stay whole.
func escape(s string, max int) string {
	escaped := html.EscapeString(s)
	if len(escaped) <= max {
		return escaped
	}
	const ellipsis = "…"
	var b strings.Builder
	for _, r := range s {
		piece := html.EscapeString(string(r))
		if b.Len()+len(piece)+len(ellipsis) > max {
			break
		}
		b.WriteString(piece)
	}
	b.WriteString(ellipsis)
	return b.String()
}

// splitBlock cuts an oversized block on rune boundaries. Tags and entities
// are kept whole.
func splitBlock(block string, limit int) []string {
	if len(block) <= limit {
		return []string{block}
	}
	var out []string
	var cur strings.Builder
	for _, tok := range tokens(block) {
		if cur.Len() > 0 && cur.Len()+len(tok) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(tok)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// tokens breaks s into tags, entities and single runes.
func tokens(s string) []string {
	var out []string
	for i := 0; i < len(s); {
		end := -1
		switch s[i] {
		case '<':
			end = strings.IndexByte(s[i:], '>')
		case '&':
			end = strings.IndexByte(s[i:], ';')
			if end > 10 {
				end = -1
			}
		}
		if end > 0 {
			out = append(out, s[i:i+end+1])
			i += end + 1
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		out = append(out, s[i:i+size])
		i += size
	}
	return out
}

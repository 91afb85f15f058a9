package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/dedup"
)

// WriterNotifier prints the digest as plain text. It is the notifier used
// when no chat credentials are configured.
type WriterNotifier struct {
	W io.Writer
}

func (n WriterNotifier) Notify(_ context.Context, d Delivery) error {
	_, err := io.WriteString(n.W, FormatText(d))
	return err
}

// FormatText renders a delivery grouped by topic, with links, followed by the
// duplicate summary when stats are attached.
func FormatText(d Delivery) string {
	urls := make(map[string]content.Item, len(d.Items))
	for _, it := range d.Items {
		if _, ok := urls[it.Title]; !ok {
			urls[it.Title] = it
		}
	}

	topics := d.Topics
	if len(topics) == 0 {
		topics = content.TopicsBySource(d.Items)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d new items\n", len(d.Items))
	for _, t := range topics {
		fmt.Fprintf(&b, "\n## %s\n", t.Name)
		if t.Summary != "" {
			fmt.Fprintf(&b, "%s\n", t.Summary)
		}
		for i, title := range t.Titles {
			it := urls[title]
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, it.Source, title)
			if it.URL != "" {
				fmt.Fprintf(&b, " %s", it.URL)
			}
			b.WriteString("\n")
		}
	}
	if d.Stats != nil {
		b.WriteString("\n")
		b.WriteString(dedup.Summary(*d.Stats))
		b.WriteString("\n")
	}
	return b.String()
}

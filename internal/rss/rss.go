package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/hotpush/internal/content"
)

const observedLayout = "2006-01-02 15:04:05"

// Source turns an RSS or Atom feed into trending items. Feed order is taken
// as the rank.
type Source struct {
	id     string
	url    string
	limit  int
	parser *gofeed.Parser
	now    func() time.Time
	logger *slog.Logger
}

// New builds a feed source. limit <= 0 keeps every entry.
func New(id, url string, limit int, client *http.Client, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	return &Source{
		id:     id,
		url:    url,
		limit:  limit,
		parser: parser,
		now:    time.Now,
		logger: logger.With("component", "rss", "source", id),
	}
}

func (s *Source) Name() string { return s.id }

// Fetch downloads and parses the feed.
func (s *Source) Fetch(ctx context.Context) ([]content.Item, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", s.url, err)
	}

	observed := s.now().Format(observedLayout)
	items := make([]content.Item, 0, len(feed.Items))
	for i, fi := range feed.Items {
		if s.limit > 0 && len(items) >= s.limit {
			break
		}
		title := strings.Join(strings.Fields(fi.Title), " ")
		if title == "" {
			continue
		}
		it := content.Item{
			Title:     title,
			Source:    s.id,
			URL:       fi.Link,
			Ranks:     []int{i + 1},
			FirstTime: observed,
			LastTime:  observed,
		}
		if fi.PublishedParsed != nil {
			it.Extra = map[string]any{"published": fi.PublishedParsed.Format(time.RFC3339)}
		}
		items = append(items, it)
	}

	s.logger.Debug("feed loaded", "entries", len(feed.Items), "kept", len(items))
	return items, nil
}

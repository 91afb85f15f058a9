package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/hotpush/internal/content"
)

const userAgent = "hotpush/1.0 (+https://github.com/deusflow/hotpush)"

// Options selects the hot-list entries on a page.
type Options struct {
	// ItemSelector matches one element per entry.
	ItemSelector string
	// TitleSelector is evaluated inside each entry. Empty uses the entry text.
	TitleSelector string
	Limit         int
}

// Source reads a ranked list from an HTML page.
type Source struct {
	id     string
	page   string
	opts   Options
	client *http.Client
	now    func() time.Time
	logger *slog.Logger
}

func New(id, page string, opts Options, client *http.Client, logger *slog.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		id:     id,
		page:   page,
		opts:   opts,
		client: client,
		now:    time.Now,
		logger: logger.With("component", "scraper", "source", id),
	}
}

func (s *Source) Name() string { return s.id }

// Fetch downloads the page and extracts the entries in document order.
func (s *Source) Fetch(ctx context.Context) ([]content.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.page, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	base, _ := url.Parse(s.page)
	return s.extract(doc, base), nil
}

func (s *Source) extract(doc *goquery.Document, base *url.URL) []content.Item {
	observed := s.now().Format("2006-01-02 15:04:05")
	var items []content.Item

	doc.Find(s.opts.ItemSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if s.opts.Limit > 0 && len(items) >= s.opts.Limit {
			return false
		}

		titleSel := sel
		if s.opts.TitleSelector != "" {
			titleSel = sel.Find(s.opts.TitleSelector).First()
		}
		title := cleanText(titleSel.Text())
		if title == "" {
			return true
		}

		items = append(items, content.Item{
			Title:     title,
			Source:    s.id,
			URL:       resolveLink(sel, base),
			Ranks:     []int{i + 1},
			FirstTime: observed,
			LastTime:  observed,
		})
		return true
	})

	s.logger.Debug("hot list extracted", "items", len(items))
	return items
}

// resolveLink returns the entry's own href, or that of its first link,
// made absolute against base.
func resolveLink(sel *goquery.Selection, base *url.URL) string {
	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Find("a[href]").First().Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

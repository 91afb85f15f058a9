// Package categorize groups digest items into topics with a language model.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/hotpush/internal/cache"
	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/ratelimit"
)

const (
	cacheTTL      = 6 * time.Hour
	otherTopic    = "Other"
	maxPromptRows = 200
)

// Generator turns a prompt into a model response.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Categorizer asks a Generator for topics, within a request budget.
type Categorizer struct {
	gen    Generator
	budget *ratelimit.Budget
	cache  *cache.Cache[[]content.Topic]
	logger *slog.Logger
}

// New builds a Categorizer. budget may be nil for no limit.
func New(gen Generator, budget *ratelimit.Budget, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{
		gen:    gen,
		budget: budget,
		cache:  cache.New[[]content.Topic](time.Hour),
		logger: logger.With("component", "categorize"),
	}
}

// Close stops the cache janitor.
func (c *Categorizer) Close() {
	c.cache.Close()
}

// Categorize asks the model for topics. Results are cached per title set.
func (c *Categorizer) Categorize(ctx context.Context, items content.Batch) ([]content.Topic, error) {
	if len(items) == 0 {
		return nil, nil
	}

	parts := make([]string, 0, len(items)*2)
	for _, it := range items {
		parts = append(parts, it.Source, it.Title)
	}
	key := cache.Key(parts...)
	if topics, ok := c.cache.Get(key); ok {
		if c.budget != nil {
			c.budget.RecordCacheHit()
		}
		c.logger.Debug("categorization served from cache", "items", len(items))
		return topics, nil
	}

	if c.budget != nil {
		if err := c.budget.Use(); err != nil {
			return nil, err
		}
	}

	raw, err := c.gen.Generate(ctx, buildPrompt(items))
	if err != nil {
		return nil, err
	}
	topics, err := parseTopics(raw, items)
	if err != nil {
		c.logger.Warn("could not parse categorization", "error", err)
		return nil, err
	}

	c.cache.Set(key, topics, cacheTTL)
	c.logger.Info("items categorized", "items", len(items), "topics", len(topics))
	return topics, nil
}

func buildPrompt(items content.Batch) string {
	var b strings.Builder
	b.WriteString("Group the following trending headlines into topics (for example tech, finance, society).\n\n")
	for i, it := range items {
		if i == maxPromptRows {
			break
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, it.Source, it.Title)
	}
	b.WriteString(`
Return JSON only, in this shape:
{"categories": [{"name": "topic name", "items": [1, 2], "description": "one short sentence"}]}

Rules:
- every headline number appears in at most one category
- 2 to 8 headlines per category where possible
- keep the headline language for names and descriptions
`)
	return b.String()
}

type response struct {
	Categories []struct {
		Name        string `json:"name"`
		Items       []int  `json:"items"`
		Description string `json:"description"`
	} `json:"categories"`
}

// parseTopics maps the 1-based indices in raw back to item titles. Items the
// model left out are collected under "Other".
func parseTopics(raw string, items content.Batch) ([]content.Topic, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var resp response
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return nil, fmt.Errorf("decoding categories: %w", err)
	}

	used := make([]bool, len(items))
	var topics []content.Topic
	for _, cat := range resp.Categories {
		t := content.Topic{Name: strings.TrimSpace(cat.Name), Summary: strings.TrimSpace(cat.Description)}
		if t.Name == "" {
			continue
		}
		for _, idx := range cat.Items {
			i := idx - 1
			if i < 0 || i >= len(items) || used[i] {
				continue
			}
			used[i] = true
			t.Titles = append(t.Titles, items[i].Title)
		}
		if len(t.Titles) > 0 {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no usable categories in response")
	}

	rest := content.Topic{Name: otherTopic}
	for i, it := range items {
		if !used[i] {
			rest.Titles = append(rest.Titles, it.Title)
		}
	}
	if len(rest.Titles) > 0 {
		topics = append(topics, rest)
	}
	return topics, nil
}

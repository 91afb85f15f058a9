// Package translate rewrites the headlines of selected sources into another
// language for display. Callers keep the original items for hashing and
// history so translation never changes what counts as already pushed.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/hotpush/internal/cache"
	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/ratelimit"
)

const cacheTTL = 24 * time.Hour

var errNoModel = errors.New("no translation model configured")

// Generator turns a prompt into a model response.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	Sources  []string // source ids to translate
	Language string   // target language name, e.g. "Chinese"
}

// Translator translates titles with a model and falls back to a word
// dictionary when the model is missing, over budget or failing.
type Translator struct {
	sources  map[string]bool
	language string
	dict     *dictionary
	gen      Generator
	budget   *ratelimit.Budget
	cache    *cache.Cache[string]
	logger   *slog.Logger
}

// New builds a Translator. gen and budget may be nil.
func New(opts Options, gen Generator, budget *ratelimit.Budget, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	sources := make(map[string]bool, len(opts.Sources))
	for _, s := range opts.Sources {
		sources[s] = true
	}
	return &Translator{
		sources:  sources,
		language: opts.Language,
		dict:     dictionaryFor(opts.Language),
		gen:      gen,
		budget:   budget,
		cache:    cache.New[string](time.Hour),
		logger:   logger.With("component", "translate"),
	}
}

// Close stops the cache janitor.
func (t *Translator) Close() {
	t.cache.Close()
}

// Translate returns a copy of items where the titles of the configured
// sources are translated. items itself is left untouched.
func (t *Translator) Translate(ctx context.Context, items content.Batch) content.Batch {
	out := make(content.Batch, len(items))
	copy(out, items)
	if len(t.sources) == 0 {
		return out
	}

	var idx []int
	var pending []string
	for i, it := range out {
		if !t.sources[it.Source] || strings.TrimSpace(it.Title) == "" {
			continue
		}
		if tr, ok := t.cache.Get(cache.Key(t.language, it.Title)); ok {
			if t.budget != nil {
				t.budget.RecordCacheHit()
			}
			out[i].Title = tr
			continue
		}
		idx = append(idx, i)
		pending = append(pending, it.Title)
	}
	if len(pending) == 0 {
		return out
	}

	translated, err := t.model(ctx, pending)
	if err != nil {
		if !errors.Is(err, errNoModel) {
			t.logger.Warn("model translation failed, using dictionary", "error", err)
		}
		for _, i := range idx {
			out[i].Title = t.dict.translate(out[i].Title)
		}
		return out
	}

	for k, i := range idx {
		t.cache.Set(cache.Key(t.language, out[i].Title), translated[k], cacheTTL)
		out[i].Title = translated[k]
	}
	t.logger.Info("titles translated", "items", len(idx), "language", t.language)
	return out
}

func (t *Translator) model(ctx context.Context, titles []string) ([]string, error) {
	if t.gen == nil {
		return nil, errNoModel
	}
	if t.budget != nil {
		if err := t.budget.Use(); err != nil {
			return nil, err
		}
	}
	raw, err := t.gen.Generate(ctx, buildPrompt(t.language, titles))
	if err != nil {
		return nil, err
	}
	return parseTitles(raw, titles)
}

func buildPrompt(language string, titles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate each headline below into %s. Keep product, company and project names as they are.\n\n", language)
	for i, title := range titles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
	}
	fmt.Fprintf(&b, "\nReturn JSON only, in this shape, with exactly %d titles in the same order:\n", len(titles))
	b.WriteString(`{"titles": ["translated headline 1", "translated headline 2"]}` + "\n")
	return b.String()
}

// parseTitles reads the model answer. An empty translation keeps the
// original title.
func parseTitles(raw string, originals []string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var resp struct {
		Titles []string `json:"titles"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return nil, fmt.Errorf("decoding translation: %w", err)
	}
	if len(resp.Titles) != len(originals) {
		return nil, fmt.Errorf("model returned %d titles for %d headlines", len(resp.Titles), len(originals))
	}

	out := make([]string, len(originals))
	for i, title := range resp.Titles {
		if title = strings.TrimSpace(title); title == "" {
			title = originals[i]
		}
		out[i] = title
	}
	return out, nil
}

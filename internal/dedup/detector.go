// Package dedup classifies the items of one poll batch as unique or as exact
// or near duplicates of items already accepted from the same batch.
package dedup

import (
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/fingerprint"
)

// DefaultSimilarityThreshold is the Jaccard score at which two titles are
// considered the same story.
const DefaultSimilarityThreshold = 0.8

// MatchTier names the stage of the cascade that decided a classification.
type MatchTier int

const (
	TierNone MatchTier = iota
	TierExactHash
	TierNormalizedTitle
	TierSimilarity
)

func (t MatchTier) String() string {
	switch t {
	case TierExactHash:
		return "exact_hash"
	case TierNormalizedTitle:
		return "normalized_title"
	case TierSimilarity:
		return "similarity"
	default:
		return "none"
	}
}

// MarshalText lets tiers appear by name in JSON reports.
func (t MatchTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Options tune the similarity tier.
type Options struct {
	SimilarityEnabled   bool
	SimilarityThreshold float64
	// SimilarityMaxBatch turns the similarity tier off in Filter for batches
	// larger than this. Zero means no limit.
	SimilarityMaxBatch int
}

// DefaultOptions enables all three tiers with the default threshold.
func DefaultOptions() Options {
	return Options{
		SimilarityEnabled:   true,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Result is the outcome of one classification.
type Result struct {
	Unique bool
	Tier   MatchTier
	Record *Record
}

type origin struct {
	title      string
	source     string
	normalized string
}

// Detector holds the seen sets for one poll batch. Use one per cycle.
type Detector struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	byHash   map[string]origin
	byTitle  map[string]origin
	accepted []origin
	stats    Stats
}

// New creates a detector. A non-positive threshold falls back to the default.
func New(opts Options, logger *slog.Logger) *Detector {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		opts:   opts,
		logger: logger.With("component", "dedup"),
		now:    time.Now,
	}
	d.resetLocked()
	return d
}

// Classify decides whether item is unique within the batch seen so far and
// records the decision in the statistics.
func (d *Detector) Classify(item content.Item) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifyLocked(item, d.opts.SimilarityEnabled)
}

// Filter classifies every item in order and returns the unique ones.
func (d *Detector) Filter(batch content.Batch) content.Batch {
	d.mu.Lock()
	defer d.mu.Unlock()

	similarity := d.opts.SimilarityEnabled
	if similarity && d.opts.SimilarityMaxBatch > 0 && len(batch) > d.opts.SimilarityMaxBatch {
		d.logger.Info("similarity tier disabled for large batch",
			"batch_size", len(batch), "max_batch", d.opts.SimilarityMaxBatch)
		similarity = false
	}

	var out content.Batch
	for _, it := range batch {
		if res := d.classifyLocked(it, similarity); res.Unique {
			out = append(out, it)
		}
	}
	d.logger.Info("batch deduplicated",
		"input", len(batch), "unique", len(out), "duplicates", len(batch)-len(out))
	return out
}

// Stats returns a deep copy of the current statistics.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.clone()
}

// Reset forgets everything seen and zeroes the statistics.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Detector) resetLocked() {
	d.byHash = make(map[string]origin)
	d.byTitle = make(map[string]origin)
	d.accepted = nil
	d.stats = newStats()
}

func (d *Detector) classifyLocked(item content.Item, similarity bool) Result {
	d.stats.TotalProcessed++

	fp := fingerprint.Of(item.Title, item.Source)
	res := d.match(item, fp, similarity)
	if !res.Unique {
		d.recordDuplicate(*res.Record)
		return res
	}

	o := origin{title: item.Title, source: item.Source, normalized: fp.Normalized}
	d.byHash[fp.Hash] = o
	d.byTitle[fp.Normalized] = o
	d.accepted = append(d.accepted, o)
	d.stats.UniqueContent++

	d.logger.Debug("new content", "source", item.Source, "title", item.Title)
	return res
}

func (d *Detector) match(item content.Item, fp fingerprint.Fingerprint, similarity bool) Result {
	if o, ok := d.byHash[fp.Hash]; ok {
		return d.duplicate(item, o, TierExactHash, 1.0)
	}
	if o, ok := d.byTitle[fp.Normalized]; ok {
		return d.duplicate(item, o, TierNormalizedTitle, 1.0)
	}
	if similarity {
		for _, o := range d.accepted {
			score := fingerprint.CharSetSimilarity(fp.Normalized, o.normalized)
			if score >= d.opts.SimilarityThreshold {
				return d.duplicate(item, o, TierSimilarity, score)
			}
		}
	}
	return Result{Unique: true, Tier: TierNone}
}

func (d *Detector) duplicate(item content.Item, o origin, tier MatchTier, score float64) Result {
	return Result{
		Tier: tier,
		Record: &Record{
			OriginalTitle:   o.title,
			OriginalSource:  o.source,
			DuplicateTitle:  item.Title,
			DuplicateSource: item.Source,
			SimilarityScore: score,
			HashMatch:       tier == TierExactHash,
			Tier:            tier,
			DetectedAt:      d.now(),
		},
	}
}

func (d *Detector) recordDuplicate(r Record) {
	s := &d.stats
	s.TotalDuplicates++
	if r.OriginalSource == r.DuplicateSource {
		s.PlatformDuplicates[r.OriginalSource]++
	} else {
		s.CrossPlatformDuplicates++
	}
	if r.HashMatch {
		s.HashBasedDuplicates++
	} else {
		s.SimilarityBasedDuplicates++
	}
	s.Records = append(s.Records, r)

	d.logger.Info("duplicate content",
		"original_source", r.OriginalSource,
		"original_title", r.OriginalTitle,
		"duplicate_source", r.DuplicateSource,
		"duplicate_title", r.DuplicateTitle,
		"similarity", r.SimilarityScore,
		"hash_match", r.HashMatch,
		"tier", r.Tier.String(),
	)
}

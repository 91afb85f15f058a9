// Package fingerprint derives identity keys for trending titles.
//
// Two schemes coexist and must not be mixed: ContentHash keys the in-batch
// duplicate detector on the normalized title, HistoryHash keys the push
// history on the raw (source, title, url) triple.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"
)

// Fingerprint is the pair of keys the detector matches on.
type Fingerprint struct {
	Hash       string
	Normalized string
}

// Of computes the fingerprint of a title observed on source.
func Of(title, source string) Fingerprint {
	n := Normalize(title)
	return Fingerprint{Hash: digest(n + "|" + source), Normalized: n}
}

// Normalize lowercases the title, drops everything that is not a word
// character, whitespace or a CJK ideograph, and collapses whitespace.
// Stripping runs before collapsing so the result is a fixed point.
func Normalize(title string) string {
	lowered := strings.ToLower(title)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if keepRune(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ContentHash is the exact-match key for the detector.
func ContentHash(title, source string) string {
	return Of(title, source).Hash
}

// HistoryHash is the key the push history is stored under.
func HistoryHash(title, source, url string) string {
	return digest(source + ":" + title + ":" + url)
}

// Similarity is the Jaccard index of the rune sets of both normalized titles.
func Similarity(a, b string) float64 {
	return CharSetSimilarity(Normalize(a), Normalize(b))
}

// CharSetSimilarity is Similarity for input that is already normalized.
// Empty input yields 0.
func CharSetSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	setA := runeSet(a)
	setB := runeSet(b)

	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func keepRune(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF:
		return true
	case unicode.IsLetter(r), unicode.IsNumber(r), r == '_':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return false
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Batch is the ordered set of items observed in one poll. Order matters: the
// duplicate detector keeps the first occurrence it sees.
type Batch []Item

// Len returns the number of items.
func (b Batch) Len() int { return len(b) }

// Sources lists platform ids in order of first appearance.
func (b Batch) Sources() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, it := range b {
		if _, ok := seen[it.Source]; ok {
			continue
		}
		seen[it.Source] = struct{}{}
		out = append(out, it.Source)
	}
	return out
}

// BySource groups items per platform, keeping arrival order inside each group.
func (b Batch) BySource() map[string][]Item {
	out := make(map[string][]Item)
	for _, it := range b {
		out[it.Source] = append(out[it.Source], it)
	}
	return out
}

// Filter returns the items for which keep reports true.
func (b Batch) Filter(keep func(Item) bool) Batch {
	var out Batch
	for _, it := range b {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// MarshalJSON writes {"source": {"title": payload}} with sources in first
// appearance order. A title repeated under one source is written once.
func (b Batch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	groups := b.BySource()
	for i, source := range b.Sources() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(source)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(":{")

		written := make(map[string]struct{})
		first := true
		for _, it := range groups[source] {
			if _, dup := written[it.Title]; dup {
				continue
			}
			written[it.Title] = struct{}{}
			if !first {
				buf.WriteByte(',')
			}
			first = false

			title, err := json.Marshal(it.Title)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(it.Payload())
			if err != nil {
				return nil, fmt.Errorf("encoding payload for %q: %w", it.Title, err)
			}
			buf.Write(title)
			buf.WriteByte(':')
			buf.Write(payload)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the source -> title -> payload shape, keeping document
// order so that classification is reproducible.
func (b *Batch) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	var items Batch
	for dec.More() {
		source, err := stringToken(dec)
		if err != nil {
			return err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return fmt.Errorf("source %q: %w", source, err)
		}
		for dec.More() {
			title, err := stringToken(dec)
			if err != nil {
				return fmt.Errorf("source %q: %w", source, err)
			}
			var payload map[string]any
			if err := dec.Decode(&payload); err != nil {
				return fmt.Errorf("source %q title %q: %w", source, title, err)
			}
			items = append(items, FromPayload(source, title, payload))
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}

	*b = items
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}

// TopicsBySource groups the batch into one topic per platform, in
// first-appearance order. Used when no categorizer is available.
func TopicsBySource(b Batch) []Topic {
	groups := b.BySource()
	topics := make([]Topic, 0, len(groups))
	for _, source := range b.Sources() {
		t := Topic{Name: source}
		for _, it := range groups[source] {
			t.Titles = append(t.Titles, it.Title)
		}
		topics = append(topics, t)
	}
	return topics
}

// Package content holds the trending item model shared by collectors, the
// duplicate detector, the push history and the notifiers.
package content

// Payload keys the core understands. Anything else stays in Item.Extra.
const (
	KeyURL       = "url"
	KeyMobileURL = "mobile_url"
	KeyRanks     = "ranks"
	KeyFirstTime = "first_time"
	KeyLastTime  = "last_time"
)

// Item is one trending entry observed on one platform during one poll.
type Item struct {
	Title     string
	Source    string
	URL       string
	MobileURL string
	Ranks     []int
	FirstTime string
	LastTime  string

	// Extra carries collector fields the core never inspects.
	Extra map[string]any
}

// Topic is one category produced by a categorizer for a digest.
type Topic struct {
	Name    string   `json:"name"`
	Summary string   `json:"summary,omitempty"`
	Titles  []string `json:"titles"`
}

// Payload renders the item in the source -> title -> payload wire shape.
func (it Item) Payload() map[string]any {
	p := make(map[string]any, len(it.Extra)+5)
	for k, v := range it.Extra {
		p[k] = v
	}
	p[KeyURL] = it.URL
	if it.MobileURL != "" {
		p[KeyMobileURL] = it.MobileURL
	}
	if len(it.Ranks) > 0 {
		p[KeyRanks] = it.Ranks
	}
	if it.FirstTime != "" {
		p[KeyFirstTime] = it.FirstTime
	}
	if it.LastTime != "" {
		p[KeyLastTime] = it.LastTime
	}
	return p
}

// FromPayload builds an Item from a decoded payload object.
func FromPayload(source, title string, payload map[string]any) Item {
	it := Item{Title: title, Source: source}
	for k, v := range payload {
		switch k {
		case KeyURL:
			it.URL, _ = v.(string)
		case KeyMobileURL:
			it.MobileURL, _ = v.(string)
		case KeyFirstTime:
			it.FirstTime, _ = v.(string)
		case KeyLastTime:
			it.LastTime, _ = v.(string)
		case KeyRanks:
			it.Ranks = toRanks(v)
		default:
			if it.Extra == nil {
				it.Extra = make(map[string]any)
			}
			it.Extra[k] = v
		}
	}
	return it
}

func toRanks(v any) []int {
	raw, ok := v.([]any)
	if !ok {
		if ints, ok := v.([]int); ok {
			return append([]int(nil), ints...)
		}
		return nil
	}
	ranks := make([]int, 0, len(raw))
	for _, r := range raw {
		switch n := r.(type) {
		case float64:
			ranks = append(ranks, int(n))
		case int:
			ranks = append(ranks, n)
		}
	}
	return ranks
}

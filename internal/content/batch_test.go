package content

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBatchUnmarshal_KeepsDocumentOrder(t *testing.T) {
	raw := `{
		"zhihu": {"问题C": {"url": "https://zhihu.com/1"}},
		"weibo": {
			"新闻B": {"url": "https://weibo.com/2", "ranks": [3, 1], "count": 2},
			"新闻A": {"url": "https://weibo.com/1", "mobile_url": "https://m.weibo.com/1"}
		}
	}`

	var b Batch
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(b) != 3 {
		t.Fatalf("expected 3 items, got %d", len(b))
	}

	wantTitles := []string{"问题C", "新闻B", "新闻A"}
	for i, want := range wantTitles {
		if b[i].Title != want {
			t.Errorf("item %d: got title %q, want %q", i, b[i].Title, want)
		}
	}
	if got := b.Sources(); len(got) != 2 || got[0] != "zhihu" || got[1] != "weibo" {
		t.Errorf("unexpected source order: %v", got)
	}

	second := b[1]
	if second.Source != "weibo" || second.URL != "https://weibo.com/2" {
		t.Errorf("identity fields not decoded: %+v", second)
	}
	if len(second.Ranks) != 2 || second.Ranks[0] != 3 {
		t.Errorf("ranks not decoded: %v", second.Ranks)
	}
	if second.Extra["count"] != float64(2) {
		t.Errorf("extra field lost: %v", second.Extra)
	}
	if b[2].MobileURL != "https://m.weibo.com/1" {
		t.Errorf("mobile url not decoded: %q", b[2].MobileURL)
	}
}

func TestBatchMarshal_GroupsBySourceAndPassesExtraThrough(t *testing.T) {
	b := Batch{
		{Title: "A", Source: "weibo", URL: "u1", Extra: map[string]any{"count": 1}},
		{Title: "C", Source: "zhihu", URL: "u3"},
		{Title: "B", Source: "weibo", URL: "u2"},
		{Title: "A", Source: "weibo", URL: "u1-again"},
	}

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(data)
	if strings.Index(out, `"weibo"`) > strings.Index(out, `"zhihu"`) {
		t.Errorf("weibo should come first: %s", out)
	}
	if strings.Contains(out, "u1-again") {
		t.Errorf("repeated title should be written once: %s", out)
	}

	var back Batch
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back) != 3 {
		t.Fatalf("expected 3 items, got %d", len(back))
	}
	if back[0].Extra["count"] != float64(1) {
		t.Errorf("extra not preserved: %v", back[0].Extra)
	}
	if back[1].Title != "B" || back[2].Source != "zhihu" {
		t.Errorf("unexpected order after round trip: %+v", back)
	}
}

func TestBatchUnmarshal_RejectsNonObject(t *testing.T) {
	var b Batch
	if err := json.Unmarshal([]byte(`["weibo"]`), &b); err == nil {
		t.Fatal("expected error for array input")
	}
	if err := json.Unmarshal([]byte(`{"weibo": {"A": "not-an-object"}}`), &b); err == nil {
		t.Fatal("expected error for scalar payload")
	}
}

func TestBatchFilter(t *testing.T) {
	b := Batch{{Title: "a", Source: "x"}, {Title: "b", Source: "y"}}
	got := b.Filter(func(it Item) bool { return it.Source == "y" })
	if len(got) != 1 || got[0].Title != "b" {
		t.Errorf("unexpected filter result: %+v", got)
	}
}

func TestTopicsBySource(t *testing.T) {
	b := Batch{
		{Title: "a", Source: "zhihu"},
		{Title: "b", Source: "weibo"},
		{Title: "c", Source: "zhihu"},
	}
	topics := TopicsBySource(b)
	if len(topics) != 2 || topics[0].Name != "zhihu" || topics[1].Name != "weibo" {
		t.Fatalf("unexpected topics: %+v", topics)
	}
	if len(topics[0].Titles) != 2 || topics[0].Titles[1] != "c" {
		t.Errorf("unexpected titles: %v", topics[0].Titles)
	}
}

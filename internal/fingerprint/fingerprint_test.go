package fingerprint

import (
	"math"
	"testing"
)

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"Hello,   World!!",
		"a - b",
		"网警破获AI换脸非法侵入系统案",
		"  网警破获   AI换脸 非法侵入案  ",
		"🔥 热搜：某某 #话题# 🚀",
		"İstanbul ÇAĞLAYAN",
		"tabs\tand\nnewlines\r\n",
		"snake_case_Title 123",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_StripsPunctuationAndEmoji(t *testing.T) {
	cases := map[string]string{
		"Hello,   World!!":          "hello world",
		"  Go 1.24 Released  ":      "go 124 released",
		"🔥 热搜：某某 #话题# 🚀":           "热搜某某 话题",
		"a - b":                     "a b",
		"snake_case_Title":          "snake_case_title",
		"  网警破获   AI换脸 非法侵入案  ": "网警破获 ai换脸 非法侵入案",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash("Some Title", "weibo")
	b := ContentHash("Some Title", "weibo")
	if a != b {
		t.Fatalf("hash changed between calls: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 128-bit hex digest, got %q", a)
	}
	if ContentHash("some title!", "weibo") != a {
		t.Error("titles that normalize identically must share a hash")
	}
	if ContentHash("Some Title", "zhihu") == a {
		t.Error("different sources must not share a hash")
	}
}

func TestOf_MatchesParts(t *testing.T) {
	fp := Of("Breaking: News!", "hn")
	if fp.Normalized != Normalize("Breaking: News!") {
		t.Errorf("normalized mismatch: %q", fp.Normalized)
	}
	if fp.Hash != ContentHash("Breaking: News!", "hn") {
		t.Errorf("hash mismatch: %q", fp.Hash)
	}
}

func TestHistoryHash_UsesRawTriple(t *testing.T) {
	h := HistoryHash("新闻A", "weibo", "u1")
	if h != HistoryHash("新闻A", "weibo", "u1") {
		t.Fatal("history hash not deterministic")
	}
	if h == HistoryHash("新闻A", "weibo", "u2") {
		t.Error("url must be part of the history key")
	}
	if h == HistoryHash("新闻A!", "weibo", "u1") {
		t.Error("history key must not normalize the title")
	}
	// md5("weibo:新闻A:u1") keeps files written by older deployments readable.
	if len(h) != 32 {
		t.Errorf("unexpected digest length: %d", len(h))
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("", "anything"); got != 0 {
		t.Errorf("empty title similarity = %v, want 0", got)
	}
	if got := Similarity("!!!", "???"); got != 0 {
		t.Errorf("titles normalizing to empty = %v, want 0", got)
	}
	if got := Similarity("abc", "cba"); got != 1 {
		t.Errorf("same rune set = %v, want 1", got)
	}
	if got := Similarity("ab", "cd"); got != 0 {
		t.Errorf("disjoint = %v, want 0", got)
	}

	got := Similarity("网警破获AI换脸非法侵入系统案", "  网警破获   AI换脸 非法侵入案  ")
	if math.Abs(got-13.0/16.0) > 1e-9 {
		t.Errorf("cjk similarity = %v, want %v", got, 13.0/16.0)
	}
	if Similarity("abcd", "abce") != Similarity("abce", "abcd") {
		t.Error("similarity must be symmetric")
	}
}

package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/dedup"
	"github.com/deusflow/hotpush/internal/pipeline"
	"github.com/deusflow/hotpush/internal/retry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fastRetry = retry.Config{MaxAttempts: 3, Delay: time.Millisecond}

type botServer struct {
	mu       sync.Mutex
	texts    []string
	chats    []string
	statuses []int
	getMe    int
}

func (b *botServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		b.mu.Lock()
		defer b.mu.Unlock()

		switch r.URL.Path {
		case "/botTOKEN/getMe":
			b.getMe++
			fmt.Fprint(w, `{"ok": true, "result": {"id": 7, "is_bot": true, "first_name": "hotpush", "username": "hotpush_bot"}}`)
			return
		case "/botTOKEN/sendMessage":
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}

		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		if r.PostForm.Get("parse_mode") != "HTML" || r.PostForm.Get("disable_web_page_preview") != "true" {
			t.Errorf("unexpected options: %v", r.PostForm)
		}

		status := http.StatusOK
		if len(b.statuses) > 0 {
			status, b.statuses = b.statuses[0], b.statuses[1:]
		}
		if status != http.StatusOK {
			fmt.Fprintf(w, `{"ok": false, "error_code": %d, "description": "status %d"}`, status, status)
			return
		}
		b.texts = append(b.texts, r.PostForm.Get("text"))
		b.chats = append(b.chats, r.PostForm.Get("chat_id"))
		fmt.Fprint(w, `{"ok": true, "result": {"message_id": 1, "date": 0, "chat": {"id": -100, "type": "channel"}}}`)
	}
}

func newNotifier(t *testing.T, b *botServer, chatID string) *Notifier {
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	return New("TOKEN", chatID, fastRetry, quietLogger(),
		WithEndpoint(srv.URL+"/bot%s/%s"), WithHTTPClient(srv.Client()))
}

func delivery() pipeline.Delivery {
	return pipeline.Delivery{Items: content.Batch{
		{Title: "A <b>bold</b> claim & more", Source: "weibo", URL: "https://weibo.com/?a=1&b=2", Ranks: []int{3}},
		{Title: "新闻B", Source: "zhihu"},
	}}
}

func TestNotify_Sends(t *testing.T) {
	b := &botServer{}
	n := newNotifier(t, b, "@chan")
	if err := n.Notify(context.Background(), delivery()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(b.texts) != 1 || b.chats[0] != "@chan" {
		t.Fatalf("expected one message to @chan, got %d %v", len(b.texts), b.chats)
	}
	msg := b.texts[0]
	for _, want := range []string{
		`<a href="https://weibo.com/?a=1&amp;b=2">A &lt;b&gt;bold&lt;/b&gt; claim &amp; more</a>`,
		"<i>[weibo]</i> #3",
		"📂 <b>zhihu</b>",
		"2. 新闻B",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	if err := n.Notify(context.Background(), delivery()); err != nil {
		t.Fatalf("second Notify: %v", err)
	}
	if b.getMe != 1 {
		t.Errorf("bot should connect once, getMe called %d times", b.getMe)
	}
}

func TestNotify_NumericChatID(t *testing.T) {
	b := &botServer{}
	if err := newNotifier(t, b, "-100123").Notify(context.Background(), delivery()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if b.chats[0] != "-100123" {
		t.Errorf("chat_id = %q", b.chats[0])
	}
}

func TestNotify_RetriesServerErrors(t *testing.T) {
	b := &botServer{statuses: []int{http.StatusBadGateway, http.StatusTooManyRequests}}
	if err := newNotifier(t, b, "@chan").Notify(context.Background(), delivery()); err != nil {
		t.Fatalf("Notify should succeed on the third attempt: %v", err)
	}
	if len(b.texts) != 1 {
		t.Errorf("texts = %d", len(b.texts))
	}
}

func TestNotify_ClientErrorIsPermanent(t *testing.T) {
	b := &botServer{statuses: []int{http.StatusBadRequest, http.StatusOK}}
	err := newNotifier(t, b, "@chan").Notify(context.Background(), delivery())
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want a 400 error", err)
	}
	if len(b.statuses) != 1 {
		t.Error("a 400 response must not be retried")
	}
}

func TestFormatDigest_SplitsLongDigests(t *testing.T) {
	var items content.Batch
	for i := 0; i < 300; i++ {
		items = append(items, content.Item{
			Title:  fmt.Sprintf("热搜话题第%d条 with a reasonably long headline attached", i),
			Source: "weibo",
			URL:    fmt.Sprintf("https://s.weibo.com/weibo?q=%d", i),
		})
	}
	stats := dedup.Stats{TotalProcessed: 310, TotalDuplicates: 10, UniqueContent: 300, HashBasedDuplicates: 10,
		PlatformDuplicates: map[string]int{"weibo": 10}}

	parts := FormatDigest(pipeline.Delivery{Items: items, Stats: &stats})
	if len(parts) < 2 {
		t.Fatalf("expected the digest to be split, got %d part", len(parts))
	}
	total := 0
	for i, p := range parts {
		if len(p) > maxMessageBytes {
			t.Errorf("part %d is %d bytes", i, len(p))
		}
		if !utf8.ValidString(p) {
			t.Errorf("part %d is not valid UTF-8", i)
		}
		total += strings.Count(p, "<a href=")
	}
	if total != 300 {
		t.Errorf("items across parts = %d, want 300", total)
	}
	if !strings.Contains(parts[len(parts)-1], "processed: 310") {
		t.Error("dedup summary should close the digest")
	}
}

func TestSplitBlock_RuneBoundaries(t *testing.T) {
	block := strings.Repeat("新", 10)
	pieces := splitBlock(block, 7)
	for _, p := range pieces {
		if len(p) > 7 || !utf8.ValidString(p) {
			t.Errorf("bad piece %q", p)
		}
	}
	if strings.Join(pieces, "") != block {
		t.Error("pieces must reassemble the block")
	}
}

func balanced(t *testing.T, part string) {
	t.Helper()
	for _, tag := range []string{"a", "b", "i"} {
		open := strings.Count(part, "<"+tag+">") + strings.Count(part, "<"+tag+" ")
		closed := strings.Count(part, "</"+tag+">")
		if open != closed {
			t.Errorf("<%s> opened %d times, closed %d times in %q", tag, open, closed, part)
		}
	}
}

func TestFormatDigest_OversizedItemStaysInOneMessage(t *testing.T) {
	long := strings.Repeat("Breaking & developing ", 220)
	items := content.Batch{
		{Title: long, Source: "hackernews", URL: "https://news.ycombinator.com/item?id=1&x=2"},
		{Title: "新闻" + strings.Repeat("热", 1600), Source: "weibo", URL: "https://s.weibo.com/" + strings.Repeat("q", 2000)},
	}

	parts := FormatDigest(pipeline.Delivery{Items: items, Topics: []content.Topic{
		{Name: "Tech", Summary: strings.Repeat("<summary> ", 400), Titles: []string{items[0].Title, items[1].Title}},
	}})
	for i, p := range parts {
		if len(p) > maxMessageBytes {
			t.Errorf("part %d is %d bytes", i, len(p))
		}
		balanced(t, p)
	}

	all := strings.Join(parts, "\n")
	if strings.Count(all, "…") != 3 {
		t.Errorf("title, title and summary should be truncated:\n%s", all)
	}
	if !strings.Contains(all, `<a href="https://news.ycombinator.com/item?id=1&amp;x=2">Breaking &amp; developing`) {
		t.Error("short URL should stay a link")
	}
	if strings.Contains(all, "qqqq") {
		t.Error("oversized URL should be dropped, not cut")
	}
}

func TestEscape_KeepsEntitiesWhole(t *testing.T) {
	got := escape(strings.Repeat("&", 10), 20)
	if got != "&amp;&amp;&amp;…" {
		t.Errorf("escape = %q", got)
	}
	if len(got) > 20 {
		t.Errorf("escape exceeded the cap: %d bytes", len(got))
	}
	if escape("a<b", 20) != "a&lt;b" {
		t.Error("short text should only be escaped")
	}
}

func TestSplitBlock_KeepsEntitiesAndTagsWhole(t *testing.T) {
	block := strings.Repeat("x&amp;<b>y</b>", 20)
	for _, p := range splitBlock(block, 9) {
		if strings.Count(p, "&") != strings.Count(p, "&amp;") {
			t.Errorf("entity cut in %q", p)
		}
		if strings.Count(p, "<") != strings.Count(p, ">") {
			t.Errorf("tag cut in %q", p)
		}
	}
}

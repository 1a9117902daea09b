package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/demobites/voice-order/internal/menu"
)

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func newTestClient(baseURL string) *Client {
	c := NewClient("test-key", "gpt-4o-mini", 2*time.Second)
	c.BaseURL = baseURL
	return c
}

func TestResolveParsesAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		w.Write(chatReply(t, `{"action":"collecting","order":{"items":[{"name":"Coke","price":1,"quantity":2}]},"prompt":"Added 2 Coke.","confidence":0.95}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res := c.Resolve(context.Background(), "two cokes please", `{"items":[]}`, nil)
	if res.Action != "collecting" {
		t.Fatalf("action = %q, want collecting", res.Action)
	}
	if res.Order == nil || len(res.Order.Items) != 1 || res.Order.Items[0].Quantity != 2 {
		t.Fatalf("order patch = %+v", res.Order)
	}
}

func TestResolveTimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL)
	c.Timeout = 50 * time.Millisecond
	start := time.Now()
	res := c.Resolve(context.Background(), "one pizza", `{"items":[]}`, nil)
	if res.Action != "unknown" || res.Confidence != 0.1 {
		t.Fatalf("got %+v, want canned fallback", res)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout did not bound the call")
	}
}

func TestResolveMalformedReplyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, "I'd love to help you order a pizza!"))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).Resolve(context.Background(), "hello", `{"items":[]}`, nil)
	if res.Action != "unknown" {
		t.Fatalf("action = %q, want unknown fallback", res.Action)
	}
}

func TestResolveServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).Resolve(context.Background(), "hello", `{"items":[]}`, nil)
	if res.Action != "unknown" {
		t.Fatalf("action = %q, want unknown fallback", res.Action)
	}
}

func TestGenericQueriesAreCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(chatReply(t, `{"action":"discounts","confidence":1}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		res := c.Resolve(context.Background(), "any discounts today?", `{"items":[]}`, nil)
		if res.Action != "discounts" {
			t.Fatalf("action = %q", res.Action)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("model called %d times, want 1 (cache)", n)
	}
}

func TestCacheExpires(t *testing.T) {
	cache := newTTLCache(60 * time.Second)
	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.set("menu", Result{Action: "choose_category"})
	if _, ok := cache.get("menu"); !ok {
		t.Fatal("fresh entry should hit")
	}
	cache.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := cache.get("menu"); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestOrderSpecificQueriesNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(chatReply(t, `{"action":"collecting","confidence":0.9}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.Resolve(context.Background(), "add a veg briyani", `{"items":[]}`, nil)
	c.Resolve(context.Background(), "add a veg briyani", `{"items":[]}`, nil)
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("model called %d times, want 2 (no cache)", n)
	}
}

func TestFastPathTable(t *testing.T) {
	empty := menu.Order{}
	cases := []struct {
		text       string
		wantAction string
	}{
		{"can I see the menu", "choose_category"},
		{"what do you have", "choose_category"},
		{"do you have any discounts", "discounts"},
		{"apply SAVE10 please", "apply_discount"},
		{"what's your most selling item", "most_selling"},
		{"what goes with a burger", "suggest"},
		{"what's my total", "info"},
		{"thanks a lot", "acknowledge"},
		{"pizzas sound good", "choose_category"},
		{"I'll take a coke", "collecting"},
	}
	for _, tc := range cases {
		res := FastPath(tc.text, empty, nil)
		if res == nil {
			t.Fatalf("%q: no fast-path hit, want %s", tc.text, tc.wantAction)
		}
		if res.Action != tc.wantAction {
			t.Fatalf("%q: action = %s, want %s", tc.text, res.Action, tc.wantAction)
		}
	}
	if res := FastPath("I'd like something spicy", empty, nil); res != nil {
		t.Fatalf("free-form utterance should not fast-path, got %+v", res)
	}
}

func TestFastPathApplyCodeNormalizesFreeDrink(t *testing.T) {
	res := FastPath("use free drink", menu.Order{}, nil)
	if res == nil || res.Action != "apply_discount" || res.DiscountCode != "FREEDRINK" {
		t.Fatalf("got %+v", res)
	}
}

func TestFastPathItemWithModifiersRoutesToChooseItem(t *testing.T) {
	res := FastPath("one cheese burger", menu.Order{}, nil)
	if res == nil || res.Action != "choose_item" || res.Item != "Cheese burger" {
		t.Fatalf("got %+v", res)
	}
}

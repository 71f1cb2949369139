package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gopii/internal/cache"
)

func TestHTTPDetector_PostsAndDecodes(t *testing.T) {
	var got DetectRequest
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entities":[{"text":"Ana Pérez","type":"PERSON","score":0.97,"begin_offset":4,"end_offset":13}]}`))
	}))
	defer ts.Close()

	d := &HTTPDetector{URL: ts.URL, APIKey: "k", HTTPClient: ts.Client()}
	ents, err := d.DetectEntities(context.Background(), DetectRequest{Text: "Sra Ana Pérez", Language: "es"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got.Text != "Sra Ana Pérez" || got.Language != "es" {
		t.Fatalf("unexpected request %+v", got)
	}
	if auth != "Bearer k" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
	if len(ents) != 1 || ents[0].Text != "Ana Pérez" || ents[0].Score != 0.97 || ents[0].BeginOffset != 4 {
		t.Fatalf("unexpected entities %+v", ents)
	}
}

func TestHTTPDetector_BareArrayAndPascalOffsets(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Type":"PERSON","Score":0.9,"BeginOffset":4,"EndOffset":13}]`))
	}))
	defer ts.Close()
	d := &HTTPDetector{URL: ts.URL}
	ents, err := d.DetectEntities(context.Background(), DetectRequest{Text: "Sra Ana Pérez", Language: "es"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(ents) != 1 || ents[0].Text != "Ana Pérez" || ents[0].Type != "PERSON" {
		t.Fatalf("text must be filled from rune offsets, got %+v", ents)
	}
}

func TestHTTPDetector_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			_, _ = w.Write([]byte(`{not json`))
			return
		}
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer ts.Close()
	if _, err := (&HTTPDetector{URL: ts.URL}).DetectEntities(context.Background(), DetectRequest{Text: "x"}); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := (&HTTPDetector{URL: ts.URL + "/bad"}).DetectEntities(context.Background(), DetectRequest{Text: "x"}); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := (&HTTPDetector{}).DetectEntities(context.Background(), DetectRequest{Text: "x"}); err == nil {
		t.Fatalf("expected missing url error")
	}
}

type capturingClient struct {
	last    openai.ChatCompletionRequest
	content string
	err     error
	calls   int
}

func (c *capturingClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.calls++
	c.last = req
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: c.content}}}}, nil
}

func TestChatDetector_ParsesFencedJSON(t *testing.T) {
	c := &capturingClient{content: "```json\n{\"entities\":[{\"text\":\"Luis Mora\",\"type\":\"PERSON\"}]}\n```"}
	d := &ChatDetector{Client: c, Model: "m"}
	ents, err := d.DetectEntities(context.Background(), DetectRequest{Text: "contra Luis Mora", Language: "es"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(ents) != 1 || ents[0].Text != "Luis Mora" || ents[0].Score != 1.0 {
		t.Fatalf("unexpected %+v", ents)
	}
	if c.last.Model != "m" || len(c.last.Messages) != 2 || c.last.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("unexpected request %+v", c.last)
	}
}

func TestChatDetector_Errors(t *testing.T) {
	if _, err := (&ChatDetector{}).DetectEntities(context.Background(), DetectRequest{Text: "x"}); err == nil {
		t.Fatalf("expected not configured error")
	}
	d := &ChatDetector{Client: &capturingClient{err: errors.New("boom")}, Model: "m"}
	if _, err := d.DetectEntities(context.Background(), DetectRequest{Text: "x"}); err == nil {
		t.Fatalf("expected client error")
	}
	d = &ChatDetector{Client: &capturingClient{content: "no entities here"}, Model: "m"}
	if _, err := d.DetectEntities(context.Background(), DetectRequest{Text: "x"}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCachingDetector_HitsCache(t *testing.T) {
	c := &capturingClient{content: `{"entities":[{"text":"Luis Mora","type":"PERSON","score":0.9}]}`}
	d := &CachingDetector{
		Inner: &ChatDetector{Client: c, Model: "m"},
		Cache: &cache.DetectCache{Dir: filepath.Join(t.TempDir(), "detect")},
		Name:  "chat:m",
	}
	req := DetectRequest{Text: "contra Luis Mora", Language: "es"}
	for i := 0; i < 2; i++ {
		ents, err := d.DetectEntities(context.Background(), req)
		if err != nil || len(ents) != 1 || ents[0].Text != "Luis Mora" {
			t.Fatalf("call %d: %+v %v", i, ents, err)
		}
	}
	if c.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", c.calls)
	}
}

func TestCachingDetector_DoesNotCacheFailures(t *testing.T) {
	c := &capturingClient{err: errors.New("throttled")}
	d := &CachingDetector{Inner: &ChatDetector{Client: c, Model: "m"}, Cache: &cache.DetectCache{Dir: t.TempDir()}, Name: "chat:m"}
	req := DetectRequest{Text: "x", Language: "es"}
	_, _ = d.DetectEntities(context.Background(), req)
	_, _ = d.DetectEntities(context.Background(), req)
	if c.calls != 2 {
		t.Fatalf("failures must not be cached, got %d calls", c.calls)
	}
}

func TestRuneSpan(t *testing.T) {
	s := "añb"
	from, to, ok := runeSpan(s, 1, 3)
	if !ok || s[from:to] != "ñb" {
		t.Fatalf("got %d %d %v", from, to, ok)
	}
	if _, _, ok := runeSpan(s, 2, 9); ok {
		t.Fatalf("out of range span must fail")
	}
}

func TestHTTPDetector_RetriesTransientFailures(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"entities":[]}`))
	}))
	defer ts.Close()
	d := &HTTPDetector{URL: ts.URL, MaxAttempts: 3, MaxConcurrent: 2}
	if _, err := d.DetectEntities(context.Background(), DetectRequest{Text: "x"}); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestHTTPDetector_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()
	d := &HTTPDetector{URL: ts.URL, MaxAttempts: 3}
	if _, err := d.DetectEntities(context.Background(), DetectRequest{Text: "x"}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls)
	}
}

package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gopii/internal/cache"
	"github.com/hyperifyio/gopii/internal/llm"
)

// DetectRequest is one chunk sent to an entity-detection service.
type DetectRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// DetectedEntity is one entity returned by a detector. Offsets are rune
// offsets into the request text.
type DetectedEntity struct {
	Text        string  `json:"text"`
	Type        string  `json:"type"`
	Score       float64 `json:"score"`
	BeginOffset int     `json:"begin_offset"`
	EndOffset   int     `json:"end_offset"`
}

// Detector finds entities in a chunk of text. Implementations return an
// error for transport, auth and payload failures; callers decide whether to
// degrade.
type Detector interface {
	DetectEntities(ctx context.Context, req DetectRequest) ([]DetectedEntity, error)
}

// maxResponseBytes bounds how much of a detector response is read.
const maxResponseBytes = 8 << 20

// HTTPDetector posts {"text","language"} as JSON to URL, retrying transient
// failures (5xx, 429, timeouts) with a linear backoff.
type HTTPDetector struct {
	URL        string
	APIKey     string // optional, sent as a bearer token
	HTTPClient *http.Client
	UserAgent  string // optional custom UA
	// MaxAttempts includes the initial attempt. Zero means 1.
	MaxAttempts int
	// MaxConcurrent limits in-flight requests across goroutines sharing this
	// detector. Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

// errTransient marks failures worth retrying.
var errTransient = errors.New("transient detection failure")

func (d *HTTPDetector) Name() string { return "http" }

func (d *HTTPDetector) DetectEntities(ctx context.Context, req DetectRequest) ([]DetectedEntity, error) {
	if d.URL == "" {
		return nil, errors.New("missing detection service url")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		raw, err := d.tryOnce(ctx, body)
		if err == nil {
			return decodeEntities(raw, req.Text, 0)
		}
		lastErr = err
		if !errors.Is(err, errTransient) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func (d *HTTPDetector) tryOnce(ctx context.Context, body []byte) ([]byte, error) {
	d.acquire()
	defer d.release()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	if d.APIKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+d.APIKey)
	}
	if d.UserAgent != "" {
		hreq.Header.Set("User-Agent", d.UserAgent)
	}
	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(hreq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", errTransient, err)
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("detection service status: %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return raw, nil
}

func (d *HTTPDetector) acquire() {
	if d.MaxConcurrent <= 0 {
		return
	}
	d.limiterOnce.Do(func() {
		d.limiter = make(chan struct{}, d.MaxConcurrent)
	})
	d.limiter <- struct{}{}
}

func (d *HTTPDetector) release() {
	if d.MaxConcurrent <= 0 || d.limiter == nil {
		return
	}
	<-d.limiter
}

// wireEntity accepts both snake_case and PascalCase offset names.
type wireEntity struct {
	Text        string   `json:"text"`
	Type        string   `json:"type"`
	Score       *float64 `json:"score"`
	BeginOffset *int     `json:"begin_offset"`
	EndOffset   *int     `json:"end_offset"`
	BeginAlt    *int     `json:"BeginOffset"`
	EndAlt      *int     `json:"EndOffset"`
}

// decodeEntities parses {"entities":[...]} or a bare array. Missing text is
// filled from the offsets; a missing score becomes defaultScore.
func decodeEntities(raw []byte, text string, defaultScore float64) ([]DetectedEntity, error) {
	raw = bytes.TrimSpace(raw)
	var list []wireEntity
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
	} else {
		var wrapped struct {
			Entities []wireEntity `json:"entities"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
		list = wrapped.Entities
	}
	out := make([]DetectedEntity, 0, len(list))
	for _, w := range list {
		e := DetectedEntity{Text: strings.TrimSpace(w.Text), Type: strings.TrimSpace(w.Type), Score: defaultScore, BeginOffset: -1, EndOffset: -1}
		if w.Score != nil {
			e.Score = *w.Score
		}
		switch {
		case w.BeginOffset != nil && w.EndOffset != nil:
			e.BeginOffset, e.EndOffset = *w.BeginOffset, *w.EndOffset
		case w.BeginAlt != nil && w.EndAlt != nil:
			e.BeginOffset, e.EndOffset = *w.BeginAlt, *w.EndAlt
		}
		if e.Text == "" {
			if from, to, ok := runeSpan(text, e.BeginOffset, e.EndOffset); ok {
				e.Text = text[from:to]
			}
		}
		if e.Text == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// runeSpan converts rune offsets into byte offsets of s.
func runeSpan(s string, begin, end int) (int, int, bool) {
	if begin < 0 || end <= begin {
		return 0, 0, false
	}
	from, to := -1, -1
	n := 0
	for i := range s {
		if n == begin {
			from = i
		}
		if n == end {
			to = i
			break
		}
		n++
	}
	if to < 0 && n == end && utf8.RuneCountInString(s) == end {
		to = len(s)
	}
	if from < 0 || to < 0 {
		return 0, 0, false
	}
	return from, to, true
}

// ChatDetector asks an OpenAI-compatible chat model for entities with a
// strict JSON contract.
type ChatDetector struct {
	Client llm.Client
	Model  string
	// SystemPrompt, when non-empty, overrides the default system message.
	SystemPrompt string
}

func (d *ChatDetector) Name() string { return "chat:" + d.Model }

func (d *ChatDetector) DetectEntities(ctx context.Context, req DetectRequest) ([]DetectedEntity, error) {
	if d.Client == nil || strings.TrimSpace(d.Model) == "" {
		return nil, errors.New("chat detector not configured")
	}
	sys := d.SystemPrompt
	if strings.TrimSpace(sys) == "" {
		sys = buildSystemMessage()
	}
	resp, err := d.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sys},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(req)},
		},
		Temperature: 0.0,
		N:           1,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat detector: empty response")
	}
	raw := stripCodeFence(resp.Choices[0].Message.Content)
	return decodeEntities([]byte(raw), req.Text, 1.0)
}

func buildSystemMessage() string {
	return "You detect personal data in Spanish legal documents. Respond with strict JSON only: " +
		"{\"entities\":[{\"text\":string,\"type\":\"PERSON|ID_NUMBER\",\"score\":number,\"begin_offset\":int,\"end_offset\":int}]}. " +
		"PERSON is a natural person's full name. ID_NUMBER is a national identity number. " +
		"Offsets count characters in the given text. Do not report judges, officials, companies or places. " +
		"If nothing is found, respond {\"entities\":[]}."
}

func buildUserMessage(req DetectRequest) string {
	var sb strings.Builder
	sb.WriteString("Language: ")
	sb.WriteString(req.Language)
	sb.WriteString("\nText:\n\n")
	sb.WriteString(req.Text)
	return sb.String()
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// CachingDetector stores successful responses of Inner on disk. Failures are
// never cached.
type CachingDetector struct {
	Inner Detector
	Cache *cache.DetectCache
	// Name distinguishes backends sharing one cache directory.
	Name string
}

func (d *CachingDetector) DetectEntities(ctx context.Context, req DetectRequest) ([]DetectedEntity, error) {
	if d.Cache == nil {
		return d.Inner.DetectEntities(ctx, req)
	}
	key := cache.KeyFrom(d.Name, req.Language, req.Text)
	if raw, ok, _ := d.Cache.Get(ctx, key); ok {
		var out []DetectedEntity
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}
	out, err := d.Inner.DetectEntities(ctx, req)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		_ = d.Cache.Save(ctx, key, b)
	}
	return out, nil
}

package main

import (
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type detectRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type entity struct {
	Text        string  `json:"text"`
	Type        string  `json:"type"`
	Score       float64 `json:"score"`
	BeginOffset int     `json:"begin_offset"`
	EndOffset   int     `json:"end_offset"`
}

var (
	personRe = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:[ \t]+(?:de[ \t]+|del[ \t]+)?\p{Lu}\p{Ll}+)+`)
	numberRe = regexp.MustCompile(`\d{1,3}(?:\.\d{3}){1,3}|\d{6,10}`)
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	log.Info().Str("addr", addr).Str("model", model).Msg("detect-stub listening")
	if err := http.ListenAndServe(addr, newMux(model)); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func newMux(model string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"entities": detect(req.Text)})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) < 2 || !strings.Contains(req.Messages[0].Content, "strict JSON") {
			http.Error(w, "unexpected system", http.StatusBadRequest)
			return
		}
		b, _ := json.Marshal(map[string]any{"entities": detect(chatText(req.Messages[1].Content))})
		writeJSON(w, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": string(b)}},
			},
		})
	})
	return mux
}

// chatText returns the document text of a user message, which follows the
// first blank line.
func chatText(user string) string {
	if i := strings.Index(user, "\n\n"); i >= 0 {
		return user[i+2:]
	}
	return user
}

// detect reports capitalized word runs as PERSON and digit groups as
// ID_NUMBER, with rune offsets.
func detect(text string) []entity {
	out := []entity{}
	add := func(re *regexp.Regexp, typ string, score float64) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			begin := utf8.RuneCountInString(text[:loc[0]])
			out = append(out, entity{
				Text:        text[loc[0]:loc[1]],
				Type:        typ,
				Score:       score,
				BeginOffset: begin,
				EndOffset:   begin + utf8.RuneCountInString(text[loc[0]:loc[1]]),
			})
		}
	}
	add(personRe, "PERSON", 0.9)
	add(numberRe, "ID_NUMBER", 0.95)
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

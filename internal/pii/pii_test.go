package pii

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/hyperifyio/gopii/internal/extract"
	"github.com/hyperifyio/gopii/internal/fallback"
)

func pages(texts ...string) []extract.Page {
	out := make([]extract.Page, len(texts))
	for i, t := range texts {
		out[i] = extract.Page{Number: i + 1, Text: t}
	}
	return out
}

func TestExtract_LabeledCedula(t *testing.T) {
	res := New(nil, nil).Extract(context.Background(), pages("Cédula de ciudadanía 12345678"))
	want := []CedulaRecord{{Number: "12345678", Pages: []int{1}}}
	if !reflect.DeepEqual(res.Cedulas, want) {
		t.Fatalf("got %+v, want %+v", res.Cedulas, want)
	}
}

func TestExtract_SameNumberAcrossPages(t *testing.T) {
	txt := "Cédula de ciudadanía 12.345.678"
	res := New(nil, nil).Extract(context.Background(), pages(txt, txt, txt))
	if len(res.Cedulas) != 1 || !reflect.DeepEqual(res.Cedulas[0].Pages, []int{1, 2, 3}) {
		t.Fatalf("expected one record on pages 1-3, got %+v", res.Cedulas)
	}
}

func TestExtract_UppercaseName(t *testing.T) {
	res := New(nil, nil).Extract(context.Background(), pages("El señor JUAN CARLOS PÉREZ GONZÁLEZ vive aquí"))
	found := false
	for _, n := range res.Names {
		if n.Name == "Juan Carlos Pérez González" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected name, got %+v", res.Names)
	}
}

func TestExtract_DocumentHeaderIsNotAName(t *testing.T) {
	res := New(nil, nil).Extract(context.Background(), pages("REGISTRO DE NACIMIENTO"))
	if len(res.Names) != 0 {
		t.Fatalf("expected no names, got %+v", res.Names)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	res := New(nil, nil).Extract(context.Background(), nil)
	if res.Names == nil || res.Cedulas == nil {
		t.Fatalf("result slices must be non-nil")
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"names":[],"cedulas":[]}` {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestExtract_RadicadoDigitsExcluded(t *testing.T) {
	res := New(nil, nil).Extract(context.Background(), pages("Radicado No. 2023001234567890123456789012345 - Juan Pérez cédula 12345678"))
	var got []string
	for _, c := range res.Cedulas {
		got = append(got, c.Number)
	}
	if !reflect.DeepEqual(got, []string{"12345678"}) {
		t.Fatalf("got %v", got)
	}
}

func TestExtract_IdempotentAndUnique(t *testing.T) {
	doc := pages(
		"Demanda de tutela de MARÍA FERNANDA LÓPEZ identificada con cédula 52.123.456",
		"La accionante María Fernanda López, cédula 52123456, comparece contra Pedro Antonio Ruiz",
	)
	o := New(nil, nil)
	a := o.Extract(context.Background(), doc)
	b := o.Extract(context.Background(), doc)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("extraction must be deterministic:\n%+v\n%+v", a, b)
	}
	seen := map[string]bool{}
	for _, n := range a.Names {
		k := strings.ToLower(n.Name)
		if seen[k] {
			t.Fatalf("duplicate name %q", n.Name)
		}
		seen[k] = true
		for i := 1; i < len(n.Pages); i++ {
			if n.Pages[i] <= n.Pages[i-1] {
				t.Fatalf("pages not ascending: %v", n.Pages)
			}
		}
	}
	if len(a.Cedulas) != 1 || !reflect.DeepEqual(a.Cedulas[0].Pages, []int{1, 2}) {
		t.Fatalf("expected one number on pages 1-2, got %+v", a.Cedulas)
	}
}

func TestStringWrappers(t *testing.T) {
	o := New(nil, nil)
	if got := o.CedulasString(context.Background(), "cédula 12345678 y cédula 87654321"); got != "12345678, 87654321" {
		t.Fatalf("got %q", got)
	}
	if got := o.NamesString(context.Background(), ""); got != "" {
		t.Fatalf("got %q", got)
	}
}

// fakeDetector returns every configured entity whose text appears in the chunk.
type fakeDetector struct {
	mu       sync.Mutex
	entities []fallback.DetectedEntity
	calls    int
}

func (f *fakeDetector) DetectEntities(_ context.Context, req fallback.DetectRequest) ([]fallback.DetectedEntity, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	var out []fallback.DetectedEntity
	for _, e := range f.entities {
		i := strings.Index(req.Text, e.Text)
		if i < 0 {
			continue
		}
		e.BeginOffset = utf8.RuneCountInString(req.Text[:i])
		e.EndOffset = e.BeginOffset + utf8.RuneCountInString(e.Text)
		out = append(out, e)
	}
	return out, nil
}

func TestExtract_FallbackOnlyForEmptyKind(t *testing.T) {
	d := &fakeDetector{entities: []fallback.DetectedEntity{
		{Text: "maría lópez", Type: "PERSON", Score: 0.99},
		{Text: "12345678", Type: "ID_NUMBER", Score: 0.99},
	}}
	o := New(nil, fallback.New(d, nil))
	res := o.Extract(context.Background(), pages("Se notifica a maría lópez. Cédula de ciudadanía 12345678."))
	if d.calls != 1 {
		t.Fatalf("only the empty kind may call the detector, got %d calls", d.calls)
	}
	if len(res.Names) != 1 || res.Names[0].Name != "María López" {
		t.Fatalf("expected fallback name, got %+v", res.Names)
	}
	if len(res.Cedulas) != 1 || res.Cedulas[0].Number != "12345678" {
		t.Fatalf("local number must be kept, got %+v", res.Cedulas)
	}
}

func TestExtract_NoFallbackWhenBothFound(t *testing.T) {
	d := &fakeDetector{}
	o := New(nil, fallback.New(d, nil))
	o.Extract(context.Background(), pages("El señor JUAN CARLOS PÉREZ GONZÁLEZ, cédula 12345678"))
	if d.calls != 0 {
		t.Fatalf("expected no detector calls, got %d", d.calls)
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &fakeDetector{}
	res := New(nil, fallback.New(d, nil)).Extract(ctx, pages("cédula 12345678"))
	if len(res.Cedulas) != 0 || d.calls != 0 {
		t.Fatalf("cancelled extraction must do no work, got %+v with %d calls", res, d.calls)
	}
}

func TestExtractBatch_KeepsOrder(t *testing.T) {
	var docs []Document
	for i := 0; i < 12; i++ {
		docs = append(docs, Document{ID: fmt.Sprintf("doc-%02d", i), Pages: pages(fmt.Sprintf("cédula %d", 10000000+i))})
	}
	out := New(nil, nil).ExtractBatch(context.Background(), docs, 4)
	if len(out) != len(docs) {
		t.Fatalf("expected %d results, got %d", len(docs), len(out))
	}
	for i, r := range out {
		if r.ID != docs[i].ID {
			t.Fatalf("result %d has id %s", i, r.ID)
		}
		want := fmt.Sprintf("%d", 10000000+i)
		if len(r.Result.Cedulas) != 1 || r.Result.Cedulas[0].Number != want {
			t.Fatalf("doc %s: got %+v", r.ID, r.Result.Cedulas)
		}
	}
}

func BenchmarkExtract(b *testing.B) {
	doc := pages(strings.Repeat("La señora ANA MARÍA GÓMEZ RÍOS identificada con cédula 43.123.456 comparece. ", 50))
	o := New(nil, nil)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = o.Extract(context.Background(), doc)
	}
}

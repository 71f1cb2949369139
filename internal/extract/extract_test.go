package extract

import (
	"strings"
	"testing"
)

func TestFromText_SplitsOnFormFeed(t *testing.T) {
	pages := FromText([]byte("uno\nlinea\fdos\ftres\f"))
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for i, want := range []string{"uno\nlinea", "dos", "tres"} {
		if pages[i].Number != i+1 || pages[i].Text != want {
			t.Fatalf("page %d: got %+v", i, pages[i])
		}
	}
	if got := FromText([]byte(" \n ")); got != nil {
		t.Fatalf("blank input must give no pages, got %+v", got)
	}
}

func TestFromText_KeepsEmptyMiddlePage(t *testing.T) {
	pages := FromText([]byte("a\f\fc"))
	if len(pages) != 3 || pages[1].Text != "" || pages[2].Number != 3 {
		t.Fatalf("unexpected pages %+v", pages)
	}
}

func TestFromJSON_NumbersAndOrders(t *testing.T) {
	pages, err := FromJSON([]byte(`[{"page":3,"text":"c"},{"text":"b"},{"page":1,"text":"a"}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := make([]string, len(pages))
	for i, p := range pages {
		got[i] = p.Text
	}
	if strings.Join(got, "") != "abc" || pages[0].Number != 1 || pages[1].Number != 2 {
		t.Fatalf("unexpected order %+v", pages)
	}
	if _, err := FromJSON([]byte(`{"page":1}`)); err == nil || !strings.Contains(err.Error(), "parse pages json") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestFromHTML_BBoxLayout(t *testing.T) {
	doc := `<!DOCTYPE html><html><head><title></title></head><body><doc>
<page width="612" height="792"><flow><block>
<line xMin="10" yMin="10" xMax="90" yMax="20"><word xMin="10" yMin="10" xMax="40" yMax="20">Cédula</word><word xMin="45" yMin="10" xMax="90" yMax="20">12.345.678</word></line>
<line xMin="10" yMin="30" xMax="90" yMax="40"><word xMin="10" yMin="30" xMax="40" yMax="40">JUAN</word><word xMin="45" yMin="30" xMax="90" yMax="40">PÉREZ</word></line>
</block></flow></page>
<page width="612" height="792"><flow><block><line><word>Segunda</word></line></block></flow></page>
</doc></body></html>`
	pages := FromHTML([]byte(doc))
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Text != "Cédula 12.345.678\nJUAN PÉREZ" {
		t.Fatalf("unexpected page 1 %q", pages[0].Text)
	}
	if pages[1].Number != 2 || pages[1].Text != "Segunda" {
		t.Fatalf("unexpected page 2 %+v", pages[1])
	}
}

func TestFromHTML_PlainBBoxBreaksOnY(t *testing.T) {
	doc := `<html><body><doc><page>
<word xMin="1" yMin="100.0" xMax="2" yMax="110">señor</word>
<word xMin="3" yMin="100.4" xMax="4" yMax="110">ANA</word>
<word xMin="1" yMin="120.0" xMax="2" yMax="130">RÍOS</word>
</page></doc></body></html>`
	pages := FromHTML([]byte(doc))
	if len(pages) != 1 || pages[0].Text != "señor ANA\nRÍOS" {
		t.Fatalf("unexpected %+v", pages)
	}
}

func TestFromHTML_PrefersMainOverBody(t *testing.T) {
	doc := `<!doctype html>
    <html>
      <head><title>Auto</title></head>
      <body>
        <nav>Nav should be ignored</nav>
        <main>
          <h1>Auto admisorio</h1>
          <p>Se admite la demanda de Luis Ruiz.</p>
        </main>
        <footer>Footer text</footer>
      </body>
    </html>`
	pages := FromHTML([]byte(doc))
	if len(pages) != 1 {
		t.Fatalf("expected a single page, got %d", len(pages))
	}
	text := pages[0].Text
	if !strings.Contains(text, "Auto admisorio") || !strings.Contains(text, "Se admite la demanda de Luis Ruiz.") {
		t.Fatalf("expected main content, got %q", text)
	}
	if strings.Contains(text, "Nav should be ignored") || strings.Contains(text, "Footer text") {
		t.Fatalf("boilerplate leaked into %q", text)
	}
}

func TestFromHTML_FallbackToBody(t *testing.T) {
	doc := `<html><head><title>x</title></head><body><h2>Oficio</h2><p>Body paragraph</p></body></html>`
	pages := FromHTML([]byte(doc))
	if len(pages) != 1 || !strings.Contains(pages[0].Text, "Oficio") || !strings.Contains(pages[0].Text, "Body paragraph") {
		t.Fatalf("unexpected %+v", pages)
	}
	if got := FromHTML([]byte(`<html><body>   </body></html>`)); got != nil {
		t.Fatalf("empty body must give no pages, got %+v", got)
	}
}

func TestForPath(t *testing.T) {
	cases := map[string]Loader{
		"doc.json":  JSONLoader{},
		"doc.HTML":  HTMLLoader{},
		"doc.xhtml": HTMLLoader{},
		"doc.txt":   TextLoader{},
		"doc":       TextLoader{},
	}
	for path, want := range cases {
		if got := ForPath(path); got != want {
			t.Fatalf("%s: got %T, want %T", path, got, want)
		}
	}
	pages, err := ForPath("x.txt").Load([]byte("a\fb"))
	if err != nil || len(pages) != 2 {
		t.Fatalf("unexpected %+v %v", pages, err)
	}
}

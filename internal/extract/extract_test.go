package extract

import (
	"strings"
	"testing"

	"github.com/hpungsan/synapse/internal/capture"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title> Go Concurrency Patterns </title>
  <meta name="description" content="Pipelines and cancellation">
  <meta name="author" content="Ada">
  <meta name="keywords" content="go, concurrency , ,channels">
  <meta property="og:site_name" content="Example Blog">
  <style>body { color: red; }</style>
</head>
<body>
  <h1>Pipelines</h1>
  <p>A pipeline is a series of <strong>stages</strong>. See <a href="/about">about</a>.</p>
  <script>window.tracking = "secret";</script>
</body>
</html>`

func TestFromHTML(t *testing.T) {
	page, err := FromHTML(strings.NewReader(samplePage), "https://example.com/post")
	if err != nil {
		t.Fatalf("FromHTML() error = %v", err)
	}

	if page.Title != "Go Concurrency Patterns" {
		t.Errorf("Title = %q", page.Title)
	}
	if page.Description != "Pipelines and cancellation" {
		t.Errorf("Description = %q", page.Description)
	}
	if page.Author != "Ada" {
		t.Errorf("Author = %q", page.Author)
	}
	if page.SiteName != "Example Blog" {
		t.Errorf("SiteName = %q", page.SiteName)
	}
	if strings.Join(page.Keywords, "|") != "go|concurrency|channels" {
		t.Errorf("Keywords = %q", page.Keywords)
	}

	for _, want := range []string{"# Pipelines", "**stages**", "https://example.com/about"} {
		if !strings.Contains(page.Content, want) {
			t.Errorf("Content missing %q:\n%s", want, page.Content)
		}
	}
	for _, unwanted := range []string{"tracking", "color: red"} {
		if strings.Contains(page.Content, unwanted) {
			t.Errorf("Content should not contain %q:\n%s", unwanted, page.Content)
		}
	}
	if page.WordCount == 0 {
		t.Error("WordCount = 0")
	}
}

func TestFromHTML_TitleFallbacks(t *testing.T) {
	doc := `<html><head><meta property="og:title" content="OG Title"></head><body><p>x</p></body></html>`
	page, err := FromHTML(strings.NewReader(doc), "")
	if err != nil {
		t.Fatalf("FromHTML() error = %v", err)
	}
	if page.Title != "OG Title" {
		t.Errorf("Title = %q, want og:title fallback", page.Title)
	}

	doc = `<html><head><meta property="og:site_name" content="Site"></head><body><p>x</p></body></html>`
	page, err = FromHTML(strings.NewReader(doc), "")
	if err != nil {
		t.Fatalf("FromHTML() error = %v", err)
	}
	if page.Title != "Site" {
		t.Errorf("Title = %q, want site name fallback", page.Title)
	}
}

func TestPage_Input(t *testing.T) {
	page, err := FromHTML(strings.NewReader(samplePage), "https://example.com/post")
	if err != nil {
		t.Fatalf("FromHTML() error = %v", err)
	}

	in := page.Input()
	if in.Kind != capture.KindPage {
		t.Errorf("Kind = %q, want page", in.Kind)
	}
	if in.URL != "https://example.com/post" || in.Title != page.Title {
		t.Errorf("Input = %+v", in)
	}
	if in.Metadata.GetString(capture.MetaAuthor) != "Ada" {
		t.Errorf("author metadata = %q", in.Metadata.GetString(capture.MetaAuthor))
	}
	if got := in.Metadata[capture.MetaKeywords].Strings(); len(got) != 3 {
		t.Errorf("keywords metadata = %v", got)
	}
	if n, ok := in.Metadata[capture.MetaWordCount].Float(); !ok || int(n) != page.WordCount {
		t.Errorf("word_count metadata = %v", n)
	}
}

func TestFromHTML_TooLarge(t *testing.T) {
	big := strings.NewReader(strings.Repeat("a", MaxHTMLBytes+1))
	if _, err := FromHTML(big, ""); err == nil {
		t.Fatal("expected error for oversized input")
	}
}

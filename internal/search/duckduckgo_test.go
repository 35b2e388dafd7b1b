package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

const samplePage = `<html><body>
<div class="result">
  <h2 class="result__title">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fweather">Paris Weather Today</a>
  </h2>
  <a class="result__snippet">Current conditions in <b>Paris</b> with hourly forecast.</a>
</div>
<div class="result">
  <h2 class="result__title">
    <a class="result__a" href="https://example.org/forecast">Forecast</a>
  </h2>
  <a class="result__snippet">Ten day outlook.</a>
</div>
<div class="result">
  <h2 class="result__title">
    <a class="result__a" href="https://example.net/third">Third</a>
  </h2>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := parseResults(strings.NewReader(samplePage), 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (bounded), got %d", len(results))
	}
	if results[0].Title != "Paris Weather Today" {
		t.Fatalf("title: %q", results[0].Title)
	}
	if results[0].URL != "https://example.com/weather" {
		t.Fatalf("expected unwrapped redirect URL, got %q", results[0].URL)
	}
	if !strings.Contains(results[0].Snippet, "Current conditions in Paris") {
		t.Fatalf("snippet: %q", results[0].Snippet)
	}
	if results[1].URL != "https://example.org/forecast" {
		t.Fatalf("plain URL: %q", results[1].URL)
	}
}

func TestSearch_HTTPErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }},
		{"empty_page", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html></html>")) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(5)
			c.BaseURL = srv.URL + "/"
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Search(ctx, "anything"); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := NewClient(5)
	if _, err := c.Search(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestFormatResults_CitesSources(t *testing.T) {
	out := FormatResults([]Result{
		{Title: "A", URL: "https://a.example", Snippet: "first"},
		{Title: "B", URL: "https://b.example"},
	})
	if !strings.Contains(out, "1. A") || !strings.Contains(out, "[Source: https://a.example]") {
		t.Fatalf("missing cited source: %q", out)
	}
	if !strings.Contains(out, "2. B") {
		t.Fatalf("missing second result: %q", out)
	}
}

func TestFormatResults_Bounded(t *testing.T) {
	long := strings.Repeat("x", 2000)
	out := FormatResults([]Result{
		{Title: long, URL: "https://a.example", Snippet: long},
		{Title: long, URL: "https://b.example", Snippet: long},
	})
	if len(out) > maxContextChars {
		t.Fatalf("formatted block exceeds bound: %d", len(out))
	}
}

func TestFormatResults_TrimsOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 2000)
	out := FormatResults([]Result{
		{Title: long, URL: "https://a.example", Snippet: long},
		{Title: long, URL: "https://b.example", Snippet: long},
	})
	if len(out) > maxContextChars {
		t.Fatalf("formatted block exceeds bound: %d", len(out))
	}
	if !utf8.ValidString(out) {
		t.Fatalf("trim split a multi-byte rune")
	}
}

package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/fulltext/shield"
)

func TestShield_SecurityHeaders(t *testing.T) {
	// WHAT: Responses contain security headers from shield.DefaultStack.
	// WHY: Without shield, no CSP, X-Frame-Options, X-Content-Type-Options, or X-Trace-ID.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(nil) {
		r.Use(mw)
	}
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
	}
	for header, expected := range checks {
		got := w.Header().Get(header)
		if got != expected {
			t.Errorf("%s: got %q, want %q", header, got, expected)
		}
	}

	traceID := w.Header().Get("X-Trace-ID")
	if len(traceID) != 12 {
		t.Errorf("X-Trace-ID: got %q (len %d), want 12 chars", traceID, len(traceID))
	}
}

func TestMakeCommand(t *testing.T) {
	// WHAT: `fulltext make` writes the full-text feed to stdout.
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>CLI</title><link>%s/</link><description>d</description>`+
			`<item><title>One</title><link>%s/story</link><description>short</description></item></channel></rss>`, base, base)
	})
	mux.HandleFunc("/story", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div id="story"><p>Full story text.</p></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fulltext.yaml")
	cfg := "block_private_addresses: false\ncache:\n  dir: " + filepath.Join(dir, "cache") + "\n" +
		"metrics:\n  enabled: true\n  db_path: " + filepath.Join(dir, "metrics.db") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"make", "--config", cfgPath, "--url", srv.URL + "/feed.xml", "--what", "div#story", "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("make: %v\n%s", err, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "<title>CLI</title>") || !strings.Contains(out, "Full story text.") {
		t.Fatalf("unexpected feed:\n%s", out)
	}

	// The build above left metrics behind for `stats`.
	stdout.Reset()
	root = newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"stats", "--config", cfgPath, "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("stats: %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "feed_build_ms") || !strings.Contains(stdout.String(), "feed_items_count") {
		t.Fatalf("unexpected stats:\n%s", stdout.String())
	}
}

func TestStatsCommand_MissingDB(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fulltext.yaml")
	if err := os.WriteFile(cfgPath, []byte("metrics:\n  db_path: "+filepath.Join(dir, "none.db")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"stats", "--config", cfgPath})
	if err := root.Execute(); err == nil {
		t.Fatal("stats without a metrics db must fail")
	}
}

func TestMakeCommand_RequiresURL(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"make"})
	if err := root.Execute(); err == nil {
		t.Fatal("missing --url must fail")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	} {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

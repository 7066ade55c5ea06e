package shield

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func chain(h http.Handler, mws []func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestDefaultStack_Headers(t *testing.T) {
	// WHAT: Responses carry security headers and a 12-char trace ID.
	// WHY: Feed output embeds third-party HTML; it must never be framed or sniffed.
	h := chain(okHandler(), DefaultStack(nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/feed", nil))

	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
	}
	for header, expected := range checks {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s: got %q, want %q", header, got, expected)
		}
	}
	if id := w.Header().Get("X-Trace-ID"); len(id) != 12 {
		t.Errorf("X-Trace-ID: got %q, want 12 chars", id)
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/feed", nil))
	if method != http.MethodGet {
		t.Fatalf("method: got %q", method)
	}
}

func TestRateLimiter_Blocks(t *testing.T) {
	// WHAT: The third request from one IP within the burst window gets 429.
	rl := NewRateLimiter(0.001, 2)
	h := rl.Middleware(okHandler())

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest("GET", "/feed", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes: %v", codes)
	}

	// A different client is unaffected.
	req := httptest.NewRequest("GET", "/feed", nil)
	req.RemoteAddr = "203.0.113.8:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("other client: got %d", w.Code)
	}
}

func TestRateLimiter_Exclude(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, "/healthz")
	h := rl.Middleware(okHandler())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
		if w.Code != 200 {
			t.Fatalf("healthz request %d: got %d", i, w.Code)
		}
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	h := rl.Middleware(okHandler())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/feed", nil))
		if w.Code != 200 {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	if ip := ExtractIP(req); ip != "198.51.100.1" {
		t.Fatalf("xff: got %q", ip)
	}
	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.5:1234"
	if ip := ExtractIP(req); ip != "192.0.2.5" {
		t.Fatalf("remote: got %q", ip)
	}
}

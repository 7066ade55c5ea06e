// CLAUDE:SUMMARY HTTP surface: chi router with the shield stack, the feed endpoint, health check and optional MCP endpoint.
package fulltext

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/fulltext/shield"
)

// Handler returns the HTTP surface. rl may be nil.
func (s *Service) Handler(rl *shield.RateLimiter) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(rl) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/makefulltextfeed.php", s.handleFeed)
	r.Get("/feed", s.handleFeed)

	if s.config.MCP.Enabled {
		srv := mcp.NewServer(&mcp.Implementation{Name: "fulltext", Version: "1.0.0"}, nil)
		s.RegisterMCP(srv)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}

func (s *Service) handleFeed(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())

	req := ParseRequest(r.URL.Query())
	req.Endpoint = r.URL.Path
	req.Self = selfURL(r)

	plan, redirect, err := s.Plan(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	out, err := s.MakeFeed(r.Context(), plan)
	if err != nil {
		log.Warn("fulltext: feed failed", "url", plan.URL, "error", err)
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Expires", out.Expires.UTC().Format(http.TimeFormat))
	w.Write(out.Body)
}

func writeError(w http.ResponseWriter, err error) {
	var ie *InputError
	if !errors.As(err, &ie) {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Error(w, ie.Message, ie.Status)
}

func selfURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

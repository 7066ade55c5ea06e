package fulltext

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/fulltext/kit"
)

// RegisterMCP registers the feed tool on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	type req struct {
		URL     string `json:"url"`
		Max     int    `json:"max"`
		Links   string `json:"links"`
		Exclude bool   `json:"exc"`
		What    string `json:"what"`
		HTML    bool   `json:"html"`
	}

	tool := &mcp.Tool{
		Name:        "fulltext_make_feed",
		Description: "Build a full-text RSS feed from a summary feed or a single web page",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":   map[string]any{"type": "string", "description": "Feed or page URL"},
				"max":   map[string]any{"type": "integer", "description": "Maximum number of items"},
				"links": map[string]any{"type": "string", "description": "Link handling: preserve, footnotes or remove"},
				"exc":   map[string]any{"type": "boolean", "description": "Drop items whose content could not be extracted"},
				"what":  map[string]any{"type": "string", "description": "Extraction pattern, e.g. div.article or auto"},
				"html":  map[string]any{"type": "boolean", "description": "Treat the URL as a web page"},
			},
			"required": []string{"url"},
		},
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		plan, _, err := s.Plan(Request{
			URL:     p.URL,
			HTML:    p.HTML,
			Max:     p.Max,
			HasMax:  p.Max > 0,
			Links:   p.Links,
			Exclude: p.Exclude,
			What:    p.What,
			HasWhat: p.What != "",
		})
		if err != nil {
			return nil, err
		}
		out, err := s.MakeFeed(ctx, plan)
		if err != nil {
			return nil, err
		}
		return string(out.Body), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	handler := kit.Chain(kit.Logging(s.logger, "fulltext_make_feed"))(endpoint)
	kit.RegisterMCPTool(srv, tool, handler, decode)
}

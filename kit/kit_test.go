package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	chained := Chain(noop)(base)

	_, err := chained(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestLogging_RecordsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ep := Logging(logger, "make_feed")(func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})

	ctx := WithRequestID(WithTransport(context.Background(), TransportCLI), "req_1")
	if _, err := ep(ctx, nil); err == nil {
		t.Fatal("expected error")
	}
	out := buf.String()
	for _, want := range []string{"endpoint failed", "make_feed", "transport=cli", "request_id=req_1", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestContext_Transport(t *testing.T) {
	if v := GetTransport(context.Background()); v != TransportHTTP {
		t.Fatalf("default transport: got %q, want http", v)
	}
	ctx := WithTransport(context.Background(), TransportMCP)
	if v := GetTransport(ctx); v != TransportMCP {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_IDs(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetTraceID(ctx) != "" {
		t.Fatal("IDs must default to empty")
	}
	ctx = WithTraceID(WithRequestID(ctx, "req_abc"), "trc_xyz")
	if v := GetRequestID(ctx); v != "req_abc" {
		t.Fatalf("request_id: got %q", v)
	}
	if v := GetTraceID(ctx); v != "trc_xyz" {
		t.Fatalf("trace_id: got %q", v)
	}
}

func TestLogAttrs(t *testing.T) {
	// WHAT: Unset IDs are left out so log lines stay short outside HTTP.
	got := LogAttrs(WithTransport(context.Background(), TransportCLI))
	if len(got) != 2 || got[1] != "cli" {
		t.Fatalf("cli attrs: %v", got)
	}
	got = LogAttrs(WithRequestID(context.Background(), "req_1"))
	want := []any{"transport", "http", "request_id", "req_1"}
	if len(got) != len(want) {
		t.Fatalf("attrs: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("attrs[%d]: got %v, want %v", i, got[i], want[i])
		}
	}
}

package provider

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeProvider struct {
	id    string
	err   error
	calls int
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }

func (f *fakeProvider) Complete(_ context.Context, _ *CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{Content: "from " + f.id}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) error { return f.err }

func TestRouterDefaultsToFirstRegistered(t *testing.T) {
	r := NewRouter(zap.NewNop())
	a := &fakeProvider{id: "a"}
	r.Register(a)
	r.Register(&fakeProvider{id: "b"})

	resp, err := r.Complete(context.Background(), "nora", &CompletionRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "from a" {
		t.Errorf("content = %q, want from a", resp.Content)
	}
}

func TestRouterBindingOverridesDefault(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&fakeProvider{id: "a"})
	r.Register(&fakeProvider{id: "b"})
	if err := r.Bind("nora", "b"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	resp, err := r.Complete(context.Background(), "nora", &CompletionRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "from b" {
		t.Errorf("content = %q, want from b", resp.Content)
	}
}

func TestRouterFallbackChain(t *testing.T) {
	r := NewRouter(zap.NewNop())
	broken := &fakeProvider{id: "a", err: errors.New("down")}
	backup := &fakeProvider{id: "b"}
	r.Register(broken)
	r.Register(backup)
	r.SetFallbacks("a", []string{"b"})

	resp, err := r.Complete(context.Background(), "nora", &CompletionRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "from b" {
		t.Errorf("content = %q, want fallback content", resp.Content)
	}
	if broken.calls != 1 {
		t.Errorf("primary tried %d times, want 1", broken.calls)
	}
}

func TestRouterAllProvidersFailed(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&fakeProvider{id: "a", err: errors.New("down")})

	if _, err := r.Complete(context.Background(), "nora", &CompletionRequest{}); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestRouterBindUnknownProvider(t *testing.T) {
	r := NewRouter(zap.NewNop())
	if err := r.Bind("nora", "ghost"); err == nil {
		t.Fatal("expected error binding to unregistered provider")
	}
}

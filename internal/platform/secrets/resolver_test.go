package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

func TestResolvePassthroughForPlainValues(t *testing.T) {
	r, err := NewResolver(context.Background(), "demo", WithClient(&stubAccessor{}))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := r.Resolve(context.Background(), "plain-value")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "plain-value" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestResolveFetchesAndCaches(t *testing.T) {
	calls := 0
	stub := &stubAccessor{
		accessFunc: func(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			calls++
			if req.Name != "projects/demo/secrets/jwt-key/versions/latest" {
				t.Fatalf("unexpected resource %q", req.Name)
			}
			return &secretmanagerpb.AccessSecretVersionResponse{
				Payload: &secretmanagerpb.SecretPayload{Data: []byte("s3cret")},
			}, nil
		},
	}
	r, err := NewResolver(context.Background(), "demo", WithClient(stub))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "secret://jwt-key")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "s3cret" {
			t.Fatalf("expected payload, got %q", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one backend call, got %d", calls)
	}
}

func TestResolvePinnedVersion(t *testing.T) {
	stub := &stubAccessor{
		accessFunc: func(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			if req.Name != "projects/demo/secrets/smtp-password/versions/3" {
				t.Fatalf("unexpected resource %q", req.Name)
			}
			return &secretmanagerpb.AccessSecretVersionResponse{
				Payload: &secretmanagerpb.SecretPayload{Data: []byte("v3")},
			}, nil
		},
	}
	r, err := NewResolver(context.Background(), "demo", WithClient(stub))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := r.Resolve(context.Background(), "secret://smtp-password@3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "v3" {
		t.Fatalf("expected pinned payload, got %q", got)
	}
}

func TestResolveFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	content := "# local secrets\njwt-key=fallback-value\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	stub := &stubAccessor{
		accessFunc: func(context.Context, *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, errors.New("unavailable")
		},
	}
	r, err := NewResolver(context.Background(), "demo", WithClient(stub), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := r.Resolve(context.Background(), "secret://jwt-key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "fallback-value" {
		t.Fatalf("expected fallback payload, got %q", got)
	}
}

func TestResolveUnknownSecret(t *testing.T) {
	stub := &stubAccessor{
		accessFunc: func(context.Context, *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, errors.New("unavailable")
		},
	}
	r, err := NewResolver(context.Background(), "demo", WithClient(stub), WithFallbackFile(filepath.Join(t.TempDir(), "missing")))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := r.Resolve(context.Background(), "secret://nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type stubAccessor struct {
	accessFunc func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

func (s *stubAccessor) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if s.accessFunc != nil {
		return s.accessFunc(ctx, req)
	}
	return nil, errors.New("stub not configured")
}

func (s *stubAccessor) Close() error { return nil }

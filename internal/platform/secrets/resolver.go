// Package secrets resolves secret:// configuration references against
// Google Secret Manager, with a plain-file fallback for local development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
)

// Scheme prefixes configuration values that name a managed secret instead
// of carrying the secret itself, e.g. secret://jwt-signing-key@3.
const Scheme = "secret://"

// ErrNotFound is returned when neither Secret Manager nor the fallback
// file knows the requested secret.
var ErrNotFound = errors.New("secrets: not found")

type accessorAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver exchanges secret:// references for their payloads. Values are
// cached for the lifetime of the resolver; rotation requires a restart.
type Resolver struct {
	client    accessorAPI
	ownClient bool
	projectID string
	fallback  string
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithFallbackFile points the resolver at a key=value file consulted when
// Secret Manager is unreachable or the client is absent.
func WithFallbackFile(path string) Option {
	return func(r *Resolver) { r.fallback = path }
}

// WithLogger attaches a logger for resolution failures.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClient substitutes the Secret Manager client, mainly for tests.
func WithClient(client accessorAPI) Option {
	return func(r *Resolver) {
		r.client = client
		r.ownClient = false
	}
}

// NewResolver builds a resolver for the given project. When Secret Manager
// is unavailable (no credentials, offline development) the constructor
// still succeeds and resolution falls through to the fallback file.
func NewResolver(ctx context.Context, projectID string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		projectID: projectID,
		fallback:  ".secrets.local",
		logger:    zap.NewNop(),
		cache:     map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.client == nil {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			r.logger.Warn("secret manager client unavailable, using fallback file only", zap.Error(err))
		} else {
			r.client = client
			r.ownClient = true
		}
	}
	return r, nil
}

// Close releases the underlying Secret Manager client when the resolver owns it.
func (r *Resolver) Close() error {
	if r == nil || !r.ownClient || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// IsRef reports whether the value names a managed secret.
func IsRef(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), Scheme)
}

// Resolve returns the payload for a secret:// reference. Values without
// the scheme pass through untouched so plain configuration keeps working.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	name, version, err := parseRef(value)
	if err != nil {
		return "", err
	}

	key := name + "@" + version
	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	payload, err := r.fetch(ctx, name, version)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = payload
	r.mu.Unlock()
	return payload, nil
}

func (r *Resolver) fetch(ctx context.Context, name, version string) (string, error) {
	if r.client != nil {
		resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", r.projectID, name, version)
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		if err == nil {
			return string(resp.GetPayload().GetData()), nil
		}
		r.logger.Warn("secret manager access failed, trying fallback file",
			zap.String("secret", name),
			zap.Error(err))
	}

	payload, err := r.fallbackValue(name)
	if err != nil {
		return "", err
	}
	return payload, nil
}

func (r *Resolver) fallbackValue(name string) (string, error) {
	if r.fallback == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	file, err := os.Open(r.fallback)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if found && strings.TrimSpace(k) == name {
			return strings.TrimSpace(v), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("secrets: read fallback file: %w", err)
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// parseRef splits secret://name[@version] into its parts. The version
// defaults to "latest".
func parseRef(value string) (name, version string, err error) {
	ref := strings.TrimPrefix(strings.TrimSpace(value), Scheme)
	if ref == "" {
		return "", "", fmt.Errorf("secrets: empty reference %q", value)
	}
	name, version, found := strings.Cut(ref, "@")
	if !found || version == "" {
		version = "latest"
	}
	if name == "" {
		return "", "", fmt.Errorf("secrets: empty secret name in %q", value)
	}
	return name, version, nil
}

// Package source resolves local resource references (filesystem paths,
// file:// and mem:// URIs, inline data: URIs, and remote http(s) URLs) into
// bytes, and classifies their reachability without reading full payloads.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"fieldaudit/internal/audit"
)

const memScheme = "mem://"

// Resolver is the default audit.Resolver implementation. In-memory handles
// registered through RegisterBlob are addressable as mem:// URIs, which keeps
// capture pipelines testable without touching disk or network.
type Resolver struct {
	client *http.Client

	mu  sync.RWMutex
	mem map[string][]byte
}

var _ audit.Resolver = (*Resolver)(nil)

func NewResolver() *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: 30 * time.Second},
		mem:    make(map[string][]byte),
	}
}

// RegisterBlob stores data under an in-memory handle and returns its mem://
// URI.
func (r *Resolver) RegisterBlob(name string, data []byte) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mem[name] = data
	return memScheme + name
}

// Resolve reads the full payload behind uri.
func (r *Resolver) Resolve(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, memScheme):
		r.mu.RLock()
		defer r.mu.RUnlock()
		data, ok := r.mem[strings.TrimPrefix(uri, memScheme)]
		if !ok {
			return nil, fmt.Errorf("no in-memory blob registered for %s", uri)
		}
		return data, nil

	case strings.HasPrefix(uri, "data:"):
		return decodeDataURI(uri)

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return r.fetch(ctx, uri)

	case strings.HasPrefix(uri, "file://"):
		path, err := fileURIPath(uri)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(path)

	default:
		// Bare filesystem path.
		return os.ReadFile(uri)
	}
}

// Reachable performs a scheme-appropriate existence check: filesystem stat
// for local files, a map lookup for in-memory handles, a structural check for
// inline data, and a HEAD request falling back to GET for remote URIs.
func (r *Resolver) Reachable(ctx context.Context, uri string) bool {
	if strings.TrimSpace(uri) == "" {
		return false
	}

	switch {
	case strings.HasPrefix(uri, memScheme):
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.mem[strings.TrimPrefix(uri, memScheme)]
		return ok

	case strings.HasPrefix(uri, "data:"):
		return strings.Contains(uri, "data:image/") && strings.Contains(uri, "base64,")

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return r.probe(ctx, uri)

	case strings.HasPrefix(uri, "file://"):
		path, err := fileURIPath(uri)
		if err != nil {
			return false
		}
		_, err = os.Stat(path)
		return err == nil

	default:
		_, err := os.Stat(uri)
		return err == nil
	}
}

// probe issues a HEAD request, falling back to GET for servers that do not
// support HEAD.
func (r *Resolver) probe(ctx context.Context, uri string) bool {
	if ok, err := r.request(ctx, http.MethodHead, uri); err == nil && ok {
		return true
	}
	ok, err := r.request(ctx, http.MethodGet, uri)
	return err == nil && ok
}

func (r *Resolver) request(ctx context.Context, method, uri string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (r *Resolver) fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", uri, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", uri, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// decodeDataURI extracts the base64 payload from an inline data: URI.
func decodeDataURI(uri string) ([]byte, error) {
	_, encoded, ok := strings.Cut(uri, "base64,")
	if !ok {
		return nil, fmt.Errorf("data URI is not base64-encoded")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding data URI: %w", err)
	}
	return data, nil
}

// fileURIPath extracts the filesystem path from a file:// URI.
func fileURIPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parsing file URI %s: %w", uri, err)
	}
	if u.Path == "" {
		return "", fmt.Errorf("file URI %s has no path", uri)
	}
	return u.Path, nil
}

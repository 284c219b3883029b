package audit

import "context"

// Resolver turns a local resource reference (filesystem path, file:// or
// mem:// URI, inline data: URI, remote http(s) URL) into bytes.
type Resolver interface {
	// Resolve reads the full payload behind uri.
	Resolve(ctx context.Context, uri string) ([]byte, error)

	// Reachable reports whether uri currently resolves to an existing
	// resource, using a scheme-appropriate existence check. It never
	// reads the full payload for remote schemes.
	Reachable(ctx context.Context, uri string) bool
}

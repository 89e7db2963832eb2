package blob

import (
	"context"
	"io"
)

// Store accepts a binary payload and returns a publicly resolvable URL
// for it. Content-type and size policy is enforced by the caller before
// Put is invoked.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

package identity

import "context"

// Provider is the boundary to the external identity system. The core
// never authenticates users; it only asks the provider to persist a
// confirmed photo URL against an identity it already trusts.
type Provider interface {
	UpdatePhotoURL(ctx context.Context, userId, photoURL string) error
}

// NoopProvider satisfies Provider when no profile endpoint is
// configured.
type NoopProvider struct{}

func (NoopProvider) UpdatePhotoURL(ctx context.Context, userId, photoURL string) error {
	return nil
}

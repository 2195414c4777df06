package interfaces

import "context"

// IdentityResolver maps a client-supplied token to a stable user id. An
// empty or unknown token yields a generated guest id rather than an error:
// anonymous play is a supported mode, not a failure.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

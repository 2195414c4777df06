package web

import (
	"context"

	"github.com/google/uuid"
)

// GuestResolver is the default identity resolver: a non-empty token is
// treated as an already-resolved user id (real token verification lives in
// an external auth collaborator), and an empty token yields a fresh guest
// id so anonymous play works out of the box.
type GuestResolver struct{}

func (GuestResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token != "" {
		return token, nil
	}
	return "guest-" + uuid.NewString(), nil
}

package identity

import (
	"context"
	"strings"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/pkg/errors"
)

// Provider resolves a bearer token into the identity of the caller. Any
// failure to do so is model.ErrUnauthorized.
type Provider interface {
	Identify(ctx context.Context, token string) (*model.Identity, error)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header
// value. A bare token is accepted as well.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func unauthorized(format string, args ...interface{}) error {
	return errors.Wrapf(model.ErrUnauthorized, format, args...)
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrUnknownIdentity = errors.New("unknown identity")

// Resolver maps an identity as written in configuration to the account key
// events are scoped by.
type Resolver interface {
	Resolve(ctx context.Context, identity string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, identity string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]*$`)

// UsernameResolver accepts well-formed usernames and keys them by their
// lower-cased form.
type UsernameResolver struct{}

func (UsernameResolver) Resolve(ctx context.Context, identity string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := strings.TrimSpace(identity)
	if !usernamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownIdentity, identity)
	}
	return strings.ToLower(name), nil
}

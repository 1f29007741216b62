package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ukydev/fleet-safety/internal/broker"
	"github.com/ukydev/fleet-safety/internal/models"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("insufficient permissions")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey contextKey = "user"
)

// TokenValidator resolves a bearer token to the acting user.
type TokenValidator interface {
	ValidateToken(token string) (*models.Claims, error)
}

// AuthMiddleware authenticates inbound submissions by the token carried in
// their envelope.
type AuthMiddleware struct {
	tokens TokenValidator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate unwraps a broker.Envelope, validates its token and hands the
// inner data to next with the claims in the context.
func (m *AuthMiddleware) Authenticate(next broker.Handler) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		var env broker.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			return fmt.Errorf("%w: malformed envelope: %v", ErrUnauthenticated, err)
		}
		if env.Token == "" {
			return fmt.Errorf("%w: token required", ErrUnauthenticated)
		}

		claims, err := m.tokens.ValidateToken(env.Token)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}

		msg.Payload = env.Data
		return next(WithUser(ctx, claims), msg)
	}
}

// RequireRole lets the message through when the user holds one of roles.
// Admins always pass.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) Middleware {
	return func(next broker.Handler) broker.Handler {
		return func(ctx context.Context, msg broker.Message) error {
			claims, ok := GetUserFromContext(ctx)
			if !ok {
				return fmt.Errorf("%w: user context not found", ErrUnauthenticated)
			}
			if claims.Role != models.RoleAdmin && !slices.Contains(roles, claims.Role) {
				return fmt.Errorf("%w: role %q", ErrForbidden, claims.Role)
			}
			return next(ctx, msg)
		}
	}
}

// WithUser stores claims in ctx.
func WithUser(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserFromContext extracts user claims from the message context
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok
}

// RateLimitMiddleware provides basic per-user rate limiting
type RateLimitMiddleware struct {
	requests map[string][]time.Time // user -> timestamps
	mu       sync.Mutex
	now      func() time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// RateLimit allows at most maxRequests per user within window. Messages
// without a user are keyed by topic.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, window time.Duration) Middleware {
	return func(next broker.Handler) broker.Handler {
		return func(ctx context.Context, msg broker.Message) error {
			key := "topic:" + msg.Topic
			if claims, ok := GetUserFromContext(ctx); ok {
				key = "user:" + claims.UserID
			}
			if !m.allow(key, maxRequests, window) {
				return fmt.Errorf("%w: %s", ErrRateLimited, key)
			}
			return next(ctx, msg)
		}
	}
}

func (m *RateLimitMiddleware) allow(key string, maxRequests int, window time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windowStart := now.Add(-window)

	// Clean old requests outside the window
	valid := m.requests[key][:0]
	for _, ts := range m.requests[key] {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	if len(valid) >= maxRequests {
		m.requests[key] = valid
		return false
	}
	m.requests[key] = append(valid, now)
	return true
}

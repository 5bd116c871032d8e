package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/bycloud/cloudpilot/internal/logging"
	"github.com/bycloud/cloudpilot/internal/metrics"
	"github.com/bycloud/cloudpilot/pkg/api"
)

// ErrIdentityUnresolved means a credential is present but the user id
// could not be determined from it or from the identity endpoint. Fatal
// for the current session; not worth retrying automatically.
var ErrIdentityUnresolved = errors.New("user identity could not be resolved")

// identityAPI is the slice of the API client the resolver needs.
type identityAPI interface {
	Me(ctx context.Context) (*api.Identity, error)
}

// Resolver derives the current user id from the bearer token's claims,
// falling back to the identity endpoint, and memoizes the result in
// the Store.
type Resolver struct {
	store  *Store
	client identityAPI
}

// NewResolver creates a resolver backed by the given store and client.
func NewResolver(store *Store, client identityAPI) *Resolver {
	return &Resolver{store: store, client: client}
}

// Resolve returns the current user id. Resolution order: cached id,
// token claims, identity endpoint. Fails with api.ErrUnauthenticated
// when no token exists and ErrIdentityUnresolved when the lookup comes
// back empty or broken.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if id := r.store.UserID(); id != "" {
		metrics.RecordIdentityResolution("cache")
		return id, nil
	}

	token := r.store.Token()
	if token == "" {
		return "", api.ErrUnauthenticated
	}

	if id := userIDFromToken(token); id != "" {
		metrics.RecordIdentityResolution("claims")
		if err := r.store.SetUserID(id); err != nil {
			logging.Warn("could not cache user id", zap.Error(err))
		}
		return id, nil
	}

	ident, err := r.client.Me(ctx)
	if err != nil {
		if api.IsAuthFailure(err) {
			return "", fmt.Errorf("%w: %v", api.ErrUnauthenticated, err)
		}
		return "", fmt.Errorf("%w: %v", ErrIdentityUnresolved, err)
	}
	if ident.ID == "" {
		return "", fmt.Errorf("%w: identity record carried no id", ErrIdentityUnresolved)
	}

	metrics.RecordIdentityResolution("endpoint")
	if err := r.store.SetUserID(ident.ID); err != nil {
		logging.Warn("could not cache user id", zap.Error(err))
	}
	return ident.ID, nil
}

// userIDFromToken decodes the middle segment of a three-part bearer
// token as base64url JSON and extracts the user id claim, trying sub,
// then userId, then user_id. Anything malformed — wrong segment count,
// bad base64, bad JSON — means "no claims", never an error: the caller
// falls through to the identity endpoint.
func userIDFromToken(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[1] == "" {
		return ""
	}

	decoded, err := decodeSegment(parts[1])
	if err != nil {
		return ""
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return ""
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	for _, key := range []string{"userId", "user_id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// decodeSegment tolerates both the base64url and standard alphabets
// and missing padding, as tokens from different issuers vary.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.ReplaceAll(seg, "-", "+")
	seg = strings.ReplaceAll(seg, "_", "/")
	if pad := len(seg) % 4; pad != 0 {
		seg += strings.Repeat("=", 4-pad)
	}
	return base64.StdEncoding.DecodeString(seg)
}

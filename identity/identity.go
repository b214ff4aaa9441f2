// Package identity resolves the caller's scope and credentials from request
// headers. Every data route runs through the resolver; health and metrics
// routes do not.
package identity

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// Header names the resolver reads.
const (
	HeaderTenantID  = "x-tenant-id"
	HeaderNamespace = "x-namespace"
	HeaderUserID    = "x-user-id"
)

// Resolver turns request headers into a fully populated Scope, optionally
// gated by a static bearer token.
type Resolver struct {
	token            string
	defaultTenant    string
	defaultNamespace string
}

// NewResolver builds a Resolver. An empty token disables authentication;
// empty defaults leave the corresponding header required.
func NewResolver(token, defaultTenant, defaultNamespace string) *Resolver {
	return &Resolver{
		token:            token,
		defaultTenant:    defaultTenant,
		defaultNamespace: defaultNamespace,
	}
}

// Authenticate checks the Authorization header against the configured
// bearer token. With no token configured every request passes.
func (r *Resolver) Authenticate(req *http.Request) error {
	if r.token == "" {
		return nil
	}

	header := req.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errors.New(errors.KindUnauthorized, "identity", "Authenticate",
			"missing bearer token")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(r.token)) != 1 {
		return errors.New(errors.KindUnauthorized, "identity", "Authenticate",
			"invalid bearer token")
	}
	return nil
}

// ResolveScope reads the scope headers, applying configured defaults for
// tenant and namespace. The user header has no default: an anonymous
// request cannot be attributed to anyone's data.
func (r *Resolver) ResolveScope(req *http.Request) (types.Scope, error) {
	scope := types.Scope{
		TenantID:  headerOrDefault(req, HeaderTenantID, r.defaultTenant),
		Namespace: headerOrDefault(req, HeaderNamespace, r.defaultNamespace),
		UserID:    strings.TrimSpace(req.Header.Get(HeaderUserID)),
	}

	if scope.UserID == "" {
		return types.Scope{}, errors.New(errors.KindUnauthorized, "identity", "ResolveScope",
			"x-user-id header is required")
	}
	if scope.TenantID == "" {
		return types.Scope{}, errors.New(errors.KindUnauthorized, "identity", "ResolveScope",
			"x-tenant-id header is required")
	}
	if scope.Namespace == "" {
		return types.Scope{}, errors.New(errors.KindUnauthorized, "identity", "ResolveScope",
			"x-namespace header is required")
	}
	return scope, nil
}

// Resolve authenticates the request and resolves its scope in one step.
func (r *Resolver) Resolve(req *http.Request) (types.Scope, error) {
	if err := r.Authenticate(req); err != nil {
		return types.Scope{}, err
	}
	return r.ResolveScope(req)
}

func headerOrDefault(req *http.Request, name, fallback string) string {
	if v := strings.TrimSpace(req.Header.Get(name)); v != "" {
		return v
	}
	return fallback
}

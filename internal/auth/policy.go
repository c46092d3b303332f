package auth

import (
	"net/http"
	"strings"
)

// Policy determines the role a request needs.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role for r. Paths outside /api/ need none.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil || !strings.HasPrefix(r.URL.Path, "/api/") {
		return "", false
	}
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/v1/sync/"),
		strings.HasPrefix(r.URL.Path, "/api/v1/catalog/"):
		return RoleOperator, true
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer, true
	}
	return RoleOperator, true
}

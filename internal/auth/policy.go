package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to a path, or to every path under it when Prefix is set.
type Rule struct {
	Path   string
	Prefix bool
	Role   Role
}

func (r Rule) matches(path string) bool {
	if r.Prefix {
		return strings.HasPrefix(path, r.Path)
	}
	return path == r.Path
}

// Policy maps request paths to the role they need. Public paths skip auth entirely.
// Rules are checked in order; the first match wins.
type Policy struct {
	Public []Rule
	Rules  []Rule
}

// DefaultRules protects the registration API. Listing exposes every device token, so it needs admin.
func DefaultRules() []Rule {
	return []Rule{
		{Path: "/api/fcm/tokens", Role: RoleAdmin},
		{Path: "/api/fcm/register", Role: RoleViewer},
		{Path: "/api/fcm/unregister", Role: RoleViewer},
		{Path: "/api/", Prefix: true, Role: RoleViewer},
	}
}

// NewDefaultPolicy builds the default rules with the given public paths and prefixes.
func NewDefaultPolicy(publicPaths []string, publicPrefixes []string) Policy {
	public := make([]Rule, 0, len(publicPaths)+len(publicPrefixes))
	for _, path := range publicPaths {
		public = append(public, Rule{Path: path})
	}
	for _, prefix := range publicPrefixes {
		public = append(public, Rule{Path: prefix, Prefix: true})
	}
	return Policy{Public: public, Rules: DefaultRules()}
}

// IsExempt reports whether a request skips auth.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	for _, rule := range p.Public {
		if rule.matches(r.URL.Path) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. ok is false for unprotected paths.
func (p Policy) RequiredRole(r *http.Request) (role Role, ok bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.Rules {
		if rule.matches(r.URL.Path) {
			return rule.Role, true
		}
	}
	return "", false
}

package auth

import (
	"net/http"
	"strings"
)

// Policy maps requests to the role they require. Paths not covered by any
// rule fall through unauthenticated (health, metrics).
type Policy struct {
	rules  []policyRule
	exempt []string
}

type policyRule struct {
	prefix   string
	suffix   string
	method   string
	required Role
}

// DefaultPolicy is the route policy of the service: reads need staff,
// mutations need manager, grading locks and manual point adjustments need
// admin.
func DefaultPolicy() Policy {
	return Policy{
		exempt: []string{"/healthz", "/metrics"},
		rules: []policyRule{
			{prefix: "/api/v1/grading/", suffix: "/lock", method: http.MethodPost, required: RoleAdmin},
			{prefix: "/api/v1/points/adjust", method: http.MethodPost, required: RoleAdmin},
			{prefix: "/api/v1/", method: http.MethodPost, required: RoleManager},
			{prefix: "/api/v1/", method: "", required: RoleStaff},
		},
	}
}

// IsExempt reports whether the request bypasses auth.
func (p Policy) IsExempt(r *http.Request) bool {
	for _, path := range p.exempt {
		if r.URL.Path == path {
			return true
		}
	}
	return false
}

// RequiredRole returns the role a request needs, false when uncovered.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	for _, rule := range p.rules {
		if !strings.HasPrefix(r.URL.Path, rule.prefix) {
			continue
		}
		if rule.suffix != "" && !strings.HasSuffix(r.URL.Path, rule.suffix) {
			continue
		}
		if rule.method != "" && rule.method != r.Method {
			continue
		}
		return rule.required, true
	}
	return "", false
}

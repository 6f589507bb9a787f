package auth

import (
	"net/http"
	"strings"
)

// Policy determines which requests skip session resolution.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a policy exempting health and metrics endpoints in
// addition to the given paths.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths)+2)
	set["/healthz"] = struct{}{}
	set["/metrics"] = struct{}{}
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip the guard.
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

package policy

import (
	"strings"

	"github.com/gatehouse-io/authz-go/internal/types"
)

// PatternMatch reports whether a single pattern selects a value. Supported
// forms: "*" (anything), exact match, and prefix wildcard ("proj:*").
func PatternMatch(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == value {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return false
}

// patternsMatch applies a pattern list to a value. An empty list is
// wildcard-all.
func patternsMatch(patterns []string, value string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if PatternMatch(p, value) {
			return true
		}
	}
	return false
}

// Matches reports whether the policy's subject, resource, and action pattern
// lists all select the request. Conditions are not consulted here; they are
// evaluated by the resolver. Pure and safe for concurrent use.
func Matches(p types.Policy, req types.AuthorizationRequest) bool {
	return patternsMatch(p.Subjects, req.Subject) &&
		patternsMatch(p.Resources, req.Resource) &&
		patternsMatch(p.Actions, req.Action)
}

// PermissionCovers reports whether a granted permission covers the
// requested action and resource. Grant fields may use the same wildcard
// forms as policy patterns.
func PermissionCovers(perm types.Permission, action, resource string) bool {
	return PatternMatch(perm.Action, action) && PatternMatch(perm.Resource, resource)
}

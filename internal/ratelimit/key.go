package ratelimit

import (
	"strings"
	"time"
)

// Scope enumerates the built-in rate-limit tiers.
type Scope string

const (
	// ScopePublic covers unauthenticated access.
	ScopePublic Scope = "public"
	// ScopeAuthenticated covers regular authenticated users.
	ScopeAuthenticated Scope = "authenticated"
	// ScopeAdmin covers administrative access.
	ScopeAdmin Scope = "admin"
	// ScopeAPI covers API-key based access.
	ScopeAPI Scope = "api"
)

// Rule is a fixed-window quota: at most Quota requests per Window, counted
// under keys namespaced by Prefix. Rules are immutable per scope.
type Rule struct {
	Quota  int
	Window time.Duration
	Prefix string
}

var defaultRules = map[Scope]Rule{
	ScopePublic:        {Quota: 10, Window: time.Minute, Prefix: "public"},
	ScopeAuthenticated: {Quota: 100, Window: time.Minute, Prefix: "auth"},
	ScopeAdmin:         {Quota: 1000, Window: time.Minute, Prefix: "admin"},
	ScopeAPI:           {Quota: 200, Window: time.Minute, Prefix: "api"},
}

// RuleFor returns the rule for a scope with any per-endpoint overrides applied.
func RuleFor(scope Scope, opts ...RuleOption) Rule {
	rule := defaultRules[scope]
	for _, opt := range opts {
		opt(&rule)
	}
	return rule
}

// RuleOption overrides part of a scope's default rule for one endpoint.
type RuleOption func(*Rule)

// WithQuota overrides the request quota.
func WithQuota(quota int) RuleOption {
	return func(r *Rule) { r.Quota = quota }
}

// WithWindow overrides the counting window.
func WithWindow(window time.Duration) RuleOption {
	return func(r *Rule) { r.Window = window }
}

// WithPrefix overrides the counter key prefix.
func WithPrefix(prefix string) RuleOption {
	return func(r *Rule) { r.Prefix = prefix }
}

// KeyParts carries the request identifiers that make up a counter key.
// UserID and APIKey are optional; the rest are always present.
type KeyParts struct {
	UserID string
	APIKey string
	IP     string
	Path   string
	Method string
}

// BuildKey composes the deterministic counter-store key for a request.
// Identifiers are layered user > api > ip so the same bucket distinguishes
// per-user behavior once authenticated while still keying anonymous traffic
// by address. Identical logical requests always map to the same key.
func BuildKey(prefix string, parts KeyParts) string {
	components := []string{prefix}
	if parts.UserID != "" {
		components = append(components, "user:"+parts.UserID)
	}
	if parts.APIKey != "" {
		components = append(components, "api:"+parts.APIKey)
	}
	components = append(components,
		"ip:"+parts.IP,
		"path:"+parts.Path,
		"method:"+parts.Method,
	)
	return strings.Join(components, ":")
}

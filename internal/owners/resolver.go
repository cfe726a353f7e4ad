package owners

import (
	"regexp"
	"strings"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

// Matcher extracts a candidate owner token from a free-form ad label.
// Implementations must be safe for concurrent use.
type Matcher interface {
	Match(label string) (token string, ok bool)
}

// regexpMatcher captures the first submatch of a compiled pattern.
type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(label string) (string, bool) {
	groups := m.re.FindStringSubmatch(label)
	if len(groups) < 2 {
		return "", false
	}
	token := strings.TrimSpace(groups[1])
	return token, token != ""
}

var (
	// Explicitly tagged segment, e.g. "Promo Q3 | ed: Priya" or "editor:Ritu".
	taggedPattern = regexp.MustCompile(`(?i)(?:^|[|\s])(?:ed|editor)\s*:\s*([^|()]+)`)
	// Parenthesized name, e.g. "Campaign (Priya)".
	parenPattern = regexp.MustCompile(`\(([^()]+)\)`)
	// Trailing dash segment, e.g. "Campaign - Ritu".
	trailingPattern = regexp.MustCompile(`-\s*([^-()|]+)\s*$`)
)

// DefaultMatchers returns the extraction patterns in precedence order.
// Order is significant: the more specific patterns come first, so an
// explicitly tagged segment wins over a parenthesized name, which in
// turn wins over a trailing dash segment.
func DefaultMatchers() []Matcher {
	return []Matcher{
		regexpMatcher{taggedPattern},
		regexpMatcher{parenPattern},
		regexpMatcher{trailingPattern},
	}
}

// Registry is a read-only snapshot of the application's editor
// directory, keyed by normalized owner name. It is loaded once per
// correlation run and never mutated during the run.
type Registry struct {
	byName map[string]models.Owner
}

// NewRegistry builds a registry from a list of owners. Later duplicates
// of the same normalized name win.
func NewRegistry(list []models.Owner) *Registry {
	byName := make(map[string]models.Owner, len(list))
	for _, o := range list {
		byName[Normalize(o.Name)] = o
	}
	return &Registry{byName: byName}
}

// Lookup finds an owner by normalized name.
func (r *Registry) Lookup(name string) (models.Owner, bool) {
	o, ok := r.byName[Normalize(name)]
	return o, ok
}

// Len returns the number of registered owners.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Normalize lowercases and trims an owner token for registry lookups.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolver assigns owners to spend records by matching their labels
// against an ordered list of extraction patterns and looking the
// extracted token up in the registry. A label that matches no pattern,
// or a token unknown to the registry, resolves to "unresolved" — never
// an error.
type Resolver struct {
	matchers []Matcher
	registry *Registry
}

// NewResolver creates a resolver over a fixed registry snapshot. When
// no matchers are given the default precedence-ordered set is used.
func NewResolver(registry *Registry, matchers ...Matcher) *Resolver {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Resolver{matchers: matchers, registry: registry}
}

// Resolve extracts an owner from a label. The boolean is false when the
// owner could not be resolved. Safe for concurrent use.
func (r *Resolver) Resolve(label string) (models.Owner, bool) {
	for _, m := range r.matchers {
		token, ok := m.Match(label)
		if !ok {
			continue
		}
		if o, found := r.registry.Lookup(token); found {
			return o, true
		}
		// First matching pattern decides the token; an unknown token is
		// a resolution gap, not a reason to try weaker patterns.
		return models.Owner{}, false
	}
	return models.Owner{}, false
}

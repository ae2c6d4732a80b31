package routing

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Router decides which backend service an incoming request should be
// forwarded to. It is safe for concurrent use: Route reads one immutable
// snapshot of the sorted rule set without locking, and UpdateRules builds
// the replacement set off to the side before publishing it atomically, so
// no call ever observes a partially updated set.
type Router struct {
	rules atomic.Pointer[[]Rule]
}

// New creates a router with the given initial rule set. The slice is
// copied; the caller's backing array is never aliased. An empty or nil
// set is valid and matches nothing.
func New(rules []Rule) *Router {
	r := &Router{}
	r.UpdateRules(rules)
	return r
}

// UpdateRules atomically replaces the entire rule set. The previous set is
// discarded wholesale. Rule contents are not validated; dead or
// conflicting rules are accepted and simply never or ambiguously match.
func (r *Router) UpdateRules(rules []Rule) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sortRules(sorted)
	r.rules.Store(&sorted)
}

// Route scans the sorted rule set in order and returns the decision of the
// first rule whose method filter and path condition both pass. The second
// return value is false when no rule matches; the Decision is then
// meaningless. Route has no side effects and performs no I/O.
func (r *Router) Route(req Request) (Decision, bool) {
	for _, rule := range *r.rules.Load() {
		if rule.Method != "" && !strings.EqualFold(rule.Method, req.Method) {
			continue
		}

		targetPath, ok := matchPath(rule, req.Path)
		if !ok {
			continue
		}

		return Decision{
			TargetService: rule.TargetService,
			TargetPath:    targetPath,
		}, true
	}

	return Decision{}, false
}

// Rules returns a copy of the currently active rule set in evaluation
// order. Mutating the returned slice has no effect on the router.
func (r *Router) Rules() []Rule {
	active := *r.rules.Load()
	rules := make([]Rule, len(active))
	copy(rules, active)
	return rules
}

// matchPath applies a rule's path condition to a request path and, on a
// match, computes the path to forward downstream. Exact-path matching
// takes precedence: when a rule sets both fields the prefix is never
// consulted, and an exact match forwards the original path unchanged.
func matchPath(rule Rule, path string) (string, bool) {
	if rule.ExactPath != "" {
		if path == rule.ExactPath {
			return path, true
		}
		return "", false
	}

	if rule.PathPrefix != "" && strings.HasPrefix(path, rule.PathPrefix) {
		return stripPrefix(path, rule.PathPrefix), true
	}

	return "", false
}

// stripPrefix removes the matched prefix and normalizes the remainder so
// the downstream service always receives a rooted path.
func stripPrefix(path, prefix string) string {
	remainder := path[len(prefix):]
	if remainder == "" {
		return "/"
	}
	if !strings.HasPrefix(remainder, "/") {
		return "/" + remainder
	}
	return remainder
}

// sortRules orders rules by descending priority, then specificity class
// (exact-path rules above prefix-only rules), then descending literal path
// length. The sort is stable: rules tied on all three keys keep their
// original relative order.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]

		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}

		aExact := a.ExactPath != ""
		bExact := b.ExactPath != ""
		if aExact != bExact {
			return aExact
		}

		return len(literalPath(a)) > len(literalPath(b))
	})
}

// literalPath returns whichever path literal a rule defines, preferring
// the exact path, or "" for a dead rule.
func literalPath(rule Rule) string {
	if rule.ExactPath != "" {
		return rule.ExactPath
	}
	return rule.PathPrefix
}

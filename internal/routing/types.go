// Package routing implements the gateway's request-routing engine.
//
// The engine holds a prioritized set of declarative rules and exposes a
// pure decision function that maps an incoming request to a target backend
// service and a rewritten path. Rules are sorted once, when the set is
// replaced, and every routing decision is a linear scan over one immutable
// snapshot of that sorted set.
//
// Example usage:
//
//	router := routing.New([]routing.Rule{
//		{ID: "bookings", PathPrefix: "/bookings", TargetService: "booking-service", Priority: 10},
//		{ID: "health", ExactPath: "/health", Method: "GET", TargetService: "status-service"},
//	})
//
//	decision, ok := router.Route(routing.Request{Path: "/bookings/42", Method: "POST"})
//	if ok {
//		// forward to decision.TargetService with decision.TargetPath ("/42")
//	}
package routing

// Rule is a declarative mapping from a request-matching condition to a
// target service. A rule may set ExactPath, PathPrefix, both, or neither;
// when both are set only the exact-path test is ever evaluated, and a rule
// with neither can never match. The router accepts such rules silently.
type Rule struct {
	ID            string `json:"id"`                    // Rule identifier, unique by convention only
	ExactPath     string `json:"exact_path,omitempty"`  // Matches the full request path character-for-character
	PathPrefix    string `json:"path_prefix,omitempty"` // Matches any path starting with this literal prefix
	Method        string `json:"method,omitempty"`      // Optional case-insensitive method filter; empty matches all
	TargetService string `json:"target_service"`        // Destination service identifier
	Priority      int    `json:"priority"`              // Higher values are considered first (default 0)
}

// Request is the routing-relevant view of an inbound HTTP request. Path is
// treated as opaque: no URL decoding, no query stripping, no normalization.
// Headers travel with the request for the forwarding layer's benefit; the
// router never inspects them.
type Request struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Decision is the outcome of a successful routing decision: which service
// to forward to, and the path to present to it after prefix stripping.
// Absence of a match is signaled out of band, never as a zero Decision.
type Decision struct {
	TargetService string `json:"target_service"`
	TargetPath    string `json:"target_path"`
}

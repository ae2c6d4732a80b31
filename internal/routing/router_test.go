package routing

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew_EmptyRuleSet(t *testing.T) {
	router := New(nil)

	paths := []string{"/", "/users", "/anything/at/all"}
	for _, path := range paths {
		if _, ok := router.Route(Request{Path: path, Method: "GET"}); ok {
			t.Errorf("Route(%q) matched on an empty rule set", path)
		}
	}

	if got := router.Rules(); len(got) != 0 {
		t.Errorf("Rules() = %v, want empty", got)
	}
}

func TestRoute_PriorityOrdering(t *testing.T) {
	router := New([]Rule{
		{ID: "b", PathPrefix: "/admin", Method: "GET", TargetService: "admin-list", Priority: 10},
		{ID: "a", ExactPath: "/admin", Method: "POST", TargetService: "admin-write", Priority: 15},
	})

	decision, ok := router.Route(Request{Path: "/admin", Method: "POST"})
	if !ok {
		t.Fatal("Route() found no match for POST /admin")
	}
	if decision.TargetService != "admin-write" {
		t.Errorf("TargetService = %q, want %q", decision.TargetService, "admin-write")
	}
	if decision.TargetPath != "/admin" {
		t.Errorf("TargetPath = %q, want %q (exact match forwards unchanged)", decision.TargetPath, "/admin")
	}

	// The higher-priority rule's method filter excludes GET, so the
	// prefix rule must win despite its lower priority.
	decision, ok = router.Route(Request{Path: "/admin/config", Method: "GET"})
	if !ok {
		t.Fatal("Route() found no match for GET /admin/config")
	}
	if decision.TargetService != "admin-list" {
		t.Errorf("TargetService = %q, want %q", decision.TargetService, "admin-list")
	}
	if decision.TargetPath != "/config" {
		t.Errorf("TargetPath = %q, want %q", decision.TargetPath, "/config")
	}
}

func TestRoute_MethodMismatchFallsThrough(t *testing.T) {
	router := New([]Rule{
		{ID: "health", ExactPath: "/health", Method: "GET", TargetService: "status", Priority: 5},
		{ID: "catchall", PathPrefix: "/", TargetService: "fallback"},
	})

	decision, ok := router.Route(Request{Path: "/health", Method: "POST"})
	if !ok {
		t.Fatal("Route() found no match; expected fall-through to catch-all")
	}
	if decision.TargetService != "fallback" {
		t.Errorf("TargetService = %q, want %q", decision.TargetService, "fallback")
	}
}

func TestRoute_MethodComparisonIsCaseInsensitive(t *testing.T) {
	router := New([]Rule{
		{ID: "users", PathPrefix: "/users", Method: "get", TargetService: "user-service"},
	})

	if _, ok := router.Route(Request{Path: "/users/1", Method: "GET"}); !ok {
		t.Error("Route() did not match uppercase method against lowercase filter")
	}
	if _, ok := router.Route(Request{Path: "/users/1", Method: "Get"}); !ok {
		t.Error("Route() did not match mixed-case method")
	}
	if _, ok := router.Route(Request{Path: "/users/1", Method: "POST"}); ok {
		t.Error("Route() matched a different method")
	}
}

func TestRoute_PrefixStripping(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		path   string
		want   string
	}{
		{"remainder kept", "/users", "/users/123/profile", "/123/profile"},
		{"exact prefix becomes root", "/users", "/users", "/"},
		{"unrooted remainder gets slash", "/user", "/users", "/s"},
		{"root prefix strips nothing", "/", "/listings/9", "/listings/9"},
		{"root prefix against root", "/", "/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := New([]Rule{{ID: "r", PathPrefix: tt.prefix, TargetService: "svc"}})

			decision, ok := router.Route(Request{Path: tt.path, Method: "GET"})
			if !ok {
				t.Fatalf("Route(%q) did not match prefix %q", tt.path, tt.prefix)
			}
			if decision.TargetPath != tt.want {
				t.Errorf("TargetPath = %q, want %q", decision.TargetPath, tt.want)
			}
		})
	}
}

func TestRoute_SpecificityTieBreak(t *testing.T) {
	// Equal priority: the exact-path rule outranks the prefix rule even
	// though its literal path is shorter.
	router := New([]Rule{
		{ID: "prefix", PathPrefix: "/api/listings/featured", TargetService: "prefix-svc"},
		{ID: "exact", ExactPath: "/api/listings/featured", TargetService: "exact-svc"},
	})

	decision, ok := router.Route(Request{Path: "/api/listings/featured", Method: "GET"})
	if !ok {
		t.Fatal("Route() found no match")
	}
	if decision.TargetService != "exact-svc" {
		t.Errorf("TargetService = %q, want exact rule to win specificity tie", decision.TargetService)
	}
}

func TestRoute_LongerPrefixWinsOnTie(t *testing.T) {
	router := New([]Rule{
		{ID: "short", PathPrefix: "/api", TargetService: "api-svc"},
		{ID: "long", PathPrefix: "/api/payments", TargetService: "payment-svc"},
	})

	decision, ok := router.Route(Request{Path: "/api/payments/checkout", Method: "POST"})
	if !ok {
		t.Fatal("Route() found no match")
	}
	if decision.TargetService != "payment-svc" {
		t.Errorf("TargetService = %q, want longer prefix to win", decision.TargetService)
	}
	if decision.TargetPath != "/checkout" {
		t.Errorf("TargetPath = %q, want %q", decision.TargetPath, "/checkout")
	}
}

func TestRoute_StableOrderForFullTies(t *testing.T) {
	// Identical priority, class, and path length: original relative order
	// decides, so the first-listed rule must win every time.
	router := New([]Rule{
		{ID: "first", PathPrefix: "/same", TargetService: "first-svc"},
		{ID: "second", PathPrefix: "/same", TargetService: "second-svc"},
	})

	for i := 0; i < 10; i++ {
		decision, ok := router.Route(Request{Path: "/same/thing", Method: "GET"})
		if !ok {
			t.Fatal("Route() found no match")
		}
		if decision.TargetService != "first-svc" {
			t.Fatalf("TargetService = %q, want first-listed rule on tie", decision.TargetService)
		}
	}
}

func TestRoute_ExactBeatsPrefixWithinOneRule(t *testing.T) {
	// A rule with both fields set only ever evaluates the exact path; the
	// prefix has no observable effect.
	router := New([]Rule{
		{ID: "both", ExactPath: "/listings", PathPrefix: "/list", TargetService: "svc"},
	})

	decision, ok := router.Route(Request{Path: "/listings", Method: "GET"})
	if !ok {
		t.Fatal("Route() did not match the exact path")
	}
	if decision.TargetPath != "/listings" {
		t.Errorf("TargetPath = %q, want original path unchanged", decision.TargetPath)
	}

	// Matches the prefix but not the exact path: must not match at all.
	if _, ok := router.Route(Request{Path: "/list/42", Method: "GET"}); ok {
		t.Error("Route() matched via PathPrefix on a rule that sets ExactPath")
	}
}

func TestRoute_DeadRuleNeverMatches(t *testing.T) {
	router := New([]Rule{
		{ID: "dead", Method: "GET", TargetService: "nowhere", Priority: 100},
		{ID: "live", PathPrefix: "/", TargetService: "somewhere"},
	})

	decision, ok := router.Route(Request{Path: "/anything", Method: "GET"})
	if !ok {
		t.Fatal("Route() found no match")
	}
	if decision.TargetService != "somewhere" {
		t.Errorf("TargetService = %q, want dead rule skipped", decision.TargetService)
	}
}

func TestRoute_RootPathRules(t *testing.T) {
	exact := New([]Rule{{ID: "root", ExactPath: "/", TargetService: "home"}})

	if _, ok := exact.Route(Request{Path: "/", Method: "GET"}); !ok {
		t.Error("exact / rule did not match the root path")
	}
	if _, ok := exact.Route(Request{Path: "/about", Method: "GET"}); ok {
		t.Error("exact / rule matched a sub-path")
	}

	prefix := New([]Rule{{ID: "all", PathPrefix: "/", TargetService: "everything"}})

	for _, path := range []string{"/", "/users", "/a/b/c"} {
		decision, ok := prefix.Route(Request{Path: path, Method: "GET"})
		if !ok {
			t.Errorf("prefix / rule did not match %q", path)
			continue
		}
		if decision.TargetPath == "" || decision.TargetPath[0] != '/' {
			t.Errorf("TargetPath = %q for %q, want rooted path", decision.TargetPath, path)
		}
	}
}

func TestRoute_Deterministic(t *testing.T) {
	router := New([]Rule{
		{ID: "a", ExactPath: "/users/me", Method: "GET", TargetService: "user-service", Priority: 20},
		{ID: "b", PathPrefix: "/users", TargetService: "user-service", Priority: 10},
		{ID: "c", PathPrefix: "/", TargetService: "frontend"},
	})
	req := Request{Path: "/users/me", Method: "GET"}

	first, ok := router.Route(req)
	if !ok {
		t.Fatal("Route() found no match")
	}

	for i := 0; i < 100; i++ {
		decision, ok := router.Route(req)
		if !ok || decision != first {
			t.Fatalf("Route() call %d = (%v, %v), want (%v, true)", i, decision, ok, first)
		}
	}
}

func TestUpdateRules_ReplacesWholeSet(t *testing.T) {
	router := New([]Rule{
		{ID: "payments", PathPrefix: "/payments", TargetService: "payment-service"},
	})

	if _, ok := router.Route(Request{Path: "/payments/charge", Method: "POST"}); !ok {
		t.Fatal("Route() did not match before update")
	}

	router.UpdateRules([]Rule{
		{ID: "bookings", PathPrefix: "/bookings", TargetService: "booking-service"},
	})

	if _, ok := router.Route(Request{Path: "/payments/charge", Method: "POST"}); ok {
		t.Error("Route() still matched a rule removed by UpdateRules")
	}
	if _, ok := router.Route(Request{Path: "/bookings/7", Method: "GET"}); !ok {
		t.Error("Route() did not match a rule added by UpdateRules")
	}

	router.UpdateRules(nil)

	if _, ok := router.Route(Request{Path: "/bookings/7", Method: "GET"}); ok {
		t.Error("Route() matched after updating to an empty set")
	}
}

func TestUpdateRules_DoesNotAliasCallerSlice(t *testing.T) {
	rules := []Rule{
		{ID: "users", PathPrefix: "/users", TargetService: "user-service"},
	}
	router := New(rules)

	// External mutation after the call must not affect routing decisions.
	rules[0].TargetService = "mutated"
	rules[0].PathPrefix = "/other"

	decision, ok := router.Route(Request{Path: "/users/1", Method: "GET"})
	if !ok {
		t.Fatal("Route() did not match; caller mutation leaked into the router")
	}
	if decision.TargetService != "user-service" {
		t.Errorf("TargetService = %q, want the value captured at update time", decision.TargetService)
	}
}

func TestRules_ReturnsDefensiveCopy(t *testing.T) {
	router := New([]Rule{
		{ID: "users", PathPrefix: "/users", TargetService: "user-service"},
	})

	got := router.Rules()
	got[0].TargetService = "corrupted"
	got[0].PathPrefix = "/nope"

	decision, ok := router.Route(Request{Path: "/users/1", Method: "GET"})
	if !ok {
		t.Fatal("Route() did not match; accessor copy was not defensive")
	}
	if decision.TargetService != "user-service" {
		t.Errorf("TargetService = %q, mutating Rules() output corrupted the router", decision.TargetService)
	}
}

func TestRules_ReturnedInEvaluationOrder(t *testing.T) {
	router := New([]Rule{
		{ID: "low", PathPrefix: "/a", TargetService: "svc"},
		{ID: "high", PathPrefix: "/b", TargetService: "svc", Priority: 50},
		{ID: "exact", ExactPath: "/a", TargetService: "svc"},
	})

	got := router.Rules()
	wantOrder := []string{"high", "exact", "low"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("Rules()[%d].ID = %q, want %q (full order %v)", i, got[i].ID, id, got)
		}
	}
}

func TestRoute_ConcurrentWithUpdates(t *testing.T) {
	router := New([]Rule{
		{ID: "a", PathPrefix: "/svc-a", TargetService: "service-a"},
		{ID: "b", PathPrefix: "/svc-b", TargetService: "service-b"},
	})

	var readers, writer sync.WaitGroup
	stop := make(chan struct{})

	// The writer continuously republishes complete two-rule sets.
	writer.Add(1)
	go func() {
		defer writer.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			suffix := fmt.Sprintf("-%d", i%2)
			router.UpdateRules([]Rule{
				{ID: "a", PathPrefix: "/svc-a", TargetService: "service-a" + suffix},
				{ID: "b", PathPrefix: "/svc-b", TargetService: "service-b" + suffix},
			})
		}
	}()

	// Readers must always observe a complete snapshot: whichever suffix
	// they see, both rules must carry it.
	for g := 0; g < 8; g++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 2000; i++ {
				rules := router.Rules()
				if len(rules) != 2 {
					t.Errorf("observed snapshot with %d rules, want 2", len(rules))
					return
				}
				suffixA := rules[0].TargetService[len("service-a"):]
				suffixB := rules[1].TargetService[len("service-b"):]
				if suffixA != suffixB {
					t.Errorf("observed mixed rule set: %q vs %q", rules[0].TargetService, rules[1].TargetService)
					return
				}

				if decision, ok := router.Route(Request{Path: "/svc-a/x", Method: "GET"}); !ok {
					t.Error("Route() missed during concurrent updates")
					return
				} else if decision.TargetPath != "/x" {
					t.Errorf("TargetPath = %q during concurrent updates", decision.TargetPath)
					return
				}
			}
		}()
	}

	readers.Wait()
	close(stop)
	writer.Wait()
}

func BenchmarkRoute(b *testing.B) {
	rules := make([]Rule, 0, 50)
	for i := 0; i < 50; i++ {
		rules = append(rules, Rule{
			ID:            fmt.Sprintf("rule-%d", i),
			PathPrefix:    fmt.Sprintf("/svc-%d", i),
			TargetService: fmt.Sprintf("service-%d", i),
			Priority:      i % 5,
		})
	}
	router := New(rules)
	req := Request{Path: "/svc-49/deep/path", Method: "GET"}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		router.Route(req)
	}
}

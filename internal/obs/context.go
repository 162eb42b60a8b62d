package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const unmatchedRoute = "unmatched"

type routeKey struct{}

// WithRoutePattern pins the route label for requests that never pass through
// chi, such as handlers exercised directly in tests.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routeKey{}, pattern)
}

// RouteLabel names the route r was served by. It must be called after the
// router has run, when chi has recorded the matched pattern. Unrouted requests
// share one label to keep metric cardinality bounded.
func RouteLabel(r *http.Request) string {
	if pinned, ok := r.Context().Value(routeKey{}).(string); ok && pinned != "" {
		return pinned
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return unmatchedRoute
}

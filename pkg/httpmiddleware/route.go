package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route identifies the matched route of a request.
type Route struct {
	// Pattern is the chi route pattern, e.g. "/api/orders/{id}".
	Pattern string
}

// RouteFinder resolves the route a request will be served by.
type RouteFinder func(r *http.Request) (Route, bool)

// MakeRouteFinder matches requests against the chi routing tree ahead of
// dispatch so middleware outside the router can label by pattern.
func MakeRouteFinder(routes chi.Routes) RouteFinder {
	return func(r *http.Request) (Route, bool) {
		rctx := chi.NewRouteContext()
		if !routes.Match(rctx, r.Method, r.URL.Path) {
			return Route{}, false
		}
		return Route{Pattern: rctx.RoutePattern()}, true
	}
}

func routeName(find RouteFinder, r *http.Request) string {
	if find != nil {
		if route, ok := find(r); ok && route.Pattern != "" {
			return route.Pattern
		}
	}
	return "unmatched"
}

package subgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Action is the outcome of a gate decision.
type Action int

const (
	// ActionAllow passes the request through unmodified.
	ActionAllow Action = iota

	// ActionRedirectSignUp redirects an unauthenticated request to the
	// sign-up page.
	ActionRedirectSignUp

	// ActionRedirectHome redirects an authenticated visit to the sign-up
	// page back to the gated area.
	ActionRedirectHome

	// ActionRedirectSubscribe redirects a gated-route request without an
	// active subscription to the subscribe page.
	ActionRedirectSubscribe
)

// Decision is the result of classifying a request against the gate.
type Decision struct {
	Action Action

	// Location is the redirect target path for non-allow actions.
	Location string
}

// SubscriptionChecker reports whether the user currently has an active
// subscription. Implementations: StoreChecker, EndpointChecker.
type SubscriptionChecker func(ctx context.Context, userID string) (bool, error)

// Routes classifies request paths. Matching is by path prefix, except "/"
// which matches exactly (mirroring the original route matchers).
type Routes struct {
	// Public paths never require authentication or a subscription.
	Public []string

	// Gated paths require both authentication and an active subscription.
	Gated []string

	// SignUp is the sign-up path prefix. Authenticated users visiting it
	// are redirected to Home.
	SignUp string

	// Home is the redirect target for authenticated visits to SignUp.
	Home string

	// Subscribe is the redirect target for gated requests without an
	// active subscription.
	Subscribe string
}

// DefaultRoutes returns the route set of the meal-plan application: public
// home, sign-up, subscribe flow, checkout, webhook and status-check
// endpoints; gated meal-plan and profile areas.
func DefaultRoutes() Routes {
	return Routes{
		Public: []string{
			"/",
			"/sign-up",
			"/subscribe",
			"/api/checkout",
			"/api/stripe-webhook",
			"/api/subscription-status",
		},
		Gated:     []string{"/mealplan", "/profile"},
		SignUp:    "/sign-up",
		Home:      "/mealplan",
		Subscribe: "/subscribe",
	}
}

// IsPublic reports whether the path is on the public allow-list.
func (r Routes) IsPublic(path string) bool {
	for _, p := range r.Public {
		if matchPath(p, path) {
			return true
		}
	}
	return false
}

// IsGated reports whether the path requires an active subscription.
func (r Routes) IsGated(path string) bool {
	for _, p := range r.Gated {
		if matchPath(p, path) {
			return true
		}
	}
	return false
}

// IsSignUp reports whether the path is within the sign-up flow.
func (r Routes) IsSignUp(path string) bool {
	return r.SignUp != "" && matchPath(r.SignUp, path)
}

func matchPath(pattern, path string) bool {
	if pattern == "/" {
		return path == "/"
	}
	return path == pattern || strings.HasPrefix(path, pattern+"/")
}

// GateConfig holds gate configuration.
type GateConfig struct {
	// Routes classifies request paths. Zero value falls back to
	// DefaultRoutes.
	Routes Routes

	// CheckSubscription determines subscription-active status for gated
	// paths (required unless SkipSubscriptionCheck is set).
	CheckSubscription SubscriptionChecker

	// SkipSubscriptionCheck disables the subscription gate while keeping
	// the authentication redirects. Intended for development environments.
	SkipSubscriptionCheck bool

	// Logger is used for structured logging (default: NoopLogger).
	Logger Logger
}

// Gate decides, per request path and identity, whether to pass the request
// through or redirect. It is framework-agnostic; the middleware packages
// adapt it to net/http, gin, echo and fiber.
type Gate struct {
	routes    Routes
	check     SubscriptionChecker
	skipCheck bool
	logger    Logger
}

// NewGate creates a Gate from the given configuration.
func NewGate(cfg GateConfig) (*Gate, error) {
	routes := cfg.Routes
	if len(routes.Public) == 0 && len(routes.Gated) == 0 {
		routes = DefaultRoutes()
	}
	if cfg.CheckSubscription == nil && !cfg.SkipSubscriptionCheck {
		return nil, errors.New("subgate: GateConfig.CheckSubscription is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Gate{
		routes:    routes,
		check:     cfg.CheckSubscription,
		skipCheck: cfg.SkipSubscriptionCheck,
		logger:    logger,
	}, nil
}

// Decide classifies a single request. userID is empty for unauthenticated
// requests. The subscription check fails closed: if the checker errors for
// any reason the request is redirected to the subscribe page.
func (g *Gate) Decide(ctx context.Context, path, userID string) Decision {
	if !g.routes.IsPublic(path) && userID == "" {
		return Decision{Action: ActionRedirectSignUp, Location: g.routes.SignUp}
	}

	if g.routes.IsSignUp(path) && userID != "" {
		return Decision{Action: ActionRedirectHome, Location: g.routes.Home}
	}

	if !g.skipCheck && g.routes.IsGated(path) && userID != "" {
		active, err := g.check(ctx, userID)
		if err != nil {
			g.logger.Warn("subscription check failed, denying access",
				F("user_id", userID), F("path", path), F("error", err.Error()))
			return Decision{Action: ActionRedirectSubscribe, Location: g.routes.Subscribe}
		}
		if !active {
			return Decision{Action: ActionRedirectSubscribe, Location: g.routes.Subscribe}
		}
	}

	return Decision{Action: ActionAllow}
}

// StoreChecker returns a SubscriptionChecker backed by a direct store
// lookup. A missing profile counts as inactive, not as an error.
func StoreChecker(store Store) SubscriptionChecker {
	return func(ctx context.Context, userID string) (bool, error) {
		profile, err := store.GetProfile(ctx, userID)
		if errors.Is(err, ErrProfileNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return profile.SubscriptionActive, nil
	}
}

type cookieContextKey struct{}

// WithForwardedCookies stores the incoming request's Cookie header in the
// context so EndpointChecker can forward it on the self-call. The
// middleware adapters do this automatically.
func WithForwardedCookies(ctx context.Context, cookie string) context.Context {
	if cookie == "" {
		return ctx
	}
	return context.WithValue(ctx, cookieContextKey{}, cookie)
}

// ForwardedCookies returns the Cookie header stored by WithForwardedCookies,
// or empty string.
func ForwardedCookies(ctx context.Context) string {
	cookie, _ := ctx.Value(cookieContextKey{}).(string)
	return cookie
}

// EndpointChecker returns a SubscriptionChecker that self-calls the
// subscription-status endpoint, forwarding the request's cookies (stored in
// the context via WithForwardedCookies) so the endpoint can resolve the
// session. baseURL is the origin of the running service, statusPath the
// endpoint path (e.g. "/api/subscription-status").
func EndpointChecker(baseURL, statusPath string, client *http.Client) SubscriptionChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, userID string) (bool, error) {
		u, err := url.Parse(baseURL)
		if err != nil {
			return false, fmt.Errorf("invalid base URL: %w", err)
		}
		u.Path = statusPath
		u.RawQuery = url.Values{"userId": {userID}}.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return false, err
		}
		if cookie := ForwardedCookies(ctx); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}

		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
		}

		var body struct {
			Subscription *Profile `json:"subscription"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("failed to decode status response: %w", err)
		}
		return body.Subscription != nil && body.Subscription.SubscriptionActive, nil
	}
}

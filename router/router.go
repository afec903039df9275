// Package router holds the application's named views and the navigation
// guard that decides, before a view is entered, whether the current session
// may see it.
package router

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	// ErrNavigationDuplicated is returned when a direct navigation targets
	// the current route. A guard redirect onto the current route is not an
	// error. Callers that navigate as a side effect swallow it.
	ErrNavigationDuplicated = errors.New("navigation duplicated")
	// ErrUnknownRoute is returned for a route name that is not registered.
	ErrUnknownRoute = errors.New("unknown route")
	// ErrUnbound is returned when navigating before a session is bound.
	ErrUnbound = errors.New("router has no session bound")
	// ErrRedirectLoop is returned when redirects do not settle.
	ErrRedirectLoop = errors.New("redirect loop")
)

const maxRedirects = 4

// Session is what the guard needs from the session: its read side and the
// shared logout transition it forces on anonymous access to protected views.
type Session interface {
	Viewer
	Logout()
}

// Result describes how a navigation resolved.
type Result struct {
	Requested string
	Outcome   Outcome
	// Route is the current route after the navigation settled.
	Route string
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the structured logger for guard decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithFallback sets the route unknown paths redirect to. Defaults to Login.
func WithFallback(name string) Option {
	return func(r *Router) { r.fallback = name }
}

// Router tracks the current view and evaluates the guard on every push.
type Router struct {
	byName   map[string]Route
	byPath   map[string]Route
	fallback string
	logger   *slog.Logger

	mu      sync.Mutex
	session Session
	current string
	history []string
}

// New builds a Router over a static route table.
func New(routes []Route, opts ...Option) (*Router, error) {
	r := &Router{
		byName:   make(map[string]Route, len(routes)),
		byPath:   make(map[string]Route, len(routes)),
		fallback: Login,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for _, rt := range routes {
		if _, dup := r.byName[rt.Name]; dup {
			return nil, fmt.Errorf("duplicate route name %q", rt.Name)
		}
		if _, dup := r.byPath[rt.Path]; dup {
			return nil, fmt.Errorf("duplicate route path %q", rt.Path)
		}
		r.byName[rt.Name] = rt
		r.byPath[rt.Path] = rt
	}
	if _, ok := r.byName[r.fallback]; !ok {
		return nil, fmt.Errorf("fallback route %q: %w", r.fallback, ErrUnknownRoute)
	}
	for _, target := range []string{Login, Home} {
		if _, ok := r.byName[target]; !ok {
			return nil, fmt.Errorf("route %q is required: %w", target, ErrUnknownRoute)
		}
	}
	return r, nil
}

// Bind attaches the session the guard evaluates against.
func (r *Router) Bind(s Session) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

// Current returns the name of the current route, or "" before the first
// navigation.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns the routes entered so far, oldest first.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}

// Lookup returns the route registered under name.
func (r *Router) Lookup(name string) (Route, bool) {
	rt, ok := r.byName[name]
	return rt, ok
}

// Push navigates to the named route. It satisfies the session's navigator.
func (r *Router) Push(name string) error {
	_, err := r.Navigate(name)
	return err
}

// Navigate evaluates the guard for the named route and applies the outcome.
func (r *Router) Navigate(name string) (Result, error) {
	return r.navigate(name, name, Allow, 0)
}

// NavigatePath resolves a path to a route and navigates to it. Unknown paths
// redirect to the fallback route.
func (r *Router) NavigatePath(path string) (Result, error) {
	rt, ok := r.byPath[path]
	if !ok {
		r.logger.Debug("no route for path, using fallback", slog.String("path", path), slog.String("fallback", r.fallback))
		return r.navigate(path, r.fallback, Redirect, 1)
	}
	return r.navigate(path, rt.Name, Allow, 0)
}

func (r *Router) navigate(requested, name string, outcome Outcome, depth int) (Result, error) {
	res := Result{Requested: requested, Outcome: outcome}
	if depth > maxRedirects {
		return res, fmt.Errorf("%s: %w", requested, ErrRedirectLoop)
	}
	rt, ok := r.byName[name]
	if !ok {
		return res, fmt.Errorf("%s: %w", name, ErrUnknownRoute)
	}

	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()
	if sess == nil {
		return res, ErrUnbound
	}

	d := Decide(rt.Policy, sess)
	switch d.Outcome {
	case Allow:
		err := r.enter(rt.Name)
		res.Route = r.Current()
		if outcome == Redirect && errors.Is(err, ErrNavigationDuplicated) {
			// A redirect onto the current view settles there.
			return res, nil
		}
		return res, err
	case Redirect:
		r.logger.Info("navigation redirected",
			slog.String("route", rt.Name),
			slog.String("policy", rt.Policy.String()),
			slog.String("target", d.Target))
		return r.navigate(requested, d.Target, Redirect, depth+1)
	default:
		r.logger.Info("navigation forced logout",
			slog.String("route", rt.Name),
			slog.String("policy", rt.Policy.String()))
		// Logout navigates to the login route itself; the lock must not be
		// held here.
		sess.Logout()
		res.Outcome = ForceLogout
		res.Route = r.Current()
		return res, nil
	}
}

func (r *Router) enter(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == name {
		return fmt.Errorf("%s: %w", name, ErrNavigationDuplicated)
	}
	r.current = name
	r.history = append(r.history, name)
	return nil
}

package router

import "fmt"

// Policy is the static access classification attached to a route.
type Policy int

const (
	// Public routes are open to everyone.
	Public Policy = iota
	// GuestOnly routes are for visitors without a session (login, register).
	GuestOnly
	// Authenticated routes require a session.
	Authenticated
	// AuthenticatedAdmin routes require a session with the admin role.
	AuthenticatedAdmin
)

func (p Policy) String() string {
	switch p {
	case Public:
		return "public"
	case GuestOnly:
		return "guestOnly"
	case Authenticated:
		return "authenticated"
	case AuthenticatedAdmin:
		return "authenticatedAdmin"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Outcome is the single result of evaluating the guard for one navigation.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
	ForceLogout
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case ForceLogout:
		return "force-logout"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Decision pairs an Outcome with the route to go to instead, if any.
type Decision struct {
	Outcome Outcome
	// Target is set for Redirect (Home) and ForceLogout (Login).
	Target string
}

// Viewer is the read side of the session the guard decides on.
type Viewer interface {
	IsAuthenticated() bool
	IsAdmin() bool
}

// Decide evaluates the access table for a target policy and the current
// viewer. It is total: every input yields exactly one Decision.
//
//	policy              anonymous     user          admin
//	public              allow         allow         allow
//	guestOnly           allow         ->home        ->home
//	authenticated       force-logout  allow         allow
//	authenticatedAdmin  force-logout  ->home        allow
//
// Policies outside the table fail closed.
func Decide(p Policy, v Viewer) Decision {
	authenticated := v != nil && v.IsAuthenticated()
	admin := authenticated && v.IsAdmin()

	switch p {
	case Public:
		return Decision{Outcome: Allow}
	case GuestOnly:
		if authenticated {
			return Decision{Outcome: Redirect, Target: Home}
		}
		return Decision{Outcome: Allow}
	case Authenticated:
		if !authenticated {
			return Decision{Outcome: ForceLogout, Target: Login}
		}
		return Decision{Outcome: Allow}
	case AuthenticatedAdmin:
		if !authenticated {
			return Decision{Outcome: ForceLogout, Target: Login}
		}
		if !admin {
			return Decision{Outcome: Redirect, Target: Home}
		}
		return Decision{Outcome: Allow}
	default:
		return Decision{Outcome: ForceLogout, Target: Login}
	}
}

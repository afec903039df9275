package router

// Route names of the voting application.
const (
	Login             = "Login"
	Register          = "Register"
	Home              = "Home"
	Voting            = "Voting"
	AdminCandidates   = "AdminManageCandidates"
	AdminApplications = "AdminManageVoterApplications"
	AdminVoting       = "AdminManageVotingActivity"
)

// Route is a navigable view with its access policy.
type Route struct {
	Name   string
	Path   string
	Policy Policy
}

// DefaultRoutes returns the route table of the voting application.
// Paths that match no route fall through to the login view.
func DefaultRoutes() []Route {
	return []Route{
		{Name: Login, Path: "/login", Policy: GuestOnly},
		{Name: Register, Path: "/register", Policy: GuestOnly},
		{Name: Home, Path: "/", Policy: Authenticated},
		{Name: AdminCandidates, Path: "/admin/candidates", Policy: AuthenticatedAdmin},
		{Name: AdminApplications, Path: "/admin/applications", Policy: AuthenticatedAdmin},
		{Name: AdminVoting, Path: "/admin/voting", Policy: AuthenticatedAdmin},
		{Name: Voting, Path: "/vote", Policy: Authenticated},
	}
}

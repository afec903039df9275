// Package auth contains the domain types shared by the session state machine
// and the API client. It is free of transport and storage concerns.
package auth

import "errors"

// ErrUnauthorized reports that the server rejected (or required) the bearer
// credential. It is only ever produced from a transport-level 401.
var ErrUnauthorized = errors.New("credential rejected")

// Role represents an application's authorization role.
// Keep string form for easy persistence.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// IsAdmin reports whether r grants administrative access. Unknown roles
// never do.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// UserProfile is the cached summary of the signed-in user as returned by
// the login and current-user endpoints.
type UserProfile struct {
	ID                     int64  `json:"id"`
	UserID                 string `json:"userid,omitempty"`
	Role                   Role   `json:"role"`
	EthereumAddress        string `json:"ethereum_address,omitempty"`
	IsVoter                bool   `json:"is_voter"`
	VoterOnChain           bool   `json:"voter_is_registered_on_chain"`
	HasVoted               bool   `json:"has_voted"`
	VoterApplicationStatus string `json:"voter_application_status,omitempty"`
	CreatedAt              string `json:"created_at,omitempty"`
	UpdatedAt              string `json:"updated_at,omitempty"`
}

// Credentials is the body of a login attempt.
type Credentials struct {
	UserID   string `json:"userid"`
	Password string `json:"password"`
}

// Registration is the body of a sign-up request.
type Registration struct {
	UserID          string `json:"userid"`
	Password        string `json:"password"`
	EthereumAddress string `json:"ethereum_address"`
}

// LoginResult is what a successful login hands back: the opaque bearer
// token and the profile it belongs to.
type LoginResult struct {
	AccessToken string
	User        UserProfile
}

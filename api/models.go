package api

import "github.com/jmcleod/ballotbox/auth"

// envelope is the common shape of every backend response.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// MessageResponse is returned by endpoints whose only payload is a
// confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// TxResponse is returned by endpoints that submit a chain transaction.
type TxResponse struct {
	Message     string `json:"message"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber int64  `json:"blockNumber,omitempty"`
}

type loginResponse struct {
	AccessToken string           `json:"access_token"`
	User        auth.UserProfile `json:"user"`
}

type profileResponse struct {
	User auth.UserProfile `json:"user"`
}

type ethAddressesResponse struct {
	AvailableAddresses []string `json:"available_addresses"`
}

// Candidate is a ballot entry. IDOnChain is the index used when voting.
type Candidate struct {
	IDOnChain   int     `json:"id_on_chain"`
	Name        string  `json:"name"`
	VoteCount   int64   `json:"vote_count_from_chain"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	Slogan      *string `json:"slogan"`
	ID          *int64  `json:"id"`
	CreatedAt   *string `json:"created_at,omitempty"`
	UpdatedAt   *string `json:"updated_at,omitempty"`
}

type candidatesResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// NewCandidate is the body of an add-candidate request.
type NewCandidate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Slogan      string `json:"slogan,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// CandidateResponse is returned after a candidate has been added.
type CandidateResponse struct {
	Message   string         `json:"message"`
	TxHash    string         `json:"txHash,omitempty"`
	Candidate map[string]any `json:"candidate,omitempty"`
}

// ImageUpload is the result of a candidate image upload.
type ImageUpload struct {
	Message  string `json:"message"`
	ImageURL string `json:"image_url"`
	Filename string `json:"filename"`
}

// VotingStatus is the public view of the election phase.
type VotingStatus struct {
	Phase     string `json:"phase"`
	PhaseCode int    `json:"phase_code"`
	IsStarted bool   `json:"isStarted"`
	IsEnded   bool   `json:"isEnded"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// ContractStatus is the administrative view of the voting contract.
type ContractStatus struct {
	Phase                 string `json:"phase"`
	PhaseCode             int    `json:"phase_code"`
	StartTime             int64  `json:"start_time"`
	EndTime               int64  `json:"end_time"`
	CurrentBlockTimestamp int64  `json:"current_block_timestamp"`
}

type deadlineResponse struct {
	VotingDeadlineTimestamp int64 `json:"votingDeadlineTimestamp"`
}

// VoterApplication is one entry in the admin review queue.
type VoterApplication struct {
	ID                    int64   `json:"id"`
	UserID                int64   `json:"user_id"`
	UserUserID            *string `json:"user_userid"`
	UserEthereumAddress   *string `json:"user_ethereum_address"`
	Status                string  `json:"status"`
	SubmittedAt           *string `json:"submitted_at"`
	ReviewedByAdminID     *int64  `json:"reviewed_by_admin_id"`
	ReviewedByAdminUserID *string `json:"reviewed_by_admin_userid"`
	ReviewedAt            *string `json:"reviewed_at"`
}

// ApplicationResponse is returned after a voter application is submitted.
type ApplicationResponse struct {
	Message     string           `json:"message"`
	Application VoterApplication `json:"application"`
}

// ApplicationReview is the body of an application review.
type ApplicationReview struct {
	Status     string `json:"status"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

// ReviewResponse is returned after an application review.
type ReviewResponse struct {
	Message     string           `json:"message"`
	TxHash      string           `json:"txHash,omitempty"`
	Application VoterApplication `json:"application"`
}

// VotingPeriod sets the start and end of the election, in Unix seconds.
type VotingPeriod struct {
	StartTime int64 `json:"start_time_timestamp"`
	EndTime   int64 `json:"end_time_timestamp"`
}

type extendRequest struct {
	NewEndTime int64 `json:"new_end_time_timestamp"`
}

type voteRequest struct {
	CandidateIndex int `json:"candidate_index_on_chain"`
}

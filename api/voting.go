package api

import (
	"context"
	"net/http"
)

// ApplyForVoter submits a voter application for the signed-in user.
// text is optional and only sent when non-empty.
func (c *Client) ApplyForVoter(ctx context.Context, text string) (ApplicationResponse, error) {
	var body any
	if text != "" {
		body = map[string]string{"application_text": text}
	}
	var resp ApplicationResponse
	err := c.sendJSON(ctx, http.MethodPost, "/user/apply_voter", body, &resp)
	return resp, err
}

// Candidates lists every candidate on the ballot.
func (c *Client) Candidates(ctx context.Context) ([]Candidate, error) {
	var resp candidatesResponse
	if err := c.getJSON(ctx, "/candidates", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

// VotingStatus reports the current election phase.
func (c *Client) VotingStatus(ctx context.Context) (VotingStatus, error) {
	var resp VotingStatus
	err := c.getJSON(ctx, "/voting_status", nil, &resp)
	return resp, err
}

// ElectionDeadline returns the voting deadline as a Unix timestamp.
func (c *Client) ElectionDeadline(ctx context.Context) (int64, error) {
	var resp deadlineResponse
	if err := c.getJSON(ctx, "/election_deadline", nil, &resp); err != nil {
		return 0, err
	}
	return resp.VotingDeadlineTimestamp, nil
}

// CastVote votes for the candidate at the given ballot index.
func (c *Client) CastVote(ctx context.Context, candidateIndex int) (TxResponse, error) {
	var resp TxResponse
	err := c.sendJSON(ctx, http.MethodPost, "/vote", voteRequest{CandidateIndex: candidateIndex}, &resp)
	return resp, err
}

// RevokeVote withdraws the signed-in user's vote.
func (c *Client) RevokeVote(ctx context.Context) (TxResponse, error) {
	var resp TxResponse
	err := c.sendJSON(ctx, http.MethodPost, "/revoke_vote", nil, &resp)
	return resp, err
}

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
)

// maxUploadSize bounds candidate images read into memory before upload.
const maxUploadSize = 16 << 20

// AddCandidate registers a new candidate on the ballot.
func (c *Client) AddCandidate(ctx context.Context, cand NewCandidate) (CandidateResponse, error) {
	if cand.Name == "" {
		return CandidateResponse{}, errors.New("candidate name is required")
	}
	var resp CandidateResponse
	err := c.sendJSON(ctx, http.MethodPost, "/admin/add_candidate", cand, &resp)
	return resp, err
}

// UploadCandidateImage uploads an image as the multipart field "file" and
// returns the URL the backend serves it from.
func (c *Client) UploadCandidateImage(ctx context.Context, filename string, r io.Reader) (ImageUpload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return ImageUpload{}, fmt.Errorf("creating form file: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(r, maxUploadSize+1))
	if err != nil {
		return ImageUpload{}, fmt.Errorf("reading image: %w", err)
	}
	if n > maxUploadSize {
		return ImageUpload{}, fmt.Errorf("image exceeds %d bytes", maxUploadSize)
	}
	if err := mw.Close(); err != nil {
		return ImageUpload{}, fmt.Errorf("closing multipart body: %w", err)
	}

	var resp ImageUpload
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/admin/upload_candidate_image",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &resp)
	return resp, err
}

// VoterApplications lists voter applications with the given status
// ("pending" when empty), one page at a time.
func (c *Client) VoterApplications(ctx context.Context, status string, page, perPage int) (ApplicationPage, error) {
	var resp ApplicationPage
	err := c.getJSON(ctx, "/admin/voter_applications", applicationQuery(status, page, perPage), &resp)
	return resp, err
}

// ReviewVoterApplication approves or rejects an application.
func (c *Client) ReviewVoterApplication(ctx context.Context, id int64, review ApplicationReview) (ReviewResponse, error) {
	if review.Status != "approved" && review.Status != "rejected" {
		return ReviewResponse{}, fmt.Errorf("review status %q: must be approved or rejected", review.Status)
	}
	var resp ReviewResponse
	path := "/admin/voter_applications/" + strconv.FormatInt(id, 10) + "/review"
	err := c.sendJSON(ctx, http.MethodPut, path, review, &resp)
	return resp, err
}

// SetVotingPeriod schedules the election window.
func (c *Client) SetVotingPeriod(ctx context.Context, period VotingPeriod) (TxResponse, error) {
	if period.StartTime >= period.EndTime {
		return TxResponse{}, errors.New("start time must be before end time")
	}
	var resp TxResponse
	err := c.sendJSON(ctx, http.MethodPost, "/admin/voting/period", period, &resp)
	return resp, err
}

// StartVoting opens the election immediately.
func (c *Client) StartVoting(ctx context.Context) (TxResponse, error) {
	var resp TxResponse
	err := c.sendJSON(ctx, http.MethodPost, "/admin/voting/start", nil, &resp)
	return resp, err
}

// EndVoting closes the election.
func (c *Client) EndVoting(ctx context.Context) (TxResponse, error) {
	var resp TxResponse
	err := c.sendJSON(ctx, http.MethodPost, "/admin/voting/end", nil, &resp)
	return resp, err
}

// ExtendVotingDeadline moves the end of the election to newEnd (Unix
// seconds).
func (c *Client) ExtendVotingDeadline(ctx context.Context, newEnd int64) (TxResponse, error) {
	var resp TxResponse
	err := c.sendJSON(ctx, http.MethodPut, "/admin/voting/extend", extendRequest{NewEndTime: newEnd}, &resp)
	return resp, err
}

// ContractVotingStatus reads the raw contract state.
func (c *Client) ContractVotingStatus(ctx context.Context) (ContractStatus, error) {
	var resp ContractStatus
	err := c.getJSON(ctx, "/admin/voting/contract_status", nil, &resp)
	return resp, err
}

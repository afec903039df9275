// Package testutil provides an in-process fake of the voting backend for
// tests. It speaks the same JSON envelopes as the real server and issues
// HS256 bearer tokens.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/ballotbox/auth"
)

type account struct {
	password string
	profile  auth.UserProfile
}

type candidate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Slogan      string `json:"slogan,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Votes       int64  `json:"-"`
}

type application struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

// Backend is a fake voting server.
type Backend struct {
	server *httptest.Server
	secret []byte

	mu           sync.Mutex
	accounts     map[string]*account
	static       map[string]string // token -> userid
	revoked      map[string]bool
	hits         map[string]int
	lastHeaders  map[string]http.Header
	freeAddrs    []string
	candidates   []candidate
	applications []application
	votes        map[string]int
	nextID       int64
	started      bool
	ended        bool
	start, end   int64
}

// NewBackend starts a fake backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		secret:      []byte("testutil-signing-secret"),
		accounts:    make(map[string]*account),
		static:      make(map[string]string),
		revoked:     make(map[string]bool),
		hits:        make(map[string]int),
		lastHeaders: make(map[string]http.Header),
		votes:       make(map[string]int),
		freeAddrs: []string{
			"0x1111111111111111111111111111111111111111",
			"0x2222222222222222222222222222222222222222",
		},
	}

	r := chi.NewRouter()
	r.Use(b.count)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", b.handleLogin)
		r.Post("/auth/register", b.handleRegister)
		r.Get("/auth/available_eth_addresses", b.handleEthAddresses)
		r.Get("/candidates", b.handleCandidates)
		r.Get("/voting_status", b.handleVotingStatus)
		r.Get("/election_deadline", b.handleDeadline)

		r.Group(func(r chi.Router) {
			r.Use(b.requireToken)
			r.Get("/auth/me", b.handleMe)
			r.Post("/user/apply_voter", b.handleApply)
			r.Post("/vote", b.handleVote)
			r.Post("/revoke_vote", b.handleRevokeVote)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/add_candidate", b.handleAddCandidate)
				r.Post("/upload_candidate_image", b.handleUpload)
				r.Get("/voter_applications", b.handleApplications)
				r.Put("/voter_applications/{id}/review", b.handleReview)
				r.Post("/voting/period", b.handlePeriod)
				r.Post("/voting/start", b.handleStart)
				r.Post("/voting/end", b.handleEnd)
				r.Put("/voting/extend", b.handleExtend)
				r.Get("/voting/contract_status", b.handleContractStatus)
			})
		})
	})

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the API base URL, including the /api prefix.
func (b *Backend) URL() string { return b.server.URL + "/api" }

// AddUser creates an account and returns its profile.
func (b *Backend) AddUser(userID, password string, role auth.Role) auth.UserProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(userID, password, role, "")
}

func (b *Backend) addUserLocked(userID, password string, role auth.Role, eth string) auth.UserProfile {
	b.nextID++
	p := auth.UserProfile{
		ID:              b.nextID,
		UserID:          userID,
		Role:            role,
		EthereumAddress: eth,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	b.accounts[userID] = &account{password: password, profile: p}
	return p
}

// UseStaticToken makes logins for userID return token instead of a signed
// JWT, and accepts it as that user's credential.
func (b *Backend) UseStaticToken(userID, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.static[token] = userID
}

// Revoke makes every later request bearing token fail with 401.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

// SetRole changes the role reported for userID.
func (b *Backend) SetRole(userID string, role auth.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[userID]; ok {
		a.profile.Role = role
	}
}

// Hits reports how many requests reached "METHOD /path".
func (b *Backend) Hits(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[method+" "+path]
}

// LastHeaders returns the headers of the most recent "METHOD /path" request.
func (b *Backend) LastHeaders(method, path string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeaders[method+" "+path].Clone()
}

// IssueToken signs a token for userID that expires after ttl.
func (b *Backend) IssueToken(userID string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
		b.mu.Lock()
		b.hits[key]++
		b.lastHeaders[key] = r.Header.Clone()
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

func withProfile(ctx context.Context, p auth.UserProfile) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func profileFrom(r *http.Request) auth.UserProfile {
	p, _ := r.Context().Value(ctxKey{}).(auth.UserProfile)
	return p
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Missing Authorization Header"})
			return
		}
		userID, err := b.resolve(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": err.Error()})
			return
		}
		b.mu.Lock()
		a, found := b.accounts[userID]
		var p auth.UserProfile
		if found {
			p = a.profile
		}
		b.mu.Unlock()
		if !found {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "unknown subject"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withProfile(r.Context(), p)))
	})
}

func (b *Backend) resolve(token string) (string, error) {
	b.mu.Lock()
	revoked := b.revoked[token]
	userID, static := b.static[token]
	b.mu.Unlock()
	if revoked {
		return "", errors.New("token has been revoked")
	}
	if static {
		return userID, nil
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !profileFrom(r).Role.IsAdmin() {
			fail(w, http.StatusForbidden, "Admins only!")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		fail(w, http.StatusBadRequest, "Request body must be JSON.")
		return
	}
	if creds.UserID == "" || creds.Password == "" {
		fail(w, http.StatusBadRequest, "Userid and password are required.")
		return
	}
	b.mu.Lock()
	a, ok := b.accounts[creds.UserID]
	var token string
	for t, u := range b.static {
		if u == creds.UserID && !b.revoked[t] {
			token = t
		}
	}
	b.mu.Unlock()
	if !ok || a.password != creds.Password {
		fail(w, http.StatusUnauthorized, "Invalid userid or password.")
		return
	}
	if token == "" {
		var err error
		token, err = b.IssueToken(creds.UserID, 24*time.Hour)
		if err != nil {
			fail(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"access_token": token,
		"user":         a.profile,
	})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		fail(w, http.StatusBadRequest, "Request body must be JSON.")
		return
	}
	if reg.UserID == "" || reg.Password == "" || reg.EthereumAddress == "" {
		fail(w, http.StatusBadRequest, "Userid, password and ethereum_address are required.")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[reg.UserID]; exists {
		fail(w, http.StatusConflict, "Userid already exists.")
		return
	}
	idx := -1
	for i, addr := range b.freeAddrs {
		if addr == reg.EthereumAddress {
			idx = i
		}
	}
	if idx < 0 {
		fail(w, http.StatusBadRequest, "Selected Ethereum address is not available.")
		return
	}
	b.freeAddrs = append(b.freeAddrs[:idx], b.freeAddrs[idx+1:]...)
	b.addUserLocked(reg.UserID, reg.Password, auth.RoleUser, reg.EthereumAddress)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "User registered successfully."})
}

func (b *Backend) handleEthAddresses(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	addrs := append([]string(nil), b.freeAddrs...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "available_addresses": addrs})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	p := profileFrom(r)
	b.mu.Lock()
	_, voted := b.votes[p.UserID]
	p.HasVoted = voted
	for _, a := range b.applications {
		if a.UserID == p.ID {
			p.VoterApplicationStatus = a.Status
			p.IsVoter = a.Status == "approved"
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": p})
}

func (b *Backend) handleApply(w http.ResponseWriter, r *http.Request) {
	p := profileFrom(r)
	if p.Role.IsAdmin() {
		fail(w, http.StatusForbidden, "Admin users cannot apply to be voters.")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.applications {
		if a.UserID == p.ID && a.Status != "rejected" {
			fail(w, http.StatusConflict, fmt.Sprintf("User already has a '%s' voter application.", a.Status))
			return
		}
	}
	b.nextID++
	app := application{ID: b.nextID, UserID: p.ID, Status: "pending"}
	b.applications = append(b.applications, app)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"message":     "Voter application submitted successfully.",
		"application": app,
	})
}

func (b *Backend) handleCandidates(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.candidates))
	for i, c := range b.candidates {
		out = append(out, map[string]any{
			"id_on_chain":           i,
			"name":                  c.Name,
			"vote_count_from_chain": c.Votes,
			"description":           c.Description,
			"slogan":                c.Slogan,
			"image_url":             c.ImageURL,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "candidates": out})
}

func (b *Backend) phase() (string, int) {
	switch {
	case b.ended:
		return "Concluded", 2
	case b.started:
		return "Active", 1
	default:
		return "Pending", 0
	}
}

func (b *Backend) handleVotingStatus(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	phase, code := b.phase()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"phase":      phase,
		"phase_code": code,
		"isStarted":  b.started,
		"isEnded":    b.ended,
		"startTime":  b.start,
		"endTime":    b.end,
	})
}

func (b *Backend) handleDeadline(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "votingDeadlineTimestamp": b.end})
}

func (b *Backend) handleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index *int `json:"candidate_index_on_chain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		fail(w, http.StatusBadRequest, "candidate_index_on_chain is required.")
		return
	}
	p := profileFrom(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started || b.ended {
		fail(w, http.StatusBadRequest, "Voting is not active.")
		return
	}
	if *req.Index < 0 || *req.Index >= len(b.candidates) {
		fail(w, http.StatusBadRequest, "Invalid candidate index.")
		return
	}
	if _, voted := b.votes[p.UserID]; voted {
		fail(w, http.StatusConflict, "You have already voted.")
		return
	}
	b.votes[p.UserID] = *req.Index
	b.candidates[*req.Index].Votes++
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Vote cast successfully.", "txHash": "0xvote"})
}

func (b *Backend) handleRevokeVote(w http.ResponseWriter, r *http.Request) {
	p := profileFrom(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, voted := b.votes[p.UserID]
	if !voted {
		fail(w, http.StatusNotFound, "No vote found to revoke.")
		return
	}
	delete(b.votes, p.UserID)
	b.candidates[idx].Votes--
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Vote successfully revoked on blockchain and removed from database.",
		"txHash":      "0xrevoke",
		"blockNumber": 7,
	})
}

func (b *Backend) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	var c candidate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Name == "" {
		fail(w, http.StatusBadRequest, "Candidate name is required.")
		return
	}
	b.mu.Lock()
	b.candidates = append(b.candidates, c)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("Candidate '%s' added successfully.", c.Name),
		"txHash":    "0xadd",
		"candidate": c,
	})
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		fail(w, http.StatusBadRequest, "No file part.")
		return
	}
	defer file.Close()
	if _, err := io.Copy(io.Discard, file); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	name := fmt.Sprintf("%d_%s", time.Now().Unix(), header.Filename)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Image uploaded.",
		"image_url": "/api/admin/uploads/candidates/" + name,
		"filename":  name,
	})
}

func (b *Backend) handleApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	b.mu.Lock()
	var matched []application
	for _, a := range b.applications {
		if status == "" || a.Status == status {
			matched = append(matched, a)
		}
	}
	b.mu.Unlock()

	pages := (len(matched) + perPage - 1) / perPage
	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"applications": matched[start:end],
		"total":        len(matched),
		"pages":        pages,
		"current_page": page,
	})
}

func (b *Backend) handleReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid application id.")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "New status ('approved' or 'rejected') is required.")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.applications {
		if b.applications[i].ID == id {
			if b.applications[i].Status != "pending" {
				fail(w, http.StatusBadRequest, "Application has already been reviewed.")
				return
			}
			b.applications[i].Status = req.Status
			writeJSON(w, http.StatusOK, map[string]any{
				"success":     true,
				"message":     fmt.Sprintf("Voter application %d has been %s.", id, req.Status),
				"application": b.applications[i],
			})
			return
		}
	}
	fail(w, http.StatusNotFound, fmt.Sprintf("Voter application with ID %d not found.", id))
}

func (b *Backend) handlePeriod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start int64 `json:"start_time_timestamp"`
		End   int64 `json:"end_time_timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "start_time_timestamp and end_time_timestamp are required and must be integers.")
		return
	}
	b.mu.Lock()
	b.start, b.end = req.Start, req.End
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Voting period set successfully.", "txHash": "0xperiod"})
}

func (b *Backend) handleStart(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.candidates) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Not enough candidates."})
		return
	}
	b.started = true
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Voting started successfully.", "txHash": "0xstart"})
}

func (b *Backend) handleEnd(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Voting ended successfully.", "txHash": "0xend"})
}

func (b *Backend) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		End int64 `json:"new_end_time_timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "new_end_time_timestamp is required.")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if req.End <= b.end {
		fail(w, http.StatusBadRequest, "New end time must be after the current end time.")
		return
	}
	b.end = req.End
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Voting deadline extended.", "txHash": "0xextend"})
}

func (b *Backend) handleContractStatus(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	phase, code := b.phase()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":                 true,
		"phase":                   phase,
		"phase_code":              code,
		"start_time":              b.start,
		"end_time":                b.end,
		"current_block_timestamp": time.Now().Unix(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

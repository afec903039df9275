package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleIsAdmin(t *testing.T) {
	assert.True(t, RoleAdmin.IsAdmin())
	assert.False(t, RoleUser.IsAdmin())
	assert.False(t, Role("superuser").IsAdmin())
	assert.False(t, Role("").IsAdmin())
}

func TestUserProfileDecodesServerShape(t *testing.T) {
	raw := `{"id":7,"userid":"alice","role":"user","ethereum_address":"0xabc",
		"is_voter":true,"voter_is_registered_on_chain":true,"has_voted":false,
		"voter_application_status":"approved","created_at":"2025-01-01T00:00:00"}`
	var p UserProfile
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, RoleUser, p.Role)
	assert.True(t, p.IsVoter)
	assert.True(t, p.VoterOnChain)
	assert.Equal(t, "approved", p.VoterApplicationStatus)
}

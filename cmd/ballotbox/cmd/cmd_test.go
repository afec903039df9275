package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ballotbox/auth"
	"github.com/jmcleod/ballotbox/internal/testutil"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T, be *testutil.Backend) *cli {
	t.Helper()
	return &cli{t: t, base: []string{"--api", be.URL(), "--state-dir", t.TempDir(), "--store", "bolt"}}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(append([]string{}, args...), c.base...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1700000000", 1700000000, false},
		{"2025-01-01T00:00:00Z", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), false},
		{"", 0, true},
		{"tomorrow", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionCommands(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	c := newCLI(t, be)

	out := c.mustRun("whoami")
	assert.Contains(t, out, "Not signed in.")

	_, err := c.run("login", "-u", "alice", "-p", "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid userid or password.", err.Error())

	out = c.mustRun("login", "-u", "alice", "-p", "pw")
	assert.Contains(t, out, "Signed in as alice (user).")

	out = c.mustRun("whoami")
	assert.Contains(t, out, "alice")

	out = c.mustRun("open", "/admin/voting")
	assert.Contains(t, out, "-> Home (/) [redirect]")

	out = c.mustRun("open", "/login")
	assert.Contains(t, out, "-> Home (/) [redirect]")

	_, err = c.run("admin", "voting", "start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "administrator session required")

	out = c.mustRun("logout")
	assert.Contains(t, out, "Signed out.")

	out = c.mustRun("open", "/")
	assert.Contains(t, out, "-> Login (/login) [force-logout]")
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	c := newCLI(t, be)

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader("pw\n"))
	rootCmd.SetArgs(append([]string{"login", "-u", "alice"}, c.base...))
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Signed in as alice")
}

func TestRevokedTokenSignsOut(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	be.UseStaticToken("alice", "T")
	c := newCLI(t, be)

	c.mustRun("login", "-u", "alice", "-p", "pw")
	be.Revoke("T")

	_, err := c.run("whoami", "--refresh")
	require.Error(t, err)
	assert.Equal(t, "session expired; signed out", err.Error())

	out := c.mustRun("whoami")
	assert.Contains(t, out, "Not signed in.")
}

func TestAdminAndVotingCommands(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("root", "pw", auth.RoleAdmin)
	be.AddUser("erin", "pw", auth.RoleUser)
	admin := newCLI(t, be)
	voter := newCLI(t, be)

	admin.mustRun("login", "-u", "root", "-p", "pw")
	out := admin.mustRun("admin", "candidate", "add", "--name", "Ada", "--slogan", "Compute")
	assert.Contains(t, out, "Candidate 'Ada' added successfully.")
	admin.mustRun("admin", "voting", "period", "--start", "100", "--end", "200")
	admin.mustRun("admin", "voting", "start")

	voter.mustRun("login", "-u", "erin", "-p", "pw")
	out = voter.mustRun("apply")
	assert.Contains(t, out, "Voter application submitted successfully.")

	out = admin.mustRun("admin", "applications", "list")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "page 1 of 1 (1 total)")

	out = voter.mustRun("candidates")
	assert.Contains(t, out, "Ada")

	out = voter.mustRun("vote", "0")
	assert.Contains(t, out, "Vote cast successfully.")

	out = voter.mustRun("status", "--json")
	var st electionStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "Active", st.Status.Phase)
	assert.Equal(t, int64(200), st.Deadline)

	out = voter.mustRun("revoke")
	assert.Contains(t, out, "revoked")

	_, err := voter.run("vote", "-1")
	require.Error(t, err)

	out = admin.mustRun("admin", "voting", "status", "--json")
	assert.Contains(t, out, `"phase": "Active"`)
}

func TestVersion(t *testing.T) {
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--json"})
	require.NoError(t, rootCmd.Execute())
	assert.JSONEq(t, `{"version":"dev"}`, out.String())
}

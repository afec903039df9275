package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession mimics the session's logout: it clears itself and sends the
// router to the login view unless it is already there.
type fakeSession struct {
	viewer
	r       *Router
	logouts int
}

func (f *fakeSession) Logout() {
	f.logouts++
	f.viewer = viewer{}
	if f.r.Current() != Login {
		_ = f.r.Push(Login)
	}
}

func newTestRouter(t *testing.T, v viewer) (*Router, *fakeSession) {
	t.Helper()
	r, err := New(DefaultRoutes())
	require.NoError(t, err)
	s := &fakeSession{viewer: v, r: r}
	r.Bind(s)
	return r, s
}

func TestNavigateAllow(t *testing.T) {
	r, _ := newTestRouter(t, member)

	res, err := r.Navigate(Voting)
	require.NoError(t, err)
	assert.Equal(t, Allow, res.Outcome)
	assert.Equal(t, Voting, res.Route)
	assert.Equal(t, Voting, r.Current())
}

func TestNavigateAdminRouteAsUserRedirectsHome(t *testing.T) {
	r, s := newTestRouter(t, member)

	res, err := r.Navigate(AdminCandidates)
	require.NoError(t, err)
	assert.Equal(t, Redirect, res.Outcome)
	assert.Equal(t, Home, res.Route)
	assert.Zero(t, s.logouts, "a legitimate session must not be logged out")
}

func TestNavigateGuestRouteWhileAuthenticatedRedirectsHome(t *testing.T) {
	r, _ := newTestRouter(t, admin)

	res, err := r.Navigate(Register)
	require.NoError(t, err)
	assert.Equal(t, Redirect, res.Outcome)
	assert.Equal(t, Home, r.Current())
}

func TestNavigateProtectedRouteAnonymousForcesLogout(t *testing.T) {
	r, s := newTestRouter(t, anonymous)

	res, err := r.Navigate(Home)
	require.NoError(t, err)
	assert.Equal(t, ForceLogout, res.Outcome)
	assert.Equal(t, Login, res.Route)
	assert.Equal(t, 1, s.logouts)
	assert.Equal(t, []string{Login}, r.History())
}

func TestRedirectOntoCurrentViewSettles(t *testing.T) {
	r, s := newTestRouter(t, member)
	require.NoError(t, r.Push(Home))

	res, err := r.Navigate(AdminVoting)
	require.NoError(t, err)
	assert.Equal(t, Redirect, res.Outcome)
	assert.Equal(t, Home, res.Route)
	assert.Equal(t, []string{Home}, r.History())
	assert.Zero(t, s.logouts)

	res, err = r.NavigatePath("/no/such/view")
	require.NoError(t, err)
	assert.Equal(t, Redirect, res.Outcome)
	assert.Equal(t, Home, res.Route)
}

func TestNavigateDuplicate(t *testing.T) {
	r, _ := newTestRouter(t, anonymous)

	require.NoError(t, r.Push(Login))
	err := r.Push(Login)
	assert.ErrorIs(t, err, ErrNavigationDuplicated)
	assert.Equal(t, []string{Login}, r.History())
}

func TestNavigatePathUnknownFallsBackToLogin(t *testing.T) {
	r, _ := newTestRouter(t, anonymous)

	res, err := r.NavigatePath("/does/not/exist")
	require.NoError(t, err)
	assert.Equal(t, Redirect, res.Outcome)
	assert.Equal(t, Login, res.Route)
}

func TestNavigatePathUnknownWhileAuthenticatedLandsHome(t *testing.T) {
	r, _ := newTestRouter(t, member)

	res, err := r.NavigatePath("/nowhere")
	require.NoError(t, err)
	assert.Equal(t, Redirect, res.Outcome)
	assert.Equal(t, Home, res.Route)
}

func TestNavigatePathKnown(t *testing.T) {
	r, _ := newTestRouter(t, admin)

	res, err := r.NavigatePath("/admin/voting")
	require.NoError(t, err)
	assert.Equal(t, Allow, res.Outcome)
	assert.Equal(t, AdminVoting, res.Route)
}

func TestNavigateUnknownName(t *testing.T) {
	r, _ := newTestRouter(t, member)

	_, err := r.Navigate("Nope")
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestNavigateUnbound(t *testing.T) {
	r, err := New(DefaultRoutes())
	require.NoError(t, err)

	_, err = r.Navigate(Login)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestNewRejectsBadTables(t *testing.T) {
	_, err := New([]Route{{Name: Login, Path: "/login"}, {Name: Login, Path: "/other"}})
	assert.Error(t, err)

	_, err = New([]Route{{Name: Login, Path: "/login"}, {Name: Home, Path: "/login"}})
	assert.Error(t, err)

	_, err = New([]Route{{Name: Home, Path: "/"}})
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestRedirectLoopIsBounded(t *testing.T) {
	// Home guarded as guest-only sends an authenticated viewer back to Home.
	routes := []Route{
		{Name: Login, Path: "/login", Policy: GuestOnly},
		{Name: Home, Path: "/", Policy: GuestOnly},
	}
	r, err := New(routes)
	require.NoError(t, err)
	r.Bind(&fakeSession{viewer: member, r: r})

	_, err = r.Navigate(Home)
	assert.ErrorIs(t, err, ErrRedirectLoop)
}

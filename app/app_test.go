package app_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/ballotbox/api"
	"github.com/jmcleod/ballotbox/app"
	"github.com/jmcleod/ballotbox/auth"
	"github.com/jmcleod/ballotbox/config"
	"github.com/jmcleod/ballotbox/internal/testutil"
	"github.com/jmcleod/ballotbox/router"
	"github.com/jmcleod/ballotbox/session"
)

func testConfig(t *testing.T, be *testutil.Backend, store config.StoreKind) config.Config {
	t.Helper()
	cfg := config.Config{
		APIBaseURL: be.URL(),
		StateDir:   t.TempDir(),
		Store:      store,
	}
	cfg.Sanitize()
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	a, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func countRoute(history []string, name string) int {
	n := 0
	for _, h := range history {
		if h == name {
			n++
		}
	}
	return n
}

func TestLoginNavigatesHomeAndGuardsAdminViews(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	be.UseStaticToken("alice", "T")

	a := newApp(t, testConfig(t, be, config.StoreMemory))

	require.NoError(t, a.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "pw"}))
	assert.Equal(t, "T", a.Store.Token())
	assert.Equal(t, router.Home, a.Router.Current())
	assert.True(t, a.Session.IsAuthenticated())
	assert.False(t, a.Session.IsAdmin())

	res, err := a.Open("/admin/candidates")
	require.NoError(t, err)
	assert.Equal(t, router.Redirect, res.Outcome)
	assert.Equal(t, router.Home, a.Router.Current())

	res, err = a.Open("/vote")
	require.NoError(t, err)
	assert.Equal(t, router.Allow, res.Outcome)

	res, err = a.Open("/admin/voting")
	require.NoError(t, err)
	assert.Equal(t, router.Redirect, res.Outcome)
	assert.Equal(t, router.Home, res.Route)

	_, err = a.API.CurrentUser(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Bearer T", be.LastHeaders(http.MethodGet, "/auth/me").Get("Authorization"))
}

func TestAnonymousProtectedViewForcesLogout(t *testing.T) {
	be := testutil.NewBackend(t)
	a := newApp(t, testConfig(t, be, config.StoreMemory))

	res, err := a.Open("/")
	require.NoError(t, err)
	assert.Equal(t, router.ForceLogout, res.Outcome)
	assert.Equal(t, router.Login, a.Router.Current())

	res, err = a.Open("/no/such/page")
	require.NoError(t, err)
	assert.Equal(t, router.Redirect, res.Outcome)
	assert.Equal(t, router.Login, res.Route)
	assert.Equal(t, []string{router.Login}, a.Router.History())
}

func TestConcurrentUnauthorizedNavigatesToLoginOnce(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	a := newApp(t, testConfig(t, be, config.StoreMemory))

	require.NoError(t, a.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "pw"}))
	be.Revoke(a.Store.Token())

	var g errgroup.Group
	for range 2 {
		g.Go(func() error {
			_, err := a.API.Candidates(context.Background())
			if err != nil {
				return err
			}
			_, err = a.API.CurrentUser(context.Background())
			if !assert.ErrorIs(t, err, api.ErrUnauthorized) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	history := a.Router.History()
	assert.Equal(t, 1, countRoute(history, router.Login))
	assert.Equal(t, router.Login, history[len(history)-1])
	assert.False(t, a.Session.IsAuthenticated())
	assert.Empty(t, a.Store.Token())
}

func TestRefreshUnauthorizedLogsOut(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	a := newApp(t, testConfig(t, be, config.StoreMemory))

	require.NoError(t, a.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "pw"}))
	be.Revoke(a.Store.Token())

	err := a.Session.RefreshProfile(t.Context())
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	snap := a.Session.Snapshot()
	assert.Empty(t, snap.Credential)
	assert.Nil(t, snap.Profile)
	assert.Equal(t, session.PhaseAnonymous, snap.Phase)
	assert.Equal(t, router.Login, a.Router.Current())

	token, profile, err := a.Store.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Nil(t, profile)
}

func TestFailedLoginStoresNothing(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	a := newApp(t, testConfig(t, be, config.StoreMemory))

	err := a.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "wrong"})
	require.Error(t, err)
	snap := a.Session.Snapshot()
	assert.Empty(t, snap.Credential)
	assert.Equal(t, session.PhaseError, snap.Phase)
	assert.Equal(t, "Invalid userid or password.", snap.LastError)
	assert.Empty(t, a.Store.Token())
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	a := newApp(t, testConfig(t, be, config.StoreMemory))
	require.NoError(t, a.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "pw"}))

	be.SetRole("alice", auth.RoleAdmin)
	require.NoError(t, a.Session.RefreshProfile(t.Context()))
	assert.True(t, a.Session.IsAdmin())

	res, err := a.Open("/admin/applications")
	require.NoError(t, err)
	assert.Equal(t, router.Allow, res.Outcome)
	assert.Equal(t, router.AdminApplications, a.Router.Current())
}

func TestBoltSessionSurvivesRestart(t *testing.T) {
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	cfg := testConfig(t, be, config.StoreBolt)
	cfg.SealSecret = "disk-secret"

	first, err := app.New(cfg)
	require.NoError(t, err)
	require.NoError(t, first.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "pw"}))
	token := first.Store.Token()
	require.NoError(t, first.Close())

	second := newApp(t, cfg)
	assert.True(t, second.Session.IsAuthenticated())
	assert.Equal(t, token, second.Store.Token())
	user, ok := second.Session.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "alice", user.UserID)

	second.Session.Logout()
	require.NoError(t, second.Close())

	third := newApp(t, cfg)
	assert.False(t, third.Session.IsAuthenticated())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	cfg := testConfig(t, be, config.StoreRedis)
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Prefix = "bb:"

	a := newApp(t, cfg)
	require.NoError(t, a.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "pw"}))
	assert.True(t, mr.Exists("bb:session:KV:accessToken"))

	b := newApp(t, cfg)
	assert.True(t, b.Session.IsAuthenticated())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BALLOTBOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BALLOTBOX_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}
	be := testutil.NewBackend(t)
	be.AddUser("alice", "pw", auth.RoleUser)
	cfg := testConfig(t, be, config.StorePostgres)
	cfg.PostgresDSN = dsn

	a := newApp(t, cfg)
	a.Session.Logout()
	require.NoError(t, a.Session.Login(t.Context(), auth.Credentials{UserID: "alice", Password: "pw"}))

	b := newApp(t, cfg)
	assert.True(t, b.Session.IsAuthenticated())
	b.Session.Logout()
	assert.False(t, b.Session.IsAuthenticated())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := app.New(config.Config{APIBaseURL: "http://x/api", Store: "sqlite"})
	require.Error(t, err)

	_, err = app.New(config.Config{APIBaseURL: "mailto:x", Store: config.StoreMemory})
	require.Error(t, err)
}

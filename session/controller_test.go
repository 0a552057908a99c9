// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidcauth/rp/identity"
	"github.com/oidcauth/rp/oidc"
)

// fakeSessions is an in-memory SessionManager double.
type fakeSessions struct {
	userID      string
	established []*identity.User
	cleared     int
}

func (s *fakeSessions) Establish(w http.ResponseWriter, r *http.Request, u *identity.User) error {
	s.userID = u.ID
	s.established = append(s.established, u)
	return nil
}

func (s *fakeSessions) Clear(w http.ResponseWriter, r *http.Request) error {
	s.userID = ""
	s.cleared++
	return nil
}

func (s *fakeSessions) CurrentUserID(r *http.Request) (string, bool) {
	return s.userID, s.userID != ""
}

type testHarness struct {
	ctrl     *Controller
	provider *oidc.TestProvider
	states   *oidc.StateStore
	store    *identity.MemStore
	sessions *fakeSessions
}

func startTestHarness(t *testing.T, opt ...Option) *testHarness {
	t.Helper()
	require := require.New(t)

	tp := oidc.StartTestProvider(t)
	tp.SetClientCreds("test-rp", "fido")
	tp.SetExpectedAuthCode("test-code")
	tp.SetAllowedRedirectURIs([]string{"https://rp.example.com/callback"})
	tp.SetCustomClaims(map[string]interface{}{
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"name":               "Alice Eve Smith",
	})

	cfg := tp.TestConfig(t, "test-rp", "fido", "https://rp.example.com/callback")
	client, err := oidc.NewClient(cfg)
	require.NoError(err)
	t.Cleanup(client.Done)

	states := oidc.NewStateStore()
	t.Cleanup(states.Stop)

	store := identity.NewMemStore(identity.MetaSubjectIdentity)
	resolver, err := identity.NewResolver(store)
	require.NoError(err)

	sessions := &fakeSessions{}
	ctrl, err := NewController(client, states, resolver, sessions, opt...)
	require.NoError(err)

	return &testHarness{
		ctrl:     ctrl,
		provider: tp,
		states:   states,
		store:    store,
		sessions: sessions,
	}
}

// pendingState mints a state, registers it as pending, and tells the test
// provider to embed its nonce in issued id_tokens.
func (h *testHarness) pendingState(t *testing.T) *oidc.State {
	t.Helper()
	st, err := oidc.NewState(oidc.DefaultStateTimeLimit)
	require.NoError(t, err)
	require.NoError(t, h.states.Add(st))
	h.provider.SetExpectedAuthNonce(st.Nonce())
	return st
}

func loginError(t *testing.T, w *httptest.ResponseRecorder) (code, msg string) {
	t.Helper()
	require := require.New(t)
	require.Equal(http.StatusFound, w.Code)
	u, err := url.Parse(w.Header().Get("Location"))
	require.NoError(err)
	return u.Query().Get(LoginErrorParam), u.Query().Get(LoginMessageParam)
}

func TestController_HandleLogin(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	h := startTestHarness(t)

	w := httptest.NewRecorder()
	h.ctrl.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/login/oidc", nil))

	require.Equal(http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(err)
	assert.Equal(h.provider.Addr()+"/auth", loc.Scheme+"://"+loc.Host+loc.Path)
	assert.NotEmpty(loc.Query().Get("state"))
	assert.NotEmpty(loc.Query().Get("nonce"))
	assert.Equal("code", loc.Query().Get("response_type"))
	assert.Contains(loc.Query().Get("scope"), "openid")
	assert.Equal(1, h.states.Len())
}

func TestController_HandleCallback(t *testing.T) {
	t.Run("happy-path", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		st := h.pendingState(t)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil)
		h.ctrl.HandleCallback(w, r)

		require.Equal(http.StatusFound, w.Code)
		require.Equal("/", w.Header().Get("Location"))

		// account provisioned and bound to the asserted identity
		require.Len(h.sessions.established, 1)
		u := h.sessions.established[0]
		assert.Equal("alice", u.Username)
		assert.Equal("alice@example.com", u.Email)
		identityVal, err := h.store.GetUserMeta(context.Background(), u.ID, identity.MetaSubjectIdentity)
		require.NoError(err)
		assert.Equal("alice", identityVal)
		managed, err := h.store.GetUserMeta(context.Background(), u.ID, identity.MetaManagedUser)
		require.NoError(err)
		assert.NotEmpty(managed)

		// last-login metadata persisted
		raw, err := h.store.GetUserMeta(context.Background(), u.ID, MetaLastTokenResponse)
		require.NoError(err)
		var resp oidc.Response
		require.NoError(json.Unmarshal([]byte(raw), &resp))
		assert.NotEmpty(resp.IDToken)
		assert.NotEmpty(resp.AccessToken)
		idClaims, err := h.store.GetUserMeta(context.Background(), u.ID, MetaLastIDTokenClaims)
		require.NoError(err)
		assert.Contains(idClaims, `"nonce"`)
		userClaims, err := h.store.GetUserMeta(context.Background(), u.ID, MetaLastUserClaims)
		require.NoError(err)
		assert.Contains(userClaims, "alice@example.com")

		// tracking cookie carries the asserted identity and lives as long
		// as the access token
		var tracking *http.Cookie
		for _, ck := range w.Result().Cookies() {
			if ck.Name == DefaultTrackingCookieName {
				tracking = ck
			}
		}
		require.NotNil(tracking)
		assert.Equal("alice", tracking.Value)
		assert.Equal(3600, tracking.MaxAge)
		assert.True(tracking.HttpOnly)
	})
	t.Run("second-login-reuses-account", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)

		for i := 0; i < 2; i++ {
			st := h.pendingState(t)
			w := httptest.NewRecorder()
			h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil))
			require.Equal("/", w.Header().Get("Location"))
		}
		require.Len(h.sessions.established, 2)
		assert.Equal(h.sessions.established[0].ID, h.sessions.established[1].ID)
		exists, err := h.store.UsernameExists(context.Background(), "alice2")
		require.NoError(err)
		assert.False(exists, "re-login must not provision a second account")
	})
	t.Run("state-cannot-be-replayed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		st := h.pendingState(t)
		target := "/callback?state=" + st.ID() + "&code=test-code"

		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal("/", w.Header().Get("Location"))

		w = httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, target, nil))
		code, _ := loginError(t, w)
		assert.Equal(string(oidc.ErrInvalidAuthState), code)
	})
	t.Run("unknown-state", func(t *testing.T) {
		assert := assert.New(t)
		h := startTestHarness(t)
		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state=bogus&code=test-code", nil))
		code, _ := loginError(t, w)
		assert.Equal(string(oidc.ErrInvalidAuthState), code)
	})
	t.Run("provider-error", func(t *testing.T) {
		assert := assert.New(t)
		h := startTestHarness(t)
		st := h.pendingState(t)
		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet,
			"/callback?state="+st.ID()+"&error=access_denied&error_description=user+said+no", nil))
		code, msg := loginError(t, w)
		assert.Equal(string(oidc.ErrIdpError), code)
		assert.Equal("user said no", msg)
	})
	t.Run("missing-code", func(t *testing.T) {
		assert := assert.New(t)
		h := startTestHarness(t)
		st := h.pendingState(t)
		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID(), nil))
		code, _ := loginError(t, w)
		assert.Equal(string(oidc.ErrMissingCode), code)
	})
	t.Run("wrong-code", func(t *testing.T) {
		assert := assert.New(t)
		h := startTestHarness(t)
		st := h.pendingState(t)
		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=not-the-code", nil))
		code, _ := loginError(t, w)
		assert.Equal(string(oidc.ErrTokenRequestFailed), code)
	})
	t.Run("nonce-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		st, err := oidc.NewState(oidc.DefaultStateTimeLimit)
		require.NoError(err)
		h.states.Add(st)
		h.provider.SetExpectedAuthNonce("some-other-flow")

		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil))
		code, _ := loginError(t, w)
		assert.Equal(string(oidc.ErrInvalidNonce), code)
		assert.Empty(h.sessions.established)
	})
	t.Run("creation-vetoed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		resolver, err := identity.NewResolver(h.store, identity.WithCreationVeto(
			func(context.Context, *oidc.UserClaims) bool { return false },
		))
		require.NoError(err)
		h.ctrl.resolver = resolver
		st := h.pendingState(t)

		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil))
		code, _ := loginError(t, w)
		assert.Equal(string(oidc.ErrCreationNotAuthorized), code)
		assert.Empty(h.sessions.established)
	})
	t.Run("on-login-fires", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var gotUser *identity.User
		var gotToken *oidc.Token
		h := startTestHarness(t, WithOnLogin(func(_ context.Context, u *identity.User, tk *oidc.Token) {
			gotUser, gotToken = u, tk
		}))
		st := h.pendingState(t)

		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil))
		require.Equal("/", w.Header().Get("Location"))
		require.NotNil(gotUser)
		assert.Equal("alice", gotUser.Username)
		require.NotNil(gotToken)
		assert.NotEmpty(gotToken.IDToken())
	})
}

func TestController_HandleLogout(t *testing.T) {
	login := func(t *testing.T, h *testHarness) *identity.User {
		t.Helper()
		st := h.pendingState(t)
		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil))
		require.Equal(t, "/", w.Header().Get("Location"))
		require.Len(t, h.sessions.established, 1)
		return h.sessions.established[0]
	}

	t.Run("ends-upstream-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		login(t, h)

		w := httptest.NewRecorder()
		h.ctrl.HandleLogout(w, httptest.NewRequest(http.MethodGet, "/logout", nil))

		require.Equal(http.StatusFound, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(err)
		assert.Equal("/", loc.Path)
		assert.Equal("200", loc.Query().Get(LogoutStatusParam))
		assert.Len(h.provider.EndSessionTokens(), 1)
		assert.Equal(1, h.sessions.cleared)
		assert.Empty(h.sessions.userID)
	})
	t.Run("local-only", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		login(t, h)

		w := httptest.NewRecorder()
		h.ctrl.HandleLogout(w, httptest.NewRequest(http.MethodGet, "/logout?logout=local", nil))

		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(err)
		assert.Empty(loc.Query().Get(LogoutStatusParam))
		assert.Empty(h.provider.EndSessionTokens())
		assert.Equal(1, h.sessions.cleared)
	})
	t.Run("upstream-failure-still-logs-out", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		login(t, h)
		h.provider.SetEndSessionStatus(http.StatusBadGateway)

		w := httptest.NewRecorder()
		h.ctrl.HandleLogout(w, httptest.NewRequest(http.MethodGet, "/logout", nil))

		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(err)
		assert.Equal("502", loc.Query().Get(LogoutStatusParam))
		assert.Equal(1, h.sessions.cleared)
	})
	t.Run("redirect-target-validated", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)

		w := httptest.NewRecorder()
		h.ctrl.HandleLogout(w, httptest.NewRequest(http.MethodGet,
			"/logout?logout=local&url=https%3A%2F%2Fevil.example.com%2F", nil))
		assert.Equal("/", w.Header().Get("Location"))

		w = httptest.NewRecorder()
		h.ctrl.HandleLogout(w, httptest.NewRequest(http.MethodGet,
			"/logout?logout=local&url=%2Fgoodbye", nil))
		assert.Equal("/goodbye", w.Header().Get("Location"))
		require.Equal(http.StatusFound, w.Code)

		// redirect_to is accepted as an alias when url is absent
		w = httptest.NewRecorder()
		h.ctrl.HandleLogout(w, httptest.NewRequest(http.MethodGet,
			"/logout?logout=local&redirect_to=%2Fsee-you", nil))
		assert.Equal("/see-you", w.Header().Get("Location"))
	})
	t.Run("anonymous-logout", func(t *testing.T) {
		assert := assert.New(t)
		h := startTestHarness(t)

		w := httptest.NewRecorder()
		h.ctrl.HandleLogout(w, httptest.NewRequest(http.MethodGet, "/logout", nil))
		assert.Equal("/", w.Header().Get("Location"))
		assert.Empty(h.provider.EndSessionTokens())
	})
}

// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidcauth/rp/oidc"
)

func TestController_Gate(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("anonymous-privacy-on", func(t *testing.T) {
		tests := []struct {
			name       string
			target     string
			wantStatus int
			wantLoc    string
		}{
			{"private-page-redirects", "/private", http.StatusFound, DefaultLoginURL},
			{"login-page-passes", DefaultLoginURL, http.StatusOK, ""},
			{"callback-passes", DefaultCallbackPath + "?state=x&code=y", http.StatusOK, ""},
			{"login-error-passes", "/private?login-error=idp-error&message=x", http.StatusOK, ""},
			{"logged-out-passes", "/private?logged-out=1", http.StatusOK, ""},
			{"root-redirects", "/", http.StatusFound, DefaultLoginURL},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				assert := assert.New(t)
				h := startTestHarness(t, WithEnforcePrivacy())
				w := httptest.NewRecorder()
				h.ctrl.Gate(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.target, nil))
				assert.Equal(tt.wantStatus, w.Code)
				if tt.wantLoc != "" {
					assert.Equal(tt.wantLoc, w.Header().Get("Location"))
				}
			})
		}
	})
	t.Run("anonymous-privacy-off-passes", func(t *testing.T) {
		assert := assert.New(t)
		h := startTestHarness(t)
		w := httptest.NewRecorder()
		h.ctrl.Gate(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
		assert.Equal(http.StatusOK, w.Code)
	})
	t.Run("exemption-predicate-passes", func(t *testing.T) {
		assert := assert.New(t)
		h := startTestHarness(t, WithEnforcePrivacy(), WithGateExemption(func(r *http.Request) bool {
			return r.URL.Path == "/healthz"
		}))
		w := httptest.NewRecorder()
		h.ctrl.Gate(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		h.ctrl.Gate(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
		assert.Equal(http.StatusFound, w.Code)
	})
	t.Run("authenticated-with-tracking-cookie", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		st := h.pendingState(t)
		w := httptest.NewRecorder()
		h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil))
		require.Equal("/", w.Header().Get("Location"))

		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		for _, ck := range w.Result().Cookies() {
			r.AddCookie(ck)
		}
		w = httptest.NewRecorder()
		h.ctrl.Gate(okHandler).ServeHTTP(w, r)
		assert.Equal(http.StatusOK, w.Code)
	})
	t.Run("managed-user-without-cookie-is-torn-down", func(t *testing.T) {
		// The torn-identity check does not depend on privacy enforcement.
		tests := []struct {
			name string
			opts []Option
		}{
			{"privacy-on", []Option{WithEnforcePrivacy()}},
			{"privacy-off", nil},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				h := startTestHarness(t, tt.opts...)
				st := h.pendingState(t)
				w := httptest.NewRecorder()
				h.ctrl.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+st.ID()+"&code=test-code", nil))
				require.Equal("/", w.Header().Get("Location"))

				// no cookies on the next request, as if the tracking cookie
				// was expired or deleted out-of-band
				w = httptest.NewRecorder()
				h.ctrl.Gate(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))

				require.Equal(http.StatusFound, w.Code)
				loc, err := url.Parse(w.Header().Get("Location"))
				require.NoError(err)
				assert.Equal(DefaultLoginURL, loc.Path)
				assert.Equal(string(oidc.ErrMismatchIdentity), loc.Query().Get(LoginErrorParam))
				assert.Equal(1, h.sessions.cleared)
			})
		}
	})
	t.Run("unmanaged-user-without-cookie-passes", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		h := startTestHarness(t)
		id, err := h.store.CreateUser(context.Background(), "localadmin", "pw", "")
		require.NoError(err)
		h.sessions.userID = id

		w := httptest.NewRecorder()
		h.ctrl.Gate(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
		assert.Equal(http.StatusOK, w.Code)
		assert.Zero(h.sessions.cleared)
	})
	t.Run("stale-session-for-deleted-user-passes-gate", func(t *testing.T) {
		// A session naming a user the store no longer knows is the host's
		// problem to reject; the gate must not loop on it.
		assert := assert.New(t)
		h := startTestHarness(t)
		h.sessions.userID = "gone"

		w := httptest.NewRecorder()
		h.ctrl.Gate(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
		assert.Equal(http.StatusOK, w.Code)
	})
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/host"
)

func init() { gin.SetMode(gin.TestMode) }

// fakeIdentity maps tokens to users.
type fakeIdentity struct {
	tokens map[string]string
	users  map[string]host.User
	err    error
}

func (f fakeIdentity) ResolveToken(_ context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if token == "" {
		return "", host.ErrNoCredentials
	}
	uid, ok := f.tokens[token]
	if !ok {
		return "", host.ErrUnknownToken
	}
	return uid, nil
}

func (f fakeIdentity) LookupUser(_ context.Context, id string) (host.User, error) {
	u, ok := f.users[id]
	if !ok {
		return host.User{}, host.ErrUnknownUser
	}
	return u, nil
}

func serve(t *testing.T, r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labforge/equipment-mgmt/pkg/types"
	"github.com/matryer/is"
)

func TestAuthenticatorRejectsMissingToken(t *testing.T) {
	is := is.New(t)

	tokenAuth := NewTokenAuth([]byte("test-secret"))
	srv := httptest.NewServer(NewAuthenticator(tokenAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	is.NoErr(err)
	is.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticatorRejectsTokenSignedWithOtherKey(t *testing.T) {
	is := is.New(t)

	other := NewTokenAuth([]byte("other-secret"))
	_, tokenString, err := other.Encode(map[string]any{"sub": "user-01", "role": "OWNER"})
	is.NoErr(err)

	tokenAuth := NewTokenAuth([]byte("test-secret"))
	srv := httptest.NewServer(NewAuthenticator(tokenAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	is.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticatorStoresActorInContext(t *testing.T) {
	is := is.New(t)

	tokenAuth := NewTokenAuth([]byte("test-secret"))
	_, tokenString, err := tokenAuth.Encode(map[string]any{
		"sub": "user-01", "role": "UNIT_OPERATOR", "orgID": "org-01", "unitID": "unit-01",
	})
	is.NoErr(err)

	var actor types.Actor
	var found bool

	srv := httptest.NewServer(NewAuthenticator(tokenAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, found = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	is.Equal(http.StatusOK, resp.StatusCode)
	is.True(found)
	is.Equal("user-01", actor.ID)
	is.Equal(types.RoleUnitOperator, actor.Role)
	is.Equal("org-01", actor.OrgID)
	is.Equal("unit-01", actor.UnitID)
}

func TestActorFromTokenRequiresSubject(t *testing.T) {
	is := is.New(t)

	tokenAuth := NewTokenAuth([]byte("test-secret"))
	token, _, err := tokenAuth.Encode(map[string]any{"role": "OWNER"})
	is.NoErr(err)

	_, err = ActorFromToken(token)
	is.Equal(ErrNoActor, err)
}

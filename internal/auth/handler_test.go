package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fragenkreuzen/backend/internal/database/databasetest"
	"github.com/fragenkreuzen/backend/internal/middleware"
	"github.com/fragenkreuzen/backend/internal/models"
)

func newTestRouter(t *testing.T) (*mux.Router, *Store) {
	t.Helper()
	store := NewStore(databasetest.New(t))
	tokens := NewTokens(testSecret, time.Hour)
	h := NewHandler(store, tokens)

	r := mux.NewRouter()
	r.HandleFunc("/auth/register", h.Register).Methods("POST")
	r.HandleFunc("/auth/login", h.Login).Methods("POST")
	protected := r.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(tokens))
	protected.HandleFunc("/auth/me", h.GetCurrentUser).Methods("GET")
	return r, store
}

func do(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginMe(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, "POST", "/auth/register", "", models.RegisterRequest{
		Email: " Anna@Example.com ", Name: "Anna Keller", Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reg models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "anna@example.com", reg.User.Email)
	assert.Regexp(t, `^annakeller\d{4}$`, reg.User.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, r, "POST", "/auth/login", "", models.LoginRequest{Email: "anna@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = do(t, r, "GET", "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, reg.User.ID, me.ID)
	assert.False(t, me.IsAdmin)
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"missing email", models.RegisterRequest{Name: "A", Password: "longenough"}},
		{"bad email", models.RegisterRequest{Email: "nope", Name: "A", Password: "longenough"}},
		{"short password", models.RegisterRequest{Email: "a@b.de", Name: "A", Password: "short"}},
		{"blank name", models.RegisterRequest{Email: "a@b.de", Name: "   ", Password: "longenough"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, "POST", "/auth/register", "", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	r, _ := newTestRouter(t)
	req := models.RegisterRequest{Email: "dup@example.com", Name: "Dup", Password: "longenough"}

	require.Equal(t, http.StatusCreated, do(t, r, "POST", "/auth/register", "", req).Code)
	assert.Equal(t, http.StatusConflict, do(t, r, "POST", "/auth/register", "", req).Code)
}

func TestEmailIsNormalizedBeforeValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, "POST", "/auth/register", "", models.RegisterRequest{
		Email: "  Jonas.Weber@Example.COM\t", Name: "  Jonas Weber ", Password: "longenough",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "jonas.weber@example.com", reg.User.Email)
	assert.Equal(t, "Jonas Weber", reg.User.Name)

	rec = do(t, r, "POST", "/auth/register", "", models.RegisterRequest{
		Email: "JONAS.WEBER@example.com", Name: "Jonas", Password: "longenough",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, "POST", "/auth/login", "", models.LoginRequest{Email: " Jonas.Weber@EXAMPLE.com ", Password: "longenough"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, "POST", "/auth/login", "", models.LoginRequest{Email: "   ", Password: "longenough"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	r, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, r, "POST", "/auth/register", "", models.RegisterRequest{
		Email: "b@example.com", Name: "B", Password: "longenough",
	}).Code)

	assert.Equal(t, http.StatusUnauthorized, do(t, r, "POST", "/auth/login", "", models.LoginRequest{Email: "b@example.com", Password: "wrongwrong"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, "POST", "/auth/login", "", models.LoginRequest{Email: "ghost@example.com", Password: "longenough"}).Code)
}

func TestMeRequiresToken(t *testing.T) {
	r, _ := newTestRouter(t)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, "GET", "/auth/me", "", nil).Code)
}

func TestIsAdmin(t *testing.T) {
	db := databasetest.New(t)
	store := NewStore(db)
	admin := databasetest.CreateUser(t, db, "admin@example.com", true)
	plain := databasetest.CreateUser(t, db, "plain@example.com", false)

	ok, err := store.IsAdmin(t.Context(), admin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsAdmin(t.Context(), plain)
	require.NoError(t, err)
	assert.False(t, ok)
}

package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-cms/odyssey-cms/internal/auth"
	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage/memory"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
	_ "github.com/odyssey-cms/odyssey-cms/testing"
)

type fixture struct {
	mr      *miniredis.Miniredis
	broker  *broker.Broker
	service *auth.Service
	handler *auth.Handler
	router  chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	system.PasswordCost = bcrypt.MinCost
	b := broker.New()
	require.NoError(t, system.Register(b, entity.NewFactory(b, memory.New(), nil), nil))
	_, err := b.Call(context.Background(), system.Users+".create", map[string]any{
		"email":      "ada@example.com",
		"password":   "correct-horse",
		"privileges": []any{"editor"},
	}, nil)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	store := auth.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	service := auth.NewService(b, store, time.Hour, nil)
	handler := auth.NewHandler(nil, service)

	r := chi.NewRouter()
	r.Route("/api/auth", handler.MountRoutes)
	r.With(handler.Middleware).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		claims := shared.ClaimsFromContext(r.Context())
		if claims == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(claims)
	})
	return &fixture{mr: mr, broker: b, service: service, handler: handler, router: r}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) auth.Session {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session auth.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	return session
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)
	require.NotEmpty(t, session.Token)
	require.Equal(t, []string{"editor"}, session.Claims.Privileges)
	require.True(t, f.mr.Exists("cms:token:"+session.Token))

	rec := f.do(http.MethodGet, "/whoami", "", session.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var claims map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&claims))
	require.Equal(t, "ada@example.com", claims["email"])
	require.Equal(t, []any{"editor"}, claims["privileges"])
}

func TestLoginEventsOmitPasswordHash(t *testing.T) {
	f := newFixture(t)
	var leaked []string
	f.broker.On("*", func(ctx context.Context, event string, payload any) error {
		docs, _ := payload.([]map[string]any)
		for _, doc := range docs {
			if _, ok := doc["password"]; ok {
				leaked = append(leaked, event)
			}
		}
		if doc, ok := payload.(map[string]any); ok {
			if _, ok := doc["password"]; ok {
				leaked = append(leaked, event)
			}
		}
		return nil
	})

	session, err := f.service.Login(context.Background(), "ada@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Empty(t, leaked)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/login", `{"email":"nobody@example.com","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/login", `{"email":"not-an-email"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "email email")

	rec = f.do(http.MethodPost, "/api/auth/login", `{`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareRejectsUnknownTokens(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/whoami", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/whoami", "", "forged")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokensExpire(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	f.mr.FastForward(2 * time.Hour)
	_, err := f.service.Resolve(context.Background(), session.Token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	rec := f.do(http.MethodPost, "/api/auth/logout", "", session.Token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/whoami", "", session.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/logout", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMemoryStore(t *testing.T) {
	store := auth.NewMemoryStore()
	ctx := context.Background()
	claims := auth.Claims{UserID: "u1", Email: "a@example.com", Privileges: []string{"admin"}}

	require.NoError(t, store.Save(ctx, "t1", claims, time.Minute))
	got, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, claims, got)

	require.NoError(t, store.Save(ctx, "t2", claims, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, err = store.Load(ctx, "t2")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	require.NoError(t, store.Delete(ctx, "t1"))
	_, err = store.Load(ctx, "t1")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, auth.BearerToken(req))
	req.Header.Set("Authorization", "bearer abc")
	require.Equal(t, "abc", auth.BearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, auth.BearerToken(req))
}

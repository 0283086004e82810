package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"evcharge/internal/auth"
	"evcharge/internal/config"
	"evcharge/internal/handler"
	"evcharge/internal/logger"
	"evcharge/internal/model"
	"evcharge/internal/service"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]model.User
	email map[string]uuid.UUID
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uuid.UUID]model.User{}, email: map[string]uuid.UUID{}}
}

func (r *memUsers) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.email[u.Email]; taken {
		return gorm.ErrDuplicatedKey
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.byID[u.ID] = *u
	r.email[u.Email] = u.ID
	return nil
}

func (r *memUsers) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.email[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *memUsers) List(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, u)
	}
	return out, nil
}

func (r *memUsers) UpdateRole(_ context.Context, id uuid.UUID, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Role = role
	r.byID[id] = u
	return nil
}

func (r *memUsers) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.email, r.byID[id].Email)
	delete(r.byID, id)
}

type memChargers struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Charger
}

func (r *memChargers) Create(_ context.Context, c *model.Charger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.rows[c.ID] = *c
	return nil
}

func (r *memChargers) Update(_ context.Context, c *model.Charger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.UpdatedAt = time.Now()
	r.rows[c.ID] = *c
	return nil
}

func (r *memChargers) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memChargers) FindByID(_ context.Context, id uuid.UUID) (*model.Charger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *memChargers) List(ctx context.Context) ([]model.Charger, error) {
	return r.filter(func(model.Charger) bool { return true }), nil
}

func (r *memChargers) ListByOwner(_ context.Context, owner uuid.UUID) ([]model.Charger, error) {
	return r.filter(func(c model.Charger) bool { return c.OwnerID != nil && *c.OwnerID == owner }), nil
}

func (r *memChargers) filter(keep func(model.Charger) bool) []model.Charger {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Charger
	for _, c := range r.rows {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (s *memRevocations) RevokeToken(_ context.Context, id string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[id] = true
	return nil
}

func (s *memRevocations) IsTokenRevoked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[id], nil
}

type app struct {
	e     *echo.Echo
	users *memUsers
}

func newApp(t *testing.T) *app {
	t.Helper()
	users := newMemUsers()
	chargers := &memChargers{rows: map[uuid.UUID]model.Charger{}}
	revocations := &memRevocations{revoked: map[string]bool{}}
	codec := auth.NewTokenCodec("router-test-secret")
	log := logger.Nop()

	guard := auth.NewGuard(auth.GuardConfig{Codec: codec, Users: users, Tokens: revocations, Logger: log})
	e := echo.New()
	Register(e, &config.Config{CORSOrigins: []string{"*"}}, log, guard, Handlers{
		Auth:    handler.NewAuthHandler(service.NewAuthService(users, codec, revocations, bcrypt.MinCost)),
		Charger: handler.NewChargerHandler(service.NewChargerService(chargers, nil)),
		User:    handler.NewUserHandler(service.NewUserService(users, nil)),
	})
	return &app{e: e, users: users}
}

func (a *app) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *app) register(t *testing.T, email string) (string, uuid.UUID) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"`+email+`","password":"pw-`+email+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp handler.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token, resp.User.ID
}

func (a *app) login(t *testing.T, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"`+email+`","password":"pw-`+email+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

const chargerBody = `{"name":"Depot","latitude":52.52,"longitude":13.405,"powerOutput":22,"connectorType":"Type 2"}`

func TestRouter_OwnershipIsolation(t *testing.T) {
	a := newApp(t)
	_, _ = a.register(t, "alice@example.com")
	_, _ = a.register(t, "bob@example.com")
	aliceToken := a.login(t, "alice@example.com")
	bobToken := a.login(t, "bob@example.com")

	rec := a.do(t, http.MethodPost, "/api/chargers", bobToken, chargerBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Charger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/api/chargers/" + created.ID.String()

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wire))
	assert.Equal(t, float64(22), wire["powerOutput"])

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, path, aliceToken, "").Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPut, path, aliceToken, `{"name":"Mine now"}`).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodDelete, path, aliceToken, "").Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, path, bobToken, "").Code)

	rec = a.do(t, http.MethodGet, "/api/chargers", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/chargers", bobToken, "")
	var listed []model.Charger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodDelete, path, bobToken, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, path, bobToken, "").Code)
}

func TestRouter_RequiresToken(t *testing.T) {
	a := newApp(t)

	for _, header := range []string{"", "not-a-jwt"} {
		rec := a.do(t, http.MethodGet, "/api/chargers", header, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not authorized to access this route", message(t, rec))
	}

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/healthz", "", "").Code)
}

func TestRouter_AdminRoutes(t *testing.T) {
	a := newApp(t)
	userToken, _ := a.register(t, "alice@example.com")
	_, adminID := a.register(t, "root@example.com")
	require.NoError(t, a.users.UpdateRole(context.Background(), adminID, model.RoleAdmin))

	rec := a.do(t, http.MethodGet, "/api/users", userToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "user role not authorized to access this route", message(t, rec))

	// Roles are read from the token, so the promotion needs a fresh login.
	adminToken := a.login(t, "root@example.com")
	rec = a.do(t, http.MethodGet, "/api/users", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	var users []model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)

	rec = a.do(t, http.MethodPost, "/api/chargers", userToken, chargerBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Charger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/chargers/"+created.ID.String(), adminToken, "").Code)
}

func TestRouter_ConcurrentRegistration(t *testing.T) {
	a := newApp(t)
	codes := make(chan int, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"race@example.com","password":"pw"}`))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			a.e.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	var got []int
	for c := range codes {
		got = append(got, c)
	}
	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusBadRequest}, got)
}

func TestRouter_DeletedUserAndLogout(t *testing.T) {
	a := newApp(t)
	token, id := a.register(t, "alice@example.com")

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/auth/profile", token, "").Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/auth/logout", token, "").Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/auth/profile", token, "").Code)

	fresh := a.login(t, "alice@example.com")
	a.users.remove(id)
	rec := a.do(t, http.MethodGet, "/api/chargers", fresh, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user no longer exists", message(t, rec))
}

func TestRouter_DuplicateAndBadLogin(t *testing.T) {
	a := newApp(t)
	_, _ = a.register(t, "alice@example.com")

	rec := a.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"alice@example.com","password":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user already exists", message(t, rec))

	wrong := a.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"alice@example.com","password":"nope"}`)
	unknown := a.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"nobody@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/youfin-be/internal/ai"
	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/config"
	"github.com/hongminglow/youfin-be/internal/mail"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/models/dto"
	"github.com/hongminglow/youfin-be/internal/storage/memory"
)

const testPassword = "Secret123!"

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	return m.sent[len(m.sent)-1]
}

type testEnv struct {
	t      *testing.T
	cfg    config.Config
	store  *memory.Store
	mailer *recordingMailer
	tokens *auth.TokenManager
	mux    *http.ServeMux
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	e := &testEnv{
		t: t,
		cfg: config.Config{
			Environment:   "development",
			JWTSecret:     "test-secret",
			JWTIssuer:     "youfin-test",
			JWTTTL:        time.Hour,
			CookieTTL:     24 * time.Hour,
			FrontendURL:   "http://localhost:5173",
			AutoVerify:    true,
			ApprovalLimit: decimal.NewFromInt(20),
		},
		store:  memory.New(),
		mailer: &recordingMailer{},
		mux:    http.NewServeMux(),
	}
	for _, m := range mutate {
		m(&e.cfg)
	}
	e.tokens = auth.NewTokenManager(e.cfg.JWTSecret, e.cfg.JWTIssuer, e.cfg.JWTTTL)
	guard := middleware.NewAuthenticator(e.tokens, e.store)
	sessions := NewSessions(e.tokens, e.cfg.CookieTTL, false)
	emails := mail.NewComposer(e.cfg.FrontendURL)
	advisor := ai.NewAdvisor(ai.Offline{})

	NewHealthHandler(time.Now(), e.cfg.Environment).Register(e.mux)
	NewAuthHandler(e.store, sessions, guard, e.mailer, emails, &e.cfg).Register(e.mux)
	NewUserHandler(e.store, guard, &e.cfg).Register(e.mux)
	NewBusinessHandler(e.store, guard, advisor, &e.cfg).Register(e.mux)
	NewSpendingHandler(e.store, guard, e.mailer, emails, &e.cfg).Register(e.mux)
	NewAIHandler(e.store, guard, advisor).Register(e.mux)
	return e
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// user stores an account directly and returns it with a session token.
func (e *testEnv) user(role, email, parentID string) (models.User, string) {
	e.t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(e.t, err)
	u := models.User{
		FirstName:    "Test",
		LastName:     "User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		ParentID:     parentID,
		IsVerified:   true,
		Budget:       decimal.NewFromInt(200),
	}
	created, err := e.store.CreateUser(context.Background(), u)
	require.NoError(e.t, err)
	if parentID != "" {
		require.NoError(e.t, e.store.LinkChild(context.Background(), parentID, created.ID))
	}
	token, err := e.tokens.Generate(created)
	require.NoError(e.t, err)
	return created, token
}

func (e *testEnv) business(offers ...models.Offer) models.Business {
	e.t.Helper()
	b, err := e.store.CreateBusiness(context.Background(), models.Business{
		Name:     "Tirana Coffee Shop",
		Type:     "food",
		Location: models.Point{Lng: 19.8187, Lat: 41.3275},
		Address:  models.Address{City: "Tirana", Country: "Albania"},
		Offers:   offers,
	})
	require.NoError(e.t, err)
	return b
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func registerBody(email, role string) map[string]any {
	return map[string]any{
		"firstName": "Ana",
		"lastName":  "Hoxha",
		"email":     email,
		"password":  testPassword,
		"role":      role,
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/health", "/api/health"} {
		rec := e.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]string](t, rec)
		require.Equal(t, "ok", body.Data["status"])
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/api/auth/register", "", registerBody("Ana@Example.com", models.RoleParent))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookie := rec.Result().Cookies()
	require.NotEmpty(t, cookie)
	require.Equal(t, middleware.SessionCookie, cookie[0].Name)
	require.True(t, cookie[0].HttpOnly)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	registered := decode[dto.LoginResponse](t, rec)
	require.NotEmpty(t, registered.Data.Token)
	require.Equal(t, "ana@example.com", registered.Data.User.Email)
	require.True(t, registered.Data.User.IsVerified)

	rec = e.do(http.MethodPost, "/api/auth/register", "", registerBody("ana@example.com", models.RoleParent))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ANA@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[dto.LoginResponse](t, rec)

	rec = e.do(http.MethodGet, "/api/auth/me", login.Data.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[dto.UserResponse](t, rec)
	require.Equal(t, registered.Data.User.ID, me.Data.ID)

	stored, err := e.store.GetUser(context.Background(), me.Data.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)

	rec = e.do(http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/check-email", "", map[string]string{"email": "ana@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[dto.CheckEmailResponse](t, rec).Data.Exists)
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)
	parent, _ := e.user(models.RoleParent, "parent@example.com", "")
	business, _ := e.user(models.RoleBusiness, "shop@example.com", "")

	with := func(email, role string, extra map[string]any) map[string]any {
		body := registerBody(email, role)
		for k, v := range extra {
			body[k] = v
		}
		return body
	}
	tenYearsAgo := time.Now().AddDate(-10, 0, 0).Format(time.DateOnly)
	threeYearsAgo := time.Now().AddDate(-3, 0, 0).Format(time.DateOnly)

	cases := map[string]map[string]any{
		"weak password":          with("a@example.com", models.RoleParent, map[string]any{"password": "password"}),
		"short name":             with("b@example.com", models.RoleParent, map[string]any{"firstName": "A"}),
		"bad email":              with("not-an-email", models.RoleParent, nil),
		"unknown role":           with("c@example.com", "admin", nil),
		"password mismatch":      with("d@example.com", models.RoleParent, map[string]any{"confirmPassword": "Other123!"}),
		"business no address":    with("e@example.com", models.RoleBusiness, map[string]any{"businessName": "Shop", "businessType": "retail"}),
		"child without parent":   with("f@example.com", models.RoleChild, map[string]any{"dateOfBirth": tenYearsAgo}),
		"child too young":        with("g@example.com", models.RoleChild, map[string]any{"dateOfBirth": threeYearsAgo, "parentId": parent.ID}),
		"child of business user": with("h@example.com", models.RoleChild, map[string]any{"dateOfBirth": tenYearsAgo, "parentId": business.ID}),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/api/auth/register", "", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	_, err := e.store.FindByEmail(context.Background(), "g@example.com")
	require.Error(t, err)
}

func TestRegisterChildLinksParent(t *testing.T) {
	e := newTestEnv(t)
	parent, parentToken := e.user(models.RoleParent, "parent@example.com", "")

	body := registerBody("kid@example.com", models.RoleChild)
	body["dateOfBirth"] = time.Now().AddDate(-10, 0, 0).Format(time.DateOnly)
	body["parentId"] = parent.ID
	rec := e.do(http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	child := decode[dto.LoginResponse](t, rec).Data

	rec = e.do(http.MethodGet, "/api/auth/me", parentToken, nil)
	me := decode[dto.UserResponse](t, rec).Data
	require.Len(t, me.Children, 1)
	require.Equal(t, child.User.ID, me.Children[0].ID)

	rec = e.do(http.MethodGet, "/api/auth/me", child.Token, nil)
	childMe := decode[dto.UserResponse](t, rec).Data
	require.NotNil(t, childMe.Parent)
	require.Equal(t, parent.ID, childMe.Parent.ID)

	rec = e.do(http.MethodGet, "/api/auth/children", child.Token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = e.do(http.MethodGet, "/api/auth/children", parentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]models.User](t, rec).Data, 1)
}

var tokenLink = regexp.MustCompile(`/(?:verify-email|reset-password)/([0-9a-f]{64})`)

func linkToken(t *testing.T, msg mail.Message) string {
	t.Helper()
	m := tokenLink.FindStringSubmatch(msg.Text)
	require.Len(t, m, 2, msg.Text)
	return m[1]
}

func TestEmailVerification(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.AutoVerify = false })

	rec := e.do(http.MethodPost, "/api/auth/register", "", registerBody("new@example.com", models.RoleParent))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.False(t, decode[dto.LoginResponse](t, rec).Data.User.IsVerified)

	msg := e.mailer.last(t)
	require.Equal(t, "new@example.com", msg.To)
	token := linkToken(t, msg)

	creds := map[string]string{"email": "new@example.com", "password": testPassword}
	rec = e.do(http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/auth/verify-email/"+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(http.MethodGet, "/api/auth/verify-email/"+token, "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterWhenVerificationEmailFails(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.AutoVerify = false })
	e.mailer.fail = true

	rec := e.do(http.MethodPost, "/api/auth/register", "", registerBody("new@example.com", models.RoleParent))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[dto.LoginResponse](t, rec)
	require.Contains(t, out.Message, "could not send a verification email")
	require.NotEmpty(t, out.Data.Token)

	_, err := e.store.FindByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newTestEnv(t)
	e.user(models.RoleParent, "parent@example.com", "")

	rec := e.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "parent@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := linkToken(t, e.mailer.last(t))

	rec = e.do(http.MethodPost, "/api/auth/reset-password/"+token, "", map[string]string{"password": "weak"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/reset-password/"+token, "", map[string]string{"password": "Brand-New-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, decode[dto.LoginResponse](t, rec).Data.Token)

	rec = e.do(http.MethodPost, "/api/auth/reset-password/"+token, "", map[string]string{"password": "Brand-New-2"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "parent@example.com", "password": "Brand-New-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	e.mailer.fail = true
	rec = e.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "parent@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decode[any](t, rec).Message, "could not be sent")
}

func TestUpdatePassword(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(models.RoleParent, "parent@example.com", "")

	rec := e.do(http.MethodPatch, "/api/auth/update-password", token, map[string]string{"currentPassword": "nope", "newPassword": "Another-1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPatch, "/api/auth/update-password", token, map[string]string{"currentPassword": testPassword, "newPassword": "Another-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "parent@example.com", "password": "Another-1"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTwoFactorFlow(t *testing.T) {
	e := newTestEnv(t)
	user, token := e.user(models.RoleParent, "parent@example.com", "")

	rec := e.do(http.MethodPost, "/api/auth/2fa/verify", token, map[string]string{"token": "123456"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/2fa/generate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	setup := decode[dto.TwoFactorSetup](t, rec).Data
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.OTPURL, "otpauth://totp/")
	require.Contains(t, setup.DataURL, "data:image/png;base64,")

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	rec = e.do(http.MethodPost, "/api/auth/2fa/verify", token, map[string]string{"token": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[dto.UserResponse](t, rec).Data.TwoFactorEnabled)

	creds := map[string]string{"email": "parent@example.com", "password": testPassword}
	rec = e.do(http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Result().Cookies(), "no session cookie before the second factor")
	require.NotContains(t, rec.Body.String(), `"token"`)
	challenge := decode[dto.TwoFactorChallenge](t, rec).Data
	require.True(t, challenge.Requires2FA)
	require.Equal(t, user.ID, challenge.UserID)

	rec = e.do(http.MethodPost, "/api/auth/validate-2fa", "", map[string]string{"userId": user.ID, "token": "000000"})
	if code != "000000" {
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec = e.do(http.MethodPost, "/api/auth/validate-2fa", "", map[string]string{"userId": "missing", "token": code})
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = e.do(http.MethodPost, "/api/auth/validate-2fa", "", map[string]string{"userId": user.ID, "token": code})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode[dto.LoginResponse](t, rec).Data.Token)

	rec = e.do(http.MethodPost, "/api/auth/2fa/disable", token, map[string]string{"token": code})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodPost, "/api/auth/login", "", creds)
	require.NotEmpty(t, decode[dto.LoginResponse](t, rec).Data.Token)
}

func TestAllowanceAndLimits(t *testing.T) {
	e := newTestEnv(t)
	parent, parentToken := e.user(models.RoleParent, "parent@example.com", "")
	child, _ := e.user(models.RoleChild, "kid@example.com", parent.ID)
	_, otherToken := e.user(models.RoleParent, "other@example.com", "")

	body := map[string]any{"childId": child.ID, "amount": 15, "frequency": "weekly"}
	rec := e.do(http.MethodPatch, "/api/auth/update-allowance", otherToken, body)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPatch, "/api/auth/update-allowance", parentToken, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.User](t, rec).Data
	require.Equal(t, "15", updated.Allowance.Amount.String())
	require.Equal(t, "weekly", updated.Allowance.Frequency)

	rec = e.do(http.MethodPatch, "/api/auth/update-allowance", parentToken,
		map[string]any{"childId": child.ID, "amount": 1.005, "frequency": "weekly"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPatch, "/api/auth/update-spending-limits", parentToken,
		map[string]any{"childId": child.ID, "daily": 0.001})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body["frequency"] = "yearly"
	rec = e.do(http.MethodPatch, "/api/auth/update-allowance", parentToken, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPatch, "/api/auth/update-spending-limits", parentToken,
		map[string]any{"childId": child.ID, "daily": 5, "weekly": 25, "monthly": 80})
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := e.store.GetUser(context.Background(), child.ID)
	require.NoError(t, err)
	require.Equal(t, "80", stored.SpendingLimit.Monthly.String())
}

func TestUserProfileAndGoals(t *testing.T) {
	e := newTestEnv(t)
	parent, parentToken := e.user(models.RoleParent, "parent@example.com", "")
	child, childToken := e.user(models.RoleChild, "kid@example.com", parent.ID)
	_, strangerToken := e.user(models.RoleParent, "stranger@example.com", "")

	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/users/"+child.ID, parentToken, nil).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/users/"+parent.ID, childToken, nil).Code)
	require.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/users/"+child.ID, strangerToken, nil).Code)
	require.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/users/nope", parentToken, nil).Code)

	rec := e.do(http.MethodPatch, "/api/users/"+child.ID, parentToken, map[string]any{"firstName": "Nope"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = e.do(http.MethodPatch, "/api/users/"+child.ID, childToken, map[string]any{
		"firstName":   "Elira",
		"budget":      150,
		"preferences": map[string]any{"theme": "light", "notifications": false},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.User](t, rec).Data
	require.Equal(t, "Elira", updated.FirstName)
	require.Equal(t, "150", updated.Budget.String())
	require.Equal(t, "light", updated.Preferences.Theme)

	rec = e.do(http.MethodPost, "/api/users/"+child.ID+"/goals", parentToken, map[string]any{"name": "Bike", "targetAmount": 300})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	goal := decode[models.Goal](t, rec).Data

	rec = e.do(http.MethodPatch, "/api/users/"+child.ID+"/goals/"+goal.ID, childToken, map[string]any{"amount": 25})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "25", decode[models.Goal](t, rec).Data.CurrentAmount.String())

	for _, amount := range []any{-50, 0, 0.004} {
		rec = e.do(http.MethodPatch, "/api/users/"+child.ID+"/goals/"+goal.ID, childToken, map[string]any{"amount": amount})
		require.Equal(t, http.StatusBadRequest, rec.Code, "amount %v", amount)
	}
	stored, err := e.store.GetUser(context.Background(), child.ID)
	require.NoError(t, err)
	require.Equal(t, "25", stored.Goals[0].CurrentAmount.String())

	rec = e.do(http.MethodPost, "/api/users/"+child.ID+"/goals", parentToken, map[string]any{"name": "Bike", "targetAmount": 300.125})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPatch, "/api/users/"+child.ID, childToken, map[string]any{"budget": 10.999})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPatch, "/api/users/"+child.ID+"/goals/missing", childToken, map[string]any{"amount": 5})
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = e.do(http.MethodPost, "/api/users/"+child.ID+"/goals", strangerToken, map[string]any{"name": "x", "targetAmount": 1})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateChildAccount(t *testing.T) {
	e := newTestEnv(t)
	parent, parentToken := e.user(models.RoleParent, "parent@example.com", "")
	_, otherToken := e.user(models.RoleParent, "other@example.com", "")

	body := map[string]any{
		"firstName":   "Dea",
		"lastName":    "Hoxha",
		"email":       "dea@example.com",
		"password":    testPassword,
		"dateOfBirth": time.Now().AddDate(-12, 0, 0).Format(time.DateOnly),
	}
	rec := e.do(http.MethodPost, "/api/users/"+parent.ID+"/children", otherToken, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPost, "/api/users/"+parent.ID+"/children", parentToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	child := decode[models.User](t, rec).Data
	require.Equal(t, parent.ID, child.ParentID)

	rec = e.do(http.MethodGet, "/api/users/"+parent.ID+"/children", parentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	children := decode[[]models.User](t, rec).Data
	require.Len(t, children, 1)
	require.Equal(t, child.ID, children[0].ID)

	stored, err := e.store.GetUser(context.Background(), parent.ID)
	require.NoError(t, err)
	require.True(t, stored.HasChild(child.ID))
}

func TestSpendingApproval(t *testing.T) {
	e := newTestEnv(t)
	parent, parentToken := e.user(models.RoleParent, "parent@example.com", "")
	child, childToken := e.user(models.RoleChild, "kid@example.com", parent.ID)
	_, otherParentToken := e.user(models.RoleParent, "other@example.com", "")
	shop := e.business()
	ctx := context.Background()

	rec := e.do(http.MethodPost, "/api/spending", childToken, map[string]any{"businessId": shop.ID, "amount": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPost, "/api/spending", childToken, map[string]any{"businessId": shop.ID, "amount": 0.004})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPost, "/api/spending", childToken, map[string]any{"businessId": "missing", "amount": 5})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPost, "/api/spending", childToken, map[string]any{"businessId": shop.ID, "amount": 25, "description": "headphones"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pending := decode[models.Spending](t, rec).Data
	require.False(t, pending.IsApprovedByParent)
	require.Equal(t, "food", pending.Category)
	require.Equal(t, "cash", pending.PaymentMethod)
	require.Equal(t, shop.Location, pending.Location)
	require.Equal(t, parent.Email, e.mailer.last(t).To)

	stored, _ := e.store.GetUser(ctx, child.ID)
	require.True(t, stored.Spent.IsZero())

	rec = e.do(http.MethodPost, "/api/spending", childToken, map[string]any{"businessId": shop.ID, "amount": 10, "category": "transport"})
	require.Equal(t, http.StatusCreated, rec.Code)
	small := decode[models.Spending](t, rec).Data
	require.True(t, small.IsApprovedByParent)
	require.Equal(t, "transport", small.Category)
	stored, _ = e.store.GetUser(ctx, child.ID)
	require.Equal(t, "10", stored.Spent.String())

	require.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/spending/"+pending.ID+"/approve", childToken, nil).Code)
	require.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/spending/"+pending.ID+"/approve", otherParentToken, nil).Code)

	rec = e.do(http.MethodPost, "/api/spending/"+pending.ID+"/approve", parentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[models.Spending](t, rec).Data.IsApprovedByParent)
	stored, _ = e.store.GetUser(ctx, child.ID)
	require.Equal(t, "35", stored.Spent.String())

	rec = e.do(http.MethodPost, "/api/spending/"+pending.ID+"/approve", parentToken, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	stored, _ = e.store.GetUser(ctx, child.ID)
	require.Equal(t, "35", stored.Spent.String())

	// parents are never held for approval
	rec = e.do(http.MethodPost, "/api/spending", parentToken, map[string]any{"businessId": shop.ID, "amount": 250})
	require.True(t, decode[models.Spending](t, rec).Data.IsApprovedByParent)
}

func TestSpendingReports(t *testing.T) {
	e := newTestEnv(t)
	parent, parentToken := e.user(models.RoleParent, "parent@example.com", "")
	child, childToken := e.user(models.RoleChild, "kid@example.com", parent.ID)
	_, strangerToken := e.user(models.RoleParent, "stranger@example.com", "")
	shop := e.business()

	for _, amount := range []int{4, 6} {
		rec := e.do(http.MethodPost, "/api/spending", childToken, map[string]any{"businessId": shop.ID, "amount": amount})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	require.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/spending/user/"+child.ID, strangerToken, nil).Code)
	require.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/spending/user/missing", parentToken, nil).Code)

	rec := e.do(http.MethodGet, "/api/spending/user/"+child.ID, parentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Spending](t, rec).Data
	require.Len(t, list, 2)
	require.False(t, list[0].Timestamp.Before(list[1].Timestamp))
	require.NotNil(t, list[0].Business)
	require.Equal(t, shop.Name, list[0].Business.Name)

	rec = e.do(http.MethodGet, "/api/spending/user/"+child.ID+"/categories", childToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode[[]models.CategoryTotal](t, rec).Data
	require.Len(t, totals, 1)
	require.Equal(t, "10", totals[0].Total.String())

	require.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/spending/user/"+child.ID+"/categories?startDate=yesterday", childToken, nil).Code)

	rec = e.do(http.MethodGet, "/api/spending/user/"+child.ID+"/daily?days=3", childToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	daily := decode[[]models.DailyTotal](t, rec).Data
	require.Len(t, daily, 1)
	require.Equal(t, time.Now().UTC().Format(time.DateOnly), daily[0].Date)
	require.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/spending/user/"+child.ID+"/daily?days=0", childToken, nil).Code)

	rec = e.do(http.MethodGet, "/api/spending/nearby?lat=41.3275&lng=19.8187", parentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]models.Spending](t, rec).Data, 2)
	rec = e.do(http.MethodGet, "/api/spending/nearby?lat=41.3275&lng=19.8187", strangerToken, nil)
	require.Empty(t, decode[[]models.Spending](t, rec).Data)
}

func TestBusinessDirectory(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(models.RoleBusiness, "shop@example.com", "")

	rec := e.do(http.MethodPost, "/api/businesses/seed", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, decode[[]models.Business](t, rec).Data, 3)

	rec = e.do(http.MethodGet, "/api/businesses/nearby?lat=41.3275&lng=19.8187&distance=200", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nearby := decode[[]models.Business](t, rec).Data
	require.Len(t, nearby, 2)
	require.Equal(t, "Tirana Coffee Shop", nearby[0].Name)

	require.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/businesses/nearby?lat=41.3", "", nil).Code)

	rec = e.do(http.MethodGet, "/api/businesses/type/bank", "", nil)
	require.Len(t, decode[[]models.Business](t, rec).Data, 1)
	require.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/businesses/type/casino", "", nil).Code)

	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/businesses", "", map[string]any{"name": "x"}).Code)
	rec = e.do(http.MethodPost, "/api/businesses", token, map[string]any{
		"name": "Book Corner", "type": "education", "lat": 41.33, "lng": 19.82,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Business](t, rec).Data
	require.Equal(t, "Albania", created.Address.Country)

	rec = e.do(http.MethodPost, "/api/businesses/"+created.ID+"/offers", token, map[string]any{
		"title": "2 for 1", "validUntil": time.Now().Add(48 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.True(t, decode[models.Offer](t, rec).Data.IsActive)

	rec = e.do(http.MethodPost, "/api/businesses/"+created.ID+"/offers", token, map[string]any{
		"title": "expired", "validUntil": time.Now().Add(-time.Hour),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodGet, "/api/businesses/offers", "", nil)
	offers := decode[[]dto.BusinessOffers](t, rec).Data
	require.Len(t, offers, 1)
	require.Equal(t, "Book Corner", offers[0].BusinessName)

	rec = e.do(http.MethodGet, "/api/businesses/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/businesses/missing", "", nil).Code)
}

func TestSeedOnlyInDevelopment(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Environment = "production" })
	require.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/businesses/seed", "", nil).Code)
	require.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/users/seed", "", nil).Code)
}

func TestSeedUsers(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/api/users/seed", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, decode[[]dto.UserResponse](t, rec).Data, 3)
	require.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/users/seed", "", nil).Code)

	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "child@demo.com", "password": SeedPassword})
	require.Equal(t, http.StatusOK, rec.Code)

	child, err := e.store.FindByEmail(context.Background(), "child@demo.com")
	require.NoError(t, err)
	require.Equal(t, "30", child.Spent.String())
	require.Len(t, child.Goals, 1)
}

func TestCatchDeal(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(models.RoleChild, "kid@example.com", "")
	shop := e.business(
		models.Offer{Title: "Free coffee", ValidUntil: time.Now().Add(time.Hour), IsActive: true},
		models.Offer{Title: "Old", ValidUntil: time.Now().Add(-time.Hour), IsActive: true},
	)
	live, expired := shop.Offers[0], shop.Offers[1]
	near := [2]float64{41.3276, 19.8188}

	rec := e.do(http.MethodPost, "/api/businesses/catch-deal", token, map[string]any{"businessId": shop.ID, "offerId": expired.ID, "location": near})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Offer not available", decode[any](t, rec).Message)

	rec = e.do(http.MethodPost, "/api/businesses/catch-deal", token, map[string]any{"businessId": shop.ID, "offerId": live.ID, "location": [2]float64{41.3375, 19.8187}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Too far from the business to catch this deal", decode[any](t, rec).Message)

	rec = e.do(http.MethodPost, "/api/businesses/catch-deal", token, map[string]any{"businessId": shop.ID, "offerId": live.ID, "location": near})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	caught := decode[dto.CatchDealResponse](t, rec)
	require.Equal(t, "Deal caught successfully!", caught.Message)
	require.False(t, caught.Data.Offer.IsActive)
	require.Equal(t, "food", caught.Data.Type)

	rec = e.do(http.MethodPost, "/api/businesses/catch-deal", token, map[string]any{"businessId": shop.ID, "offerId": live.ID, "location": near})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIEndpoints(t *testing.T) {
	e := newTestEnv(t)
	user, token := e.user(models.RoleParent, "parent@example.com", "")
	_, strangerToken := e.user(models.RoleParent, "stranger@example.com", "")

	rec := e.do(http.MethodPost, "/api/ai/process-expense", "", map[string]string{"text": "Lunch 12.50 at the cafe"})
	require.Equal(t, http.StatusOK, rec.Code)
	expense := decode[ai.ExpenseAnalysis](t, rec).Data
	require.Equal(t, "12.5", expense.Amount.String())
	require.Equal(t, "food", expense.Category)
	require.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/ai/process-expense", "", map[string]string{}).Code)

	rec = e.do(http.MethodGet, "/api/ai/advice/"+user.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Based on AI analysis of your spending patterns:", decode[ai.Advice](t, rec).Data.Summary)
	require.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/ai/advice/"+user.ID, strangerToken, nil).Code)

	rec = e.do(http.MethodGet, "/api/ai/predictions/"+user.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[ai.Prediction](t, rec).Data.NextMonth.ExpectedSpending.IsZero())

	rec = e.do(http.MethodPost, "/api/ai/suggest", token, map[string]any{"message": "Can I buy a game for 15?"})
	require.Equal(t, http.StatusOK, rec.Code)
	suggestion := decode[ai.Suggestion](t, rec).Data
	require.NotNil(t, suggestion.Transaction)
	require.Equal(t, user.ID, suggestion.Transaction.UserID)

	rec = e.do(http.MethodPost, "/api/businesses/analyze-deal", "", map[string]any{
		"dealType":    "food",
		"userHistory": []map[string]any{{"amount": 5, "category": "food"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode[map[string]string](t, rec).Data["recommendation"])
}

func TestBodyLimit(t *testing.T) {
	e := newTestEnv(t)
	big := bytes.Repeat([]byte("a"), maxBodyBytes+10)
	rec := e.do(http.MethodPost, "/api/auth/check-email", "", map[string]string{"email": string(big)})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

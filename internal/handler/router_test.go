package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/delivery"
	"marketplace-auth/internal/encryption"
	"marketplace-auth/internal/hashing"
	"marketplace-auth/internal/model"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/otp"
	"marketplace-auth/internal/repository/memory"
	"marketplace-auth/internal/service"
	"marketplace-auth/internal/token"
)

type testServer struct {
	router  http.Handler
	auth    *AuthHandler
	users   *memory.UserStore
	vendors *memory.VendorStore
	hasher  *hashing.Hasher
	tokens  *token.Issuer
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: config.EnvDevelopment,
		AppName:     "Test Estates",
		Server:      config.ServerConfig{AllowedOrigins: []string{"*"}},
		OTP: config.OTPConfig{
			TTL:              10 * time.Minute,
			PasswordResetTTL: 15 * time.Minute,
			RateWindow:       30 * time.Second,
			MaxAttempts:      5,
			PendingTimeout:   2 * time.Minute,
			SweepGrace:       time.Minute,
		},
		JWT: config.JWTConfig{
			Secret:        "access-secret",
			RefreshSecret: "refresh-secret",
			Issuer:        "marketplace-auth",
			SessionTTL:    7 * 24 * time.Hour,
			RememberMeTTL: 30 * 24 * time.Hour,
			AccessTTL:     time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		SMS:  config.SMSConfig{CountryCode: "+91"},
		Auth: config.AuthConfig{ExposeDevOTP: true, BcryptCost: bcrypt.MinCost},
	}
}

func newTestServer(t *testing.T, health HealthFunc) *testServer {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()

	engine := otp.NewEngine(memory.NewOTPLedger(), cfg.OTP, logger, otp.WithCooldown(memory.NewCooldown(time.Now)))
	sealer, err := encryption.NewEncryptionManager(cfg, nil, logger)
	require.NoError(t, err)

	ts := &testServer{
		users:   memory.NewUserStore(),
		vendors: memory.NewVendorStore(),
		hasher:  hashing.NewHasher(cfg),
		tokens:  token.NewIssuer(cfg.JWT),
	}
	dispatch := delivery.NewDispatcher(cfg.AppName, delivery.NewSimulatedSender(logger), nil, cfg.SMS.CountryCode, logger)
	factory := service.NewServiceFactory(ts.users, ts.vendors, engine, dispatch, ts.tokens, ts.hasher, sealer, nil, cfg, logger)

	ts.auth = NewAuthHandler(factory.AuthService(), false, logger)
	sessions := NewSessionHandler(factory.SessionService(), false, logger)
	vendors := NewVendorHandler(factory.VendorService(), false, logger)
	ts.router = NewRouter(ts.auth, sessions, vendors, health, cfg, logger)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func (ts *testServer) action(t *testing.T, body map[string]any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return ts.do(t, http.MethodPost, "/api/auth", body, nil)
}

func TestActionTableCoversEveryAction(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, action := range model.AllActions {
		assert.Contains(t, ts.auth.actions, action, "no handler for %q", action)
	}
	assert.Len(t, ts.auth.actions, len(model.AllActions))
}

func TestDispatchRejectsMalformedRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"invalid json", "{not json", "Invalid JSON in request body"},
		{"missing action", map[string]any{"email": "a@x.com"}, "Action is required"},
		{"unknown action", map[string]any{"action": "delete-everything"}, "Invalid action"},
		{"typed field mismatch", map[string]any{"action": "login", "rememberMe": "yes"}, "Invalid JSON in request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := ts.do(t, http.MethodPost, "/api/auth", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tt.want, out["error"])
		})
	}
}

func TestRegisterThenVerifyCreatesVerifiedUser(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, out := ts.action(t, map[string]any{
		"action":   "register",
		"name":     "A",
		"email":    "a@x.com",
		"phone":    "9876543210",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code, out)
	regToken, _ := out["registrationToken"].(string)
	code, _ := out["otp"].(string)
	require.NotEmpty(t, regToken)
	require.Len(t, code, 6)
	assert.Equal(t, true, out["simulatedEmail"])

	rec, out = ts.action(t, map[string]any{
		"action":            "verify-registration-otp",
		"registrationToken": regToken,
		"otp":               code,
	})
	require.Equal(t, http.StatusOK, rec.Code, out)
	assert.NotEmpty(t, out["token"])

	user, err := ts.users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, user.IsEmailVerified)
	assert.False(t, user.IsPhoneVerified)
	assert.Equal(t, "+919876543210", user.Phone)

	claims, err := ts.tokens.ParseAccess(out["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.ID)
}

func TestSendPhoneOTPTwiceIsRateLimited(t *testing.T) {
	ts := newTestServer(t, nil)
	body := map[string]any{"action": "send-phone-otp", "phone": "9876543210"}

	rec, out := ts.action(t, body)
	require.Equal(t, http.StatusOK, rec.Code, out)
	assert.Equal(t, "sms", out["method"])

	rec, out = ts.action(t, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, out["error"], "Please wait")
}

func TestVerifyPhoneOTPWithUnknownCode(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, out := ts.action(t, map[string]any{"action": "verify-phone-otp", "phone": "9876543210", "otp": "123456"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP. Please request a new OTP.", out["error"])
	assert.NotContains(t, out, "remainingAttempts")

	rec, out = ts.action(t, map[string]any{"action": "send-phone-otp", "phone": "9876543210"})
	require.Equal(t, http.StatusOK, rec.Code)
	code := out["otp"].(string)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	rec, out = ts.action(t, map[string]any{"action": "verify-phone-otp", "phone": "9876543210", "otp": wrong})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP. Please request a new OTP.", out["error"])
}

func TestValidationErrorsCarryDetails(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, out := ts.action(t, map[string]any{"action": "register", "email": "bad", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Name is required", out["error"])
	assert.NotEmpty(t, out["details"])
}

func TestRefreshAndMe(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	user := &models.User{Email: "me@x.com", Name: "Me", Role: models.RoleUser, IsEmailVerified: true}
	require.NoError(t, ts.users.Create(ctx, user))

	refresh, err := ts.tokens.Refresh(user.ID.Hex())
	require.NoError(t, err)

	rec, out := ts.do(t, http.MethodPost, "/api/auth/refresh", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Refresh token required", out["error"])

	rec, out = ts.do(t, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": "garbage"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid refresh token", out["error"])

	rec, out = ts.do(t, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": refresh}, nil)
	require.Equal(t, http.StatusOK, rec.Code, out)
	access := out["accessToken"].(string)

	rec, _ = ts.do(t, http.MethodGet, "/api/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, out = ts.do(t, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer " + access}})
	require.Equal(t, http.StatusOK, rec.Code, out)
	me := out["user"].(map[string]any)
	assert.Equal(t, "me@x.com", me["email"])
	assert.NotContains(t, me, "password")
}

func TestVendorLoginAndRefresh(t *testing.T) {
	ts := newTestServer(t, nil)
	hash, err := ts.hasher.HashPassword("fleet-pass")
	require.NoError(t, err)
	require.NoError(t, ts.vendors.Create(context.Background(), &models.Vendor{Email: "fleet@x.com", PasswordHash: hash}))

	rec, out := ts.do(t, http.MethodPost, "/api/cab_vendor/login", map[string]any{"email": "nobody@x.com", "password": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Vendor not found", out["error"])

	rec, out = ts.do(t, http.MethodPost, "/api/cab_vendor/login", map[string]any{"email": "fleet@x.com", "password": "bad"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", out["error"])

	rec, out = ts.do(t, http.MethodPost, "/api/cab_vendor/login", map[string]any{"email": "fleet@x.com", "password": "fleet-pass"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, out)
	refresh := out["refreshToken"].(string)

	rec, out = ts.do(t, http.MethodPost, "/api/cab_vendor/refresh", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Refresh token missing", out["error"])

	rec, out = ts.do(t, http.MethodPost, "/api/cab_vendor/refresh", map[string]any{"refreshToken": "garbage"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", out["error"])

	rec, out = ts.do(t, http.MethodPost, "/api/cab_vendor/refresh", map[string]any{"refreshToken": refresh}, nil)
	require.Equal(t, http.StatusOK, rec.Code, out)
	assert.NotEmpty(t, out["accessToken"])
}

func TestHealthReportsDependencies(t *testing.T) {
	healthy := newTestServer(t, func(context.Context) map[string]error {
		return map[string]error{"mongo": nil}
	})
	rec, out := healthy.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", out["status"])

	degraded := newTestServer(t, func(context.Context) map[string]error {
		return map[string]error{"mongo": nil, "redis": errors.New("dial tcp: refused")}
	})
	rec, out = degraded.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, map[string]any{"mongo": "healthy", "redis": "unhealthy"}, out["checks"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, out := ts.do(t, http.MethodGet, "/api/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", out["error"])
}

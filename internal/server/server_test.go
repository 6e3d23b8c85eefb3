package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	accountdomain "github.com/smallbiznis/creditline/internal/account/domain"
	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	"github.com/smallbiznis/creditline/internal/config"
	"github.com/smallbiznis/creditline/internal/plan"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	"github.com/smallbiznis/creditline/internal/ratelimit"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
	"github.com/smallbiznis/creditline/internal/usercontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockAPIKeySvc struct {
	mock.Mock
}

func (m *mockAPIKeySvc) List(ctx context.Context) ([]apikeydomain.Response, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apikeydomain.Response), args.Error(1)
}

func (m *mockAPIKeySvc) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apikeydomain.SecretResponse), args.Error(1)
}

func (m *mockAPIKeySvc) Revoke(ctx context.Context, keyID string) error {
	args := m.Called(ctx, keyID)
	return args.Error(0)
}

func (m *mockAPIKeySvc) Authenticate(ctx context.Context, rawKey string) (string, error) {
	args := m.Called(ctx, rawKey)
	return args.String(0), args.Error(1)
}

type mockUsageSvc struct {
	mock.Mock
}

func (m *mockUsageSvc) Consume(ctx context.Context, req usagedomain.ConsumeRequest) (*usagedomain.Allowance, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usagedomain.Allowance), args.Error(1)
}

func (m *mockUsageSvc) Allowance(ctx context.Context, userID string) (*usagedomain.Allowance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usagedomain.Allowance), args.Error(1)
}

func (m *mockUsageSvc) ListEvents(ctx context.Context, req usagedomain.ListEventsRequest) (usagedomain.ListEventsResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(usagedomain.ListEventsResponse), args.Error(1)
}

type mockAccountSvc struct {
	mock.Mock
}

func (m *mockAccountSvc) Export(ctx context.Context, userID string) (*accountdomain.Export, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accountdomain.Export), args.Error(1)
}

func (m *mockAccountSvc) Delete(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) Get(ctx context.Context, _ *gorm.DB, userID string) (*profiledomain.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profiledomain.Profile), args.Error(1)
}

func (m *mockProfiles) GetPlan(ctx context.Context, _ *gorm.DB, userID string) (profiledomain.PlanInfo, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(profiledomain.PlanInfo), args.Error(1)
}

func (m *mockProfiles) SetPlan(ctx context.Context, _ *gorm.DB, userID string, info profiledomain.PlanInfo, now time.Time) error {
	args := m.Called(ctx, userID, info, now)
	return args.Error(0)
}

func (m *mockProfiles) Delete(ctx context.Context, _ *gorm.DB, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// scriptedRedis answers every script call with a fixed token bucket reply.
type scriptedRedis struct {
	reply []interface{}
	keys  []string
}

func (r *scriptedRedis) result(keys []string) *redis.Cmd {
	r.keys = append(r.keys, keys...)
	return redis.NewCmdResult(r.reply, nil)
}

func (r *scriptedRedis) Eval(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return r.result(keys)
}

func (r *scriptedRedis) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return r.result(keys)
}

func (r *scriptedRedis) EvalRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return r.result(keys)
}

func (r *scriptedRedis) EvalShaRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return r.result(keys)
}

func (r *scriptedRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (r *scriptedRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

const testAPIKey = "cl_live_test"

type testServer struct {
	srv     *Server
	apiKeys *mockAPIKeySvc
	usage   *mockUsageSvc
	account  *mockAccountSvc
	profiles *mockProfiles
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		apiKeys: new(mockAPIKeySvc),
		usage:   new(mockUsageSvc),
		account:  new(mockAccountSvc),
		profiles: new(mockProfiles),
	}
	ts.srv = &Server{
		engine:     router,
		cfg:        config.Config{Environment: "production"},
		apiKeySvc:  ts.apiKeys,
		usageSvc:   ts.usage,
		accountSvc: ts.account,
		profiles:   ts.profiles,
	}
	ts.srv.RegisterHealthRoutes()
	ts.srv.RegisterAPIRoutes()
	ts.srv.RegisterDevRoutes()

	ts.apiKeys.On("Authenticate", mock.Anything, testAPIKey).Return("user-1", nil).Maybe()
	ts.apiKeys.On("Authenticate", mock.Anything, mock.Anything).Return("", apikeydomain.ErrUnauthorized).Maybe()
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp := httptest.NewRecorder()
	ts.srv.engine.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func sampleAllowance(used int64) *usagedomain.Allowance {
	return &usagedomain.Allowance{
		PeriodStart:      "2024-06-01",
		PeriodEnd:        "2024-06-30",
		CreditsTotal:     50,
		CreditsUsed:      used,
		CreditsRemaining: 50 - used,
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	ts.srv.engine.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestAPIRequiresBearerKey(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"unknown key":    "Bearer cl_live_unknown",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp := httptest.NewRecorder()
			ts.srv.engine.ServeHTTP(resp, req)

			assert.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.Equal(t, "unauthorized", decodeError(t, resp).Type)
		})
	}
	ts.usage.AssertNotCalled(t, "Allowance", mock.Anything, mock.Anything)
}

func TestConsumeUsageSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.usage.On("Consume", mock.Anything, mock.MatchedBy(func(req usagedomain.ConsumeRequest) bool {
		return req.UserID == "user-1" && req.Feature == "chat" && req.Amount == 3 && req.Metadata["model"] == "small"
	})).Return(sampleAllowance(3), nil).Once()

	resp := ts.do(http.MethodPost, "/api/usage/consume", `{"feature":"chat","amount":3,"metadata":{"model":"small"}}`)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"allowance":{"periodStart":"2024-06-01","periodEnd":"2024-06-30","creditsTotal":50,"creditsUsed":3,"creditsRemaining":47}}`, resp.Body.String())
	ts.usage.AssertExpectations(t)
}

func TestConsumeUsageErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		typ      string
		leakText string
	}{
		{"limit", usagedomain.ErrUsageLimitExceeded, http.StatusForbidden, "usage_limit_exceeded", ""},
		{"invalid amount", usagedomain.Invalid(usagedomain.ErrInvalidUsageAmount), http.StatusBadRequest, "invalid_request", ""},
		{"storage", fmt.Errorf("%w: %w", usagedomain.ErrStorageUnavailable, errors.New("pq: connection refused to db-host")), http.StatusInternalServerError, "internal_error", "db-host"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.usage.On("Consume", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			resp := ts.do(http.MethodPost, "/api/usage/consume", `{"feature":"chat","amount":1}`)

			assert.Equal(t, tc.status, resp.Code)
			assert.Equal(t, tc.typ, decodeError(t, resp).Type)
			if tc.leakText != "" {
				assert.NotContains(t, resp.Body.String(), tc.leakText)
			}
		})
	}
}

func TestConsumeUsageInvalidAmountReportsField(t *testing.T) {
	ts := newTestServer(t)
	ts.usage.On("Consume", mock.Anything, mock.Anything).Return(nil, usagedomain.Invalid(usagedomain.ErrInvalidUsageAmount)).Once()

	resp := ts.do(http.MethodPost, "/api/usage/consume", `{"feature":"chat","amount":0}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "amount", payload.Errors[0].Field)
	assert.Equal(t, "invalid_usage_amount", payload.Errors[0].Code)
}

func TestConsumeUsageRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{`{"feature":"chat"}`, `{"feature":"chat","amount":"ten"}`, `not json`} {
		resp := ts.do(http.MethodPost, "/api/usage/consume", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
		assert.Equal(t, "invalid_request", decodeError(t, resp).Type, body)
	}
	ts.usage.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestConsumeUsageRateLimiterUnavailable(t *testing.T) {
	ts := newTestServer(t)
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewLimiter(client, ratelimit.ScopeUsageConsume, ratelimit.Policy{Max: 10, Window: time.Minute})
	require.NoError(t, err)
	ts.srv.usageLimiter = limiter

	resp := ts.do(http.MethodPost, "/api/usage/consume", `{"feature":"chat","amount":1}`)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	ts.usage.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestUsageConsumeRateLimitDenies(t *testing.T) {
	ts := newTestServer(t)
	store := &scriptedRedis{reply: []interface{}{int64(0), "0", int64(1_700_000_000_000)}}
	limiter, err := ratelimit.NewLimiter(store, ratelimit.ScopeUsageConsume, ratelimit.Policy{Max: 10, Window: 20 * time.Second})
	require.NoError(t, err)
	ts.srv.usageLimiter = limiter

	resp := ts.do(http.MethodPost, "/api/usage/consume", `{"feature":"chat","amount":1}`)

	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "rate_limited", decodeError(t, resp).Type)
	assert.Equal(t, "2", resp.Header().Get("Retry-After"))
	assert.Equal(t, "10", resp.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "usage-user-rate", resp.Header().Get("X-Rate-Limited-Reason"))
	assert.Equal(t, []string{"usage:user-1"}, store.keys)
	ts.usage.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestAPIRateLimitCoversEveryRoute(t *testing.T) {
	ts := newTestServer(t)
	store := &scriptedRedis{reply: []interface{}{int64(0), "0", int64(1_700_000_000_000)}}
	limiter, err := ratelimit.NewLimiter(store, ratelimit.ScopeAPI, ratelimit.Policy{Max: 30, Window: time.Minute})
	require.NoError(t, err)
	ts.srv.apiLimiter = limiter

	for _, path := range []string{"/api/usage", "/api/me", "/api/usage/events", "/api/api-keys"} {
		resp := ts.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusTooManyRequests, resp.Code, path)
		assert.Equal(t, "api-user-rate", resp.Header().Get("X-Rate-Limited-Reason"), path)
	}
	for _, key := range store.keys {
		assert.True(t, strings.HasPrefix(key, "api:"), key)
	}
	ts.usage.AssertNotCalled(t, "Allowance", mock.Anything, mock.Anything)
}

func TestAPIRateLimitAllowsAndReportsRemaining(t *testing.T) {
	ts := newTestServer(t)
	store := &scriptedRedis{reply: []interface{}{int64(1), "28.6", int64(1_700_000_000_000)}}
	limiter, err := ratelimit.NewLimiter(store, ratelimit.ScopeAPI, ratelimit.Policy{Max: 30, Window: time.Minute})
	require.NoError(t, err)
	ts.srv.apiLimiter = limiter
	ts.usage.On("Allowance", mock.Anything, "user-1").Return(sampleAllowance(0), nil).Once()

	resp := ts.do(http.MethodGet, "/api/usage", "")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "30", resp.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "28", resp.Header().Get("X-RateLimit-Remaining"))
}

func TestGetMe(t *testing.T) {
	ts := newTestServer(t)
	email := "a@example.com"
	ts.profiles.On("Get", mock.Anything, "user-1").Return(&profiledomain.Profile{
		ID: "user-1", Email: &email, PlanID: "pro", PlanStatus: "active",
	}, nil).Once()
	ts.profiles.On("GetPlan", mock.Anything, "user-1").Return(profiledomain.PlanInfo{
		PlanID: plan.Pro, PlanStatus: plan.StatusActive,
	}, nil).Once()

	resp := ts.do(http.MethodGet, "/api/me", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		User    struct{ ID string } `json:"user"`
		Profile *struct {
			Email string `json:"email"`
		} `json:"profile"`
		Plan profiledomain.PlanInfo `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body.User.ID)
	require.NotNil(t, body.Profile)
	assert.Equal(t, email, body.Profile.Email)
	assert.Equal(t, plan.Pro, body.Plan.PlanID)
}

func TestGetMeWithoutProfile(t *testing.T) {
	ts := newTestServer(t)
	ts.profiles.On("Get", mock.Anything, "user-1").Return(nil, nil).Once()
	ts.profiles.On("GetPlan", mock.Anything, "user-1").Return(profiledomain.DefaultPlan(), nil).Once()

	resp := ts.do(http.MethodGet, "/api/me", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"profile":null`)
	assert.Contains(t, resp.Body.String(), `"plan_id":"free"`)
}

func TestGetMeStorageFailureIsOpaque(t *testing.T) {
	ts := newTestServer(t)
	ts.profiles.On("Get", mock.Anything, "user-1").Return(nil, errors.New("dial tcp 10.0.0.5:5432: refused")).Once()

	resp := ts.do(http.MethodGet, "/api/me", "")

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "10.0.0.5")
}

func TestGetUsage(t *testing.T) {
	ts := newTestServer(t)
	ts.usage.On("Allowance", mock.Anything, "user-1").Return(sampleAllowance(0), nil).Once()

	resp := ts.do(http.MethodGet, "/api/usage", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Allowance usagedomain.Allowance `json:"allowance"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, int64(50), body.Allowance.CreditsRemaining)
}

func TestListUsageEventsPassesQuery(t *testing.T) {
	ts := newTestServer(t)
	ts.usage.On("ListEvents", mock.Anything, usagedomain.ListEventsRequest{
		UserID:      "user-1",
		PeriodStart: "2024-06-01",
		PageToken:   "abc",
		PageSize:    5,
	}).Return(usagedomain.ListEventsResponse{Events: []usagedomain.UsageEvent{}}, nil).Once()

	resp := ts.do(http.MethodGet, "/api/usage/events?period_start=2024-06-01&page_token=abc&page_size=5", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	ts.usage.AssertExpectations(t)

	resp = ts.do(http.MethodGet, "/api/usage/events?page_size=lots", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAccountRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.account.On("Export", mock.Anything, "user-1").Return(&accountdomain.Export{UserID: "user-1"}, nil).Once()
	ts.account.On("Delete", mock.Anything, "user-1").Return(nil).Once()

	resp := ts.do(http.MethodGet, "/api/account/export", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "attachment")

	resp = ts.do(http.MethodDelete, "/api/account", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	ts.account.AssertExpectations(t)
}

func TestAPIKeyRoutesUseAuthenticatedUser(t *testing.T) {
	ts := newTestServer(t)
	ts.apiKeys.On("Create", mock.MatchedBy(func(ctx context.Context) bool {
		userID, ok := usercontext.UserIDFromContext(ctx)
		return ok && userID == "user-1"
	}), apikeydomain.CreateRequest{Name: "ci"}).Return(&apikeydomain.SecretResponse{KeyID: "key_1", APIKey: "cl_live_x"}, nil).Once()
	ts.apiKeys.On("Revoke", mock.Anything, "key_missing").Return(apikeydomain.ErrNotFound).Once()

	resp := ts.do(http.MethodPost, "/api/api-keys", `{"name":"ci"}`)
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = ts.do(http.MethodDelete, "/api/api-keys/key_missing", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	ts.apiKeys.AssertExpectations(t)
}

func TestDevRoutesHiddenInProduction(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/dev/plan", `{"plan_id":"pro","plan_status":"active"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(usagedomain.ErrUsageLimitExceeded)
	assert.Equal(t, "usage_limit_exceeded", typ)
	assert.Equal(t, "usage_limit_exceeded", code)

	typ, code = classifyErrorForLog(usagedomain.Invalid(usagedomain.ErrInvalidFeature))
	assert.Equal(t, "invalid_request", typ)
	assert.Equal(t, "invalid_feature", code)

	typ, code = classifyErrorForLog(fmt.Errorf("%w: boom", usagedomain.ErrStorageUnavailable))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "storage_unavailable", code)
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/messages"
	"callbridge/internal/rbac"
	"callbridge/internal/telephony"
	"callbridge/internal/users"

	"github.com/gin-gonic/gin"
)

type fakeProvider struct {
	sid      string
	placeErr error
	smsSent  int
}

func (p *fakeProvider) Name() string                          { return "fake" }
func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	if p.placeErr != nil {
		return telephony.PlaceCallResult{}, p.placeErr
	}
	sid := p.sid
	if sid == "" {
		sid = "CA-test"
	}
	return telephony.PlaceCallResult{ProviderCallID: sid}, nil
}

func (p *fakeProvider) SendSMS(ctx context.Context, req telephony.SMSRequest) error {
	p.smsSent++
	return nil
}

type testServer struct {
	engine  *gin.Engine
	manager *auth.Manager
}

// newTestServer wires handlers onto the same route shape as the API binary,
// backed by in-memory repositories and a fake provider.
func newTestServer(t *testing.T, provider *fakeProvider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	userSvc := users.NewService(users.NewMemoryRepo())
	msgSvc := messages.NewService(messages.NewMemoryRepo(), userSvc, provider)
	lifecycle := calls.NewLifecycle(calls.NewMemoryRepo(), provider, nil, "https://api.example.com")

	h := Handlers{Auth: manager, Users: userSvc, Messages: msgSvc, Calls: lifecycle}

	r := gin.New()
	r.POST("/users", h.Register)
	r.POST("/auth/token", h.IssueToken)
	r.POST("/calls/provider-callback/:call_id", h.CallInstructions)
	r.POST("/calls/provider-callback/:call_id/status", h.CallStatus)

	authed := r.Group("/")
	authed.Use(auth.RequireAccessToken(manager))
	{
		authed.GET("/me", h.Me)
		authed.GET("/users/:user_id", h.GetUser)
		authed.POST("/messages", h.SendMessage)
		authed.GET("/messages", h.ListMessages)
		authed.POST("/calls/start", h.StartCall)
		authed.GET("/calls", h.ListCalls)
		authed.GET("/calls/:call_id", h.GetCall)

		admin := authed.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/calls", h.AdminListCalls)
			admin.GET("/users", h.ListUsers)
		}
	}

	return &testServer{engine: r, manager: manager}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) registerAndLogin(t *testing.T, username, email string) (userID, token string) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/users", "",
		`{"username":"`+username+`","email":"`+email+`","password":"s3cret-pass"}`, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, w.Code, w.Body.String())
	}
	var u struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	form := url.Values{"username": {email}, "password": {"s3cret-pass"}}
	w = ts.do(t, http.MethodPost, "/auth/token", "", form.Encode(), "application/x-www-form-urlencoded")
	if w.Code != http.StatusOK {
		t.Fatalf("token for %s: status %d body %s", email, w.Code, w.Body.String())
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token response: %+v", tok)
	}
	return u.ID, tok.AccessToken
}

func TestRegisterConflictsAndValidation(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	ts.registerAndLogin(t, "alice", "alice@example.com")

	w := ts.do(t, http.MethodPost, "/users", "",
		`{"username":"alice2","email":"alice@example.com","password":"s3cret-pass"}`, "application/json")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/users", "",
		`{"username":"bob","email":"bob@example.com","password":"short"}`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("weak password: expected 400, got %d", w.Code)
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	ts.registerAndLogin(t, "alice", "alice@example.com")

	form := url.Values{"username": {"alice@example.com"}, "password": {"wrong-password"}}
	w := ts.do(t, http.MethodPost, "/auth/token", "", form.Encode(), "application/x-www-form-urlencoded")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestMeRequiresToken(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	if w := ts.do(t, http.MethodGet, "/me", "", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	uid, token := ts.registerAndLogin(t, "alice", "alice@example.com")
	w := ts.do(t, http.MethodGet, "/me", token, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", w.Code, w.Body.String())
	}
	var u users.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != uid || u.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", u)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("password material leaked in response: %s", w.Body.String())
	}
}

func TestMessageFlow(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	_, aliceTok := ts.registerAndLogin(t, "alice", "alice@example.com")
	bobID, bobTok := ts.registerAndLogin(t, "bob", "bob@example.com")

	w := ts.do(t, http.MethodPost, "/messages", aliceTok,
		`{"recipient_id":"`+bobID+`","body":"hello bob"}`, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d body %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/messages", aliceTok,
		`{"recipient_id":"`+"c0ffee00-0000-0000-0000-000000000000"+`","body":"hi"}`, "application/json")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown recipient: expected 404, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/messages", bobTok, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list []messages.Message
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Body != "hello bob" {
		t.Fatalf("unexpected message list: %+v", list)
	}
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{sid: "CA-777"})
	_, token := ts.registerAndLogin(t, "alice", "alice@example.com")

	w := ts.do(t, http.MethodPost, "/calls/start", token,
		`{"destination_number":"+15551230000"}`, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d body %s", w.Code, w.Body.String())
	}
	var started struct {
		CallRecordID   string `json:"call_record_id"`
		ProviderCallID string `json:"provider_call_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.ProviderCallID != "CA-777" {
		t.Fatalf("expected provider sid persisted, got %q", started.ProviderCallID)
	}

	// Provider fetches instructions when the callee answers.
	w = ts.do(t, http.MethodPost, "/calls/provider-callback/"+started.CallRecordID, "", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("instructions: expected 200, got %d body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Dial>") || !strings.Contains(w.Body.String(), "+15551230000") {
		t.Fatalf("expected dial instruction, got %s", w.Body.String())
	}

	// Status callbacks advance the record.
	statusForm := url.Values{"CallSid": {"CA-777"}, "CallStatus": {"in-progress"}}
	w = ts.do(t, http.MethodPost, "/calls/provider-callback/"+started.CallRecordID+"/status", "",
		statusForm.Encode(), "application/x-www-form-urlencoded")
	if w.Code != http.StatusNoContent {
		t.Fatalf("in-progress callback: expected 204, got %d body %s", w.Code, w.Body.String())
	}

	statusForm = url.Values{"CallSid": {"CA-777"}, "CallStatus": {"completed"}, "CallDuration": {"999"}}
	w = ts.do(t, http.MethodPost, "/calls/provider-callback/"+started.CallRecordID+"/status", "",
		statusForm.Encode(), "application/x-www-form-urlencoded")
	if w.Code != http.StatusNoContent {
		t.Fatalf("completed callback: expected 204, got %d body %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/calls/"+started.CallRecordID, token, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get call: expected 200, got %d", w.Code)
	}
	var rec calls.CallRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != calls.StatusCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
	if rec.EndTime == nil || rec.DurationSeconds == nil {
		t.Fatalf("expected terminal timing fields set: %+v", rec)
	}
}

func TestCallStartRejectsBadDestination(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	_, token := ts.registerAndLogin(t, "alice", "alice@example.com")

	w := ts.do(t, http.MethodPost, "/calls/start", token,
		`{"destination_number":"555-1234"}`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", w.Code, w.Body.String())
	}
}

func TestCallStartMapsProviderOutage(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{placeErr: telephony.ErrProviderUnavailable})
	_, token := ts.registerAndLogin(t, "alice", "alice@example.com")

	w := ts.do(t, http.MethodPost, "/calls/start", token,
		`{"destination_number":"+15551230000"}`, "application/json")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body %s", w.Code, w.Body.String())
	}
}

func TestCallbackUnknownAndMalformedIDs(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	w := ts.do(t, http.MethodPost, "/calls/provider-callback/2c5ea4c0-4067-11e9-8bad-9b1deb4d3b7d", "", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("expected hangup instruction for unknown record, got %s", w.Body.String())
	}

	w = ts.do(t, http.MethodPost, "/calls/provider-callback/not-a-uuid", "", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed id: expected 400, got %d", w.Code)
	}

	statusForm := url.Values{"CallSid": {"CA-1"}, "CallStatus": {"completed"}}
	w = ts.do(t, http.MethodPost, "/calls/provider-callback/not-a-uuid/status", "",
		statusForm.Encode(), "application/x-www-form-urlencoded")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed status id: expected 400, got %d", w.Code)
	}
}

func TestCallRecordsAreScopedToCaller(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{sid: "CA-9"})
	_, aliceTok := ts.registerAndLogin(t, "alice", "alice@example.com")
	_, bobTok := ts.registerAndLogin(t, "bob", "bob@example.com")

	w := ts.do(t, http.MethodPost, "/calls/start", aliceTok,
		`{"destination_number":"+15551230000"}`, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("start: %d", w.Code)
	}
	var started struct {
		CallRecordID string `json:"call_record_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if w := ts.do(t, http.MethodGet, "/calls/"+started.CallRecordID, bobTok, "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign record read: expected 404, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/calls", bobTok, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var list []calls.CallRecord
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list for bob, got %d records", len(list))
	}
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	_, userTok := ts.registerAndLogin(t, "alice", "alice@example.com")

	if w := ts.do(t, http.MethodGet, "/admin/calls", userTok, "", ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", w.Code)
	}

	adminTok, err := ts.manager.Issue(time.Now(), "admin@example.com", "admin-1", users.RoleAdmin)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	if w := ts.do(t, http.MethodGet, "/admin/calls", adminTok, "", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
}

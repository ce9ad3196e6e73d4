package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"callbridge/internal/config"
)

func testProvider(handler http.Handler) (*TwilioProvider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	p := NewTwilioProvider(config.ProviderConfig{
		AccountSID: "AC-test",
		AuthToken:  "token",
		FromNumber: "+15550000001",
	}).WithBaseURL(srv.URL)
	return p, srv
}

func TestPlaceCallReturnsProviderSid(t *testing.T) {
	var gotTo, gotURL string
	p, srv := testProvider(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC-test/Calls.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if u, pw, ok := r.BasicAuth(); !ok || u != "AC-test" || pw != "token" {
			t.Errorf("missing basic auth")
		}
		_ = r.ParseForm()
		gotTo = r.PostFormValue("To")
		gotURL = r.PostFormValue("Url")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA123","status":"queued"}`))
	}))
	defer srv.Close()

	res, err := p.PlaceCall(context.Background(), PlaceCallRequest{
		Destination: "+15551234567",
		CallbackURL: "https://api.example.com/calls/provider-callback/abc",
	})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if res.ProviderCallID != "CA123" {
		t.Fatalf("expected sid CA123, got %q", res.ProviderCallID)
	}
	if gotTo != "+15551234567" {
		t.Fatalf("expected To forwarded, got %q", gotTo)
	}
	if gotURL != "https://api.example.com/calls/provider-callback/abc" {
		t.Fatalf("expected callback url forwarded, got %q", gotURL)
	}
}

func TestPlaceCallMapsServerErrorToUnavailable(t *testing.T) {
	p, srv := testProvider(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := p.PlaceCall(context.Background(), PlaceCallRequest{Destination: "+15551234567", CallbackURL: "https://cb"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestPlaceCallMapsBadRequestToInvalidDestination(t *testing.T) {
	p, srv := testProvider(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	_, err := p.PlaceCall(context.Background(), PlaceCallRequest{Destination: "+0", CallbackURL: "https://cb"})
	if !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected ErrInvalidDestination, got %v", err)
	}
}

func TestPlaceCallTransportFailureIsUnavailable(t *testing.T) {
	p, srv := testProvider(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := p.PlaceCall(context.Background(), PlaceCallRequest{Destination: "+15551234567", CallbackURL: "https://cb"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestParseStatusCallback(t *testing.T) {
	body := "CallSid=CA123&CallStatus=completed&CallDuration=42&From=%2B15550000001&To=%2B15551234567"
	r := httptest.NewRequest(http.MethodPost, "/calls/provider-callback/id/status", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseStatusCallback(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if form.CallSid != "CA123" || form.CallStatus != "completed" {
		t.Fatalf("unexpected form: %+v", form)
	}
	if form.CallDuration != "42" {
		t.Fatalf("expected raw duration kept for audit, got %q", form.CallDuration)
	}
	if form.RawPayload() == "" {
		t.Fatalf("expected raw payload")
	}
}

package telephony

import (
	"context"
	"errors"
)

// Provider defines the provider-agnostic interface used by business logic.
//
// Rules:
// - No provider SDK or raw HTTP calls outside telephony adapters.
// - Keep request/response types provider-agnostic; store provider raw payloads
//   in audit metadata if needed.
// - One attempt per call; retries are the caller's decision (currently: none).
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	SendSMS(ctx context.Context, req SMSRequest) error
}

// Gateway failure taxonomy. Adapters must map provider responses onto these
// so business logic never inspects provider status codes.
var (
	// ErrProviderUnavailable covers transport failures, provider 5xx and
	// auth rejection. The call was (as far as we know) never placed.
	ErrProviderUnavailable = errors.New("telephony: provider unavailable")

	// ErrInvalidDestination covers provider-side rejection of the dialed
	// number.
	ErrInvalidDestination = errors.New("telephony: invalid destination")
)

// PlaceCallRequest asks the provider to dial Destination and fetch routing
// instructions from CallbackURL once the callee is reached.
type PlaceCallRequest struct {
	Destination string `json:"destination"`

	// CallbackURL embeds the local call record id; the provider requests it
	// to learn what to do with the answered call.
	CallbackURL string `json:"callback_url"`

	// StatusCallbackURL, when set, receives lifecycle status events.
	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

// PlaceCallResult carries the provider-assigned call identifier.
type PlaceCallResult struct {
	ProviderCallID string `json:"provider_call_id"`
}

// SMSRequest is a single outbound text message. No retries, no state.
type SMSRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

package telephony

import (
	"encoding/json"
	"net/http"
	"strings"
)

// StatusForm captures the subset of voice status callback fields we care
// about. Twilio sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only.
// State transitions are not decided here.
type StatusForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string

	// CallDuration is the provider's claimed duration in seconds.
	// It is parsed for audit payloads only and must never feed the
	// persisted duration; that value is computed server-side.
	CallDuration string
}

func ParseStatusCallback(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, err
	}
	f := StatusForm{
		CallSid:      r.PostFormValue("CallSid"),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		CallStatus:   strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallDuration: strings.TrimSpace(r.PostFormValue("CallDuration")),
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// The provider sometimes sends "anonymous" or empty; keep as-is.
	return s
}

// RawPayload serializes the form for audit storage.
func (f StatusForm) RawPayload() string {
	raw, _ := json.Marshal(f)
	return string(raw)
}

package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

// RoutingAction describes what the provider should do with an answered call.
type RoutingAction string

const (
	RoutingActionConnect RoutingAction = "connect"
	RoutingActionHangup  RoutingAction = "hangup"
	RoutingActionReject  RoutingAction = "reject"
)

// RoutingInstruction is the provider-boundary answer to a routing request.
type RoutingInstruction struct {
	Action RoutingAction `json:"action"`

	// ConnectTo is used when Action == "connect".
	ConnectTo string `json:"connect_to,omitempty"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// RenderTwiML maps a RoutingInstruction to TwiML.
func RenderTwiML(ins RoutingInstruction) (string, error) {
	var r twimlResponse

	switch ins.Action {
	case RoutingActionReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "busy"})
	case RoutingActionHangup:
		r.Verbs = append(r.Verbs, twimlHangup{})
	case RoutingActionConnect:
		if strings.TrimSpace(ins.ConnectTo) == "" {
			return "", errors.New("telephony: connect_to required for connect action")
		}
		d := twimlDial{}
		// Prefer SIP if it looks like sip:... otherwise treat as a PSTN number.
		if strings.HasPrefix(strings.ToLower(ins.ConnectTo), "sip:") {
			d.Sip = &twimlSip{URI: ins.ConnectTo}
		} else {
			d.Number = ins.ConnectTo
		}
		r.Verbs = append(r.Verbs, d)
	default:
		return "", errors.New("telephony: unknown routing action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

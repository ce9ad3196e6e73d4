package calls

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"callbridge/internal/audit"
	"callbridge/internal/telephony"
	"callbridge/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("call record not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// e164Re matches E.164 dial strings: + followed by up to 15 digits.
var e164Re = regexp.MustCompile(`^\+[1-9][0-9]{1,14}$`)

// placeCallTimeout bounds the single outbound provider request during
// Initiate. It is the longest-latency step of any operation here.
const placeCallTimeout = 20 * time.Second

// compensationTimeout bounds the failure mark written when PlaceCall errors.
const compensationTimeout = 5 * time.Second

// Lifecycle orchestrates call creation and drives the call state machine as
// the provider reports progress through callbacks.
//
// It holds only record ids during orchestration, never cached copies of
// mutable fields: callbacks race with each other and with reads, and all
// ordering guarantees are delegated to the repository's conditional updates.
type Lifecycle struct {
	repo    Repository
	gateway telephony.Provider
	audit   *audit.Service

	// publicBaseURL is the externally reachable prefix for callback URLs.
	publicBaseURL string

	clock func() time.Time
}

func NewLifecycle(repo Repository, gateway telephony.Provider, auditSvc *audit.Service, publicBaseURL string) *Lifecycle {
	return &Lifecycle{
		repo:          repo,
		gateway:       gateway,
		audit:         auditSvc,
		publicBaseURL: publicBaseURL,
		clock:         time.Now,
	}
}

// CallbackURL returns the provider-facing routing URL for a record.
func (l *Lifecycle) CallbackURL(recordID string) string {
	return fmt.Sprintf("%s/calls/provider-callback/%s", l.publicBaseURL, recordID)
}

// StatusCallbackURL returns the provider-facing status event URL for a record.
func (l *Lifecycle) StatusCallbackURL(recordID string) string {
	return l.CallbackURL(recordID) + "/status"
}

/* ===================== INITIATE ===================== */

// Initiate creates a ringing call record and asks the provider to place the
// call. If the provider request fails, the record is marked failed before the
// error is surfaced: a record must never be left ringing when no call was
// actually placed. This is a compensating action, not a rollback; the id is
// retained for audit.
func (l *Lifecycle) Initiate(ctx context.Context, callerID, destination string) (CallRecord, error) {
	if callerID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	if !e164Re.MatchString(destination) {
		return CallRecord{}, fmt.Errorf("%w: destination must be E.164", ErrInvalidArgument)
	}

	now := l.clock().UTC()
	rec := CallRecord{
		ID:          uuid.NewString(),
		CallerID:    callerID,
		Destination: destination,
		Status:      StatusRinging,
		StartTime:   now,
		CreatedAt:   now,
	}
	if err := l.repo.Create(ctx, rec); err != nil {
		return CallRecord{}, err
	}
	l.logEvent(ctx, audit.EventTypeCallInitiated, rec.ID, callerID, "", "outbound call requested", "")

	placeCtx, cancel := context.WithTimeout(ctx, placeCallTimeout)
	defer cancel()

	res, err := l.gateway.PlaceCall(placeCtx, telephony.PlaceCallRequest{
		Destination:       destination,
		CallbackURL:       l.CallbackURL(rec.ID),
		StatusCallbackURL: l.StatusCallbackURL(rec.ID),
	})
	if err != nil {
		// The provider request often fails because the inbound context
		// died (client disconnect, deadline). The compensating write runs
		// on a detached context so the record cannot stay ringing.
		compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()

		endTime := l.clock().UTC()
		if _, finErr := l.repo.Finish(compCtx, rec.ID, StatusFailed, endTime, durationSince(rec.StartTime, endTime)); finErr != nil {
			logger.From(ctx).Error("compensating failure mark failed", "call_id", rec.ID, "err", finErr)
		}
		l.logEvent(compCtx, audit.EventTypeProviderFailure, rec.ID, callerID, "", "provider rejected or unreachable", "")
		return CallRecord{}, err
	}

	if err := l.repo.SetProviderCallID(ctx, rec.ID, res.ProviderCallID); err != nil {
		// The call is already placed; correlation is degraded but the
		// record must not be failed over a bookkeeping write.
		logger.From(ctx).Error("persisting provider call id failed", "call_id", rec.ID, "err", err)
	}
	rec.ProviderCallID = res.ProviderCallID
	return rec, nil
}

/* ===================== PROVIDER CALLBACKS ===================== */

// RoutingDecision answers the provider's "what should happen with this call"
// request. Unknown or malformed ids yield errors that the HTTP layer turns
// into responses making the provider terminate the call: never proceed with
// a call the system has no record of.
func (l *Lifecycle) RoutingDecision(ctx context.Context, rawRecordID, clientIP string) (telephony.RoutingInstruction, error) {
	id, err := parseRecordID(rawRecordID)
	if err != nil {
		return telephony.RoutingInstruction{}, err
	}

	rec, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return telephony.RoutingInstruction{}, err
	}

	l.logEvent(ctx, audit.EventTypeRoutingServed, rec.ID, "", clientIP, "routing instructions served", "")
	return telephony.RoutingInstruction{
		Action:    telephony.RoutingActionConnect,
		ConnectTo: rec.Destination,
	}, nil
}

// ApplyStatus applies a provider status event to the state machine.
//
// Duplicate deliveries, events for records already in a terminal state, and
// events outside the transition table (a "completed" for a call never
// answered) are absorbed as logged no-ops; provider retries are expected.
// On entering a terminal state, duration is computed server-side from the
// record's start time and persisted atomically with end_time and status.
func (l *Lifecycle) ApplyStatus(ctx context.Context, rawRecordID, providerStatus, providerCallID, clientIP, rawPayload string) error {
	id, err := parseRecordID(rawRecordID)
	if err != nil {
		return err
	}

	target, known := mapProviderStatus(providerStatus)
	if !known {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, providerStatus)
	}

	rec, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	// A status callback carrying a SID that does not match the one recorded
	// at initiation is treated as addressing a call we have no record of.
	if rec.ProviderCallID != "" && providerCallID != "" && rec.ProviderCallID != providerCallID {
		return ErrNotFound
	}

	if target == "" {
		// Pre-answer progress events (queued, initiated, ringing): the
		// record is born ringing, nothing to apply.
		return nil
	}

	// The model's transition table decides whether the event applies at all;
	// the repository's conditional update remains the race-safe arbiter when
	// callbacks land concurrently.
	if !rec.Status.CanTransitionTo(target) {
		l.absorbNoOp(ctx, id, providerStatus, clientIP, rawPayload)
		return nil
	}

	switch target {
	case StatusInProgress:
		applied, err := l.repo.MarkInProgress(ctx, id)
		if err != nil {
			return err
		}
		if !applied {
			l.absorbNoOp(ctx, id, providerStatus, clientIP, rawPayload)
			return nil
		}
		l.logEvent(ctx, audit.EventTypeStatusTransition, id, "", clientIP, "call answered", rawPayload)
		return nil

	default: // terminal
		endTime := l.clock().UTC()
		applied, err := l.repo.Finish(ctx, id, target, endTime, durationSince(rec.StartTime, endTime))
		if err != nil {
			return err
		}
		if !applied {
			l.absorbNoOp(ctx, id, providerStatus, clientIP, rawPayload)
			return nil
		}
		l.logEvent(ctx, audit.EventTypeStatusTransition, id, "", clientIP, "call "+string(target), rawPayload)
		return nil
	}
}

/* ===================== READS ===================== */

func (l *Lifecycle) Get(ctx context.Context, rawRecordID string) (CallRecord, error) {
	id, err := parseRecordID(rawRecordID)
	if err != nil {
		return CallRecord{}, err
	}
	return l.repo.GetByID(ctx, id)
}

// ListForCaller returns the caller's own records ordered by creation.
func (l *Lifecycle) ListForCaller(ctx context.Context, callerID string, skip, limit int) ([]CallRecord, error) {
	if callerID == "" {
		return nil, ErrInvalidArgument
	}
	skip, limit = clampPage(skip, limit)
	return l.repo.ListByCaller(ctx, callerID, skip, limit)
}

// ListAll returns every record; callers must gate this behind the admin role.
func (l *Lifecycle) ListAll(ctx context.Context, skip, limit int) ([]CallRecord, error) {
	skip, limit = clampPage(skip, limit)
	return l.repo.List(ctx, skip, limit)
}

/* ===================== HELPERS ===================== */

func parseRecordID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed call record id", ErrInvalidArgument)
	}
	return id.String(), nil
}

// mapProviderStatus translates provider status strings onto the state
// machine. An empty target with known=true means "accepted, nothing to
// apply". Unknown statuses are rejected.
func mapProviderStatus(s string) (Status, bool) {
	switch s {
	case "queued", "initiated", "ringing":
		return "", true
	case "in-progress", "answered":
		return StatusInProgress, true
	case "completed":
		return StatusCompleted, true
	case "busy", "no-answer", "failed", "canceled":
		return StatusFailed, true
	default:
		return "", false
	}
}

func durationSince(start, end time.Time) int {
	d := int(end.Sub(start) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return skip, limit
}

func (l *Lifecycle) absorbNoOp(ctx context.Context, id, providerStatus, clientIP, rawPayload string) {
	logger.From(ctx).Info("status event absorbed as no-op",
		"call_id", id,
		"provider_status", providerStatus,
	)
	l.logEvent(ctx, audit.EventTypeTerminalDuplicate, id, "", clientIP, "stale or duplicate event ignored: "+providerStatus, rawPayload)
}

func (l *Lifecycle) logEvent(ctx context.Context, typ audit.EventType, callID, actorUserID, ip, message, metadata string) {
	if l.audit == nil {
		return
	}
	if err := l.audit.LogCallEvent(ctx, typ, callID, actorUserID, ip, message, metadata); err != nil {
		logger.From(ctx).Warn("audit append failed", "call_id", callID, "type", string(typ), "err", err)
	}
}

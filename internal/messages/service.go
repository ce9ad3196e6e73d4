package messages

import (
	"context"
	"errors"
	"strings"
	"time"

	"callbridge/internal/telephony"
	"callbridge/internal/users"
	"callbridge/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrRecipientUnknown = errors.New("recipient not found")
)

const maxBodyLength = 1600 // provider SMS segment ceiling

// Service stores messages between registered users.
//
// SMS notification is a single best-effort attempt with no retries and no
// delivery state; failures are logged and never surfaced to the sender.
type Service struct {
	repo    Repository
	users   *users.Service
	gateway telephony.Provider
	clock   func() time.Time
}

// NewService wires the message store. gateway may be nil to disable SMS
// notifications entirely.
func NewService(repo Repository, userSvc *users.Service, gateway telephony.Provider) *Service {
	return &Service{repo: repo, users: userSvc, gateway: gateway, clock: time.Now}
}

// Send persists a message from sender to a registered recipient.
func (s *Service) Send(ctx context.Context, senderID, recipientID, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if senderID == "" || recipientID == "" || body == "" {
		return Message{}, ErrInvalidArgument
	}
	if len(body) > maxBodyLength {
		return Message{}, ErrInvalidArgument
	}

	recipient, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Message{}, ErrRecipientUnknown
		}
		return Message{}, err
	}

	m := Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipient.ID,
		Body:        body,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return Message{}, err
	}

	s.notify(ctx, recipient, m)
	return m, nil
}

// ListForUser returns messages the user sent or received, ordered by creation.
func (s *Service) ListForUser(ctx context.Context, userID string, skip, limit int) ([]Message, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.repo.ListForUser(ctx, userID, skip, limit)
}

func (s *Service) notify(ctx context.Context, recipient users.User, m Message) {
	if s.gateway == nil {
		return
	}
	if recipient.PhoneNumber == "" {
		return
	}
	err := s.gateway.SendSMS(ctx, telephony.SMSRequest{
		To:   recipient.PhoneNumber,
		Body: m.Body,
	})
	if err != nil {
		logger.From(ctx).Warn("sms notification failed", "message_id", m.ID, "err", err)
	}
}

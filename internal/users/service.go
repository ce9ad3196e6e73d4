package users

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var e164Re = regexp.MustCompile(`^\+[1-9][0-9]{1,14}$`)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// Roles carried in issued tokens. Keep these stable; they are part of
// the auth contract.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Service provides user registration and credential checks.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Register creates a new user with a bcrypt password hash.
// Duplicate email/username surfaces as ErrEmailTaken/ErrUsernameTaken.
// phoneNumber is optional; when present it must be E.164.
func (s *Service) Register(ctx context.Context, username, email, password, phoneNumber string) (User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	phoneNumber = strings.TrimSpace(phoneNumber)

	if username == "" || email == "" {
		return User{}, ErrInvalidArgument
	}
	if !strings.Contains(email, "@") {
		return User{}, ErrInvalidArgument
	}
	if len(password) < 8 {
		return User{}, ErrInvalidArgument
	}
	if phoneNumber != "" && !e164Re.MatchString(phoneNumber) {
		return User{}, ErrInvalidArgument
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		PhoneNumber:  phoneNumber,
		Role:         RoleUser,
		IsActive:     true,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate checks email/password and returns the user on success.
// Unknown email and wrong password both map to ErrInvalidCredentials so the
// response shape does not leak which part failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !u.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrInvalidArgument
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, skip, limit int) ([]User, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, skip, limit)
}

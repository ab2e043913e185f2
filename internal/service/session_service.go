package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/repository"
)

const minPasswordLength = 4

// Session is an authenticated user within a scope. The scope names where the
// session lives: empty for the local CLI, a token id for the HTTP API, a chat
// for the Telegram bot.
type Session struct {
	Scope string
	User  models.User
}

type sessionCtxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(Session)
	return s, ok
}

type SessionService struct {
	users *repository.UserRepository
	log   *slog.Logger
	now   func() time.Time
	cost  int
}

func NewSessionService(users *repository.UserRepository, log *slog.Logger) *SessionService {
	return &SessionService{
		users: users,
		log:   log,
		now:   time.Now,
		cost:  bcrypt.DefaultCost,
	}
}

// NormalizeEmail lowercases and trims an email so it can be used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if !strings.Contains(email, "@") || strings.ContainsAny(email, ": \t\r\n") {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	return nil
}

// SignUp creates a free account and signs it in within scope.
func (s *SessionService) SignUp(ctx context.Context, scope, email, password string) (Session, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return Session{}, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if existing != nil {
		return Session{}, fmt.Errorf("%w: account %s", ErrAlreadyExists, email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Session{}, fmt.Errorf("%w: password is too long", ErrValidation)
		}
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hash),
		IsPremium:    false,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Save(ctx, user); err != nil {
		return Session{}, err
	}
	s.log.Info("user signed up", "email", email)
	return s.establish(ctx, scope, user)
}

// LogIn checks the password and signs the user in within scope. An unknown
// email yields ErrNotFound so callers can offer sign up instead.
func (s *SessionService) LogIn(ctx context.Context, scope, email, password string) (Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if user == nil {
		return Session{}, fmt.Errorf("%w: account %s", ErrNotFound, email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredential
	}
	return s.establish(ctx, scope, *user)
}

func (s *SessionService) establish(ctx context.Context, scope string, user models.User) (Session, error) {
	if err := s.users.SetCurrentUser(ctx, scope, user); err != nil {
		return Session{}, err
	}
	return Session{Scope: scope, User: user}, nil
}

// LogOut drops the session pointer of scope. The account is kept and logging
// out twice is fine.
func (s *SessionService) LogOut(ctx context.Context, scope string) error {
	return s.users.ClearCurrentUser(ctx, scope)
}

// Current resumes the session persisted for scope. It returns nil when nobody
// is signed in there. The user is re-read so entitlement changes made through
// another scope are visible.
func (s *SessionService) Current(ctx context.Context, scope string) (*Session, error) {
	pointer, err := s.users.CurrentUser(ctx, scope)
	if err != nil {
		return nil, err
	}
	if pointer == nil {
		return nil, nil
	}

	user, err := s.users.FindByEmail(ctx, pointer.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.log.Warn("session points at missing account", "scope", scope, "email", pointer.Email)
		return nil, nil
	}
	return &Session{Scope: scope, User: *user}, nil
}

// Upgrade switches the account to premium and refreshes the session pointer.
func (s *SessionService) Upgrade(ctx context.Context, sess Session) (Session, error) {
	user, err := s.users.FindByEmail(ctx, sess.User.Email)
	if err != nil {
		return Session{}, err
	}
	if user == nil {
		return Session{}, fmt.Errorf("%w: account %s", ErrNotFound, sess.User.Email)
	}

	upgraded := *user
	upgraded.IsPremium = true
	if err := s.users.Save(ctx, upgraded); err != nil {
		return Session{}, err
	}
	s.log.Info("user upgraded", "email", upgraded.Email)
	return s.establish(ctx, sess.Scope, upgraded)
}

package session

import (
	"context"
	"errors"
	"strings"

	"koikhabo/internal/domain"
	"koikhabo/order-svc/internal/apiclient"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var ErrNoSession = errors.New("no active session")

// Backend is the subset of the REST client the manager authenticates against.
type Backend interface {
	LoginUser(ctx context.Context, email, fullName string) (*apiclient.UserAccount, error)
	StartGuest(ctx context.Context) (*apiclient.GuestSession, error)
	LoginAdmin(ctx context.Context, name, password string) (*apiclient.AdminLogin, error)
}

var _ Backend = (*apiclient.Client)(nil)

type Manager struct {
	store    *Store
	backend  Backend
	validate *validator.Validate
	logger   *zap.Logger
}

func NewManager(store *Store, backend Backend, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		backend:  backend,
		validate: validator.New(),
		logger:   logger,
	}
}

func (m *Manager) Current(ctx context.Context, sessionID string) (Actor, error) {
	actor, ok, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return Actor{}, err
	}
	if !ok {
		return Actor{}, ErrNoSession
	}
	return actor, nil
}

func (m *Manager) LoginUser(ctx context.Context, sessionID, email, fullName string) (Actor, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)

	if fullName == "" {
		return Actor{}, domain.NewValidationError("full_name", "Please enter your full name")
	}
	if email == "" {
		return Actor{}, domain.NewValidationError("email", "Please enter your email address")
	}
	if err := m.validate.Var(email, "email"); err != nil {
		return Actor{}, domain.NewValidationError("email", "Please enter a valid email address")
	}

	account, err := m.backend.LoginUser(ctx, email, fullName)
	if err != nil {
		return Actor{}, err
	}

	user := User{UserID: account.UserID, Email: account.Email, Name: account.Name}
	if account.Institution != nil {
		user.Institution = *account.Institution
	}
	actor := NewUser(user)
	if err := m.store.Put(ctx, sessionID, actor); err != nil {
		return Actor{}, err
	}
	m.logger.Info("user logged in", zap.String("session", sessionID), zap.Int("user_id", user.UserID))
	return actor, nil
}

func (m *Manager) StartGuest(ctx context.Context, sessionID string) (Actor, error) {
	guest, err := m.backend.StartGuest(ctx)
	if err != nil {
		return Actor{}, err
	}

	actor := NewGuest(Guest{GuestID: guest.GuestID, SessionID: guest.SessionID})
	if err := m.store.Put(ctx, sessionID, actor); err != nil {
		return Actor{}, err
	}
	m.logger.Info("guest session started", zap.String("session", sessionID), zap.Int("guest_id", guest.GuestID))
	return actor, nil
}

func (m *Manager) LoginAdmin(ctx context.Context, sessionID, name, password string) (Actor, error) {
	if strings.TrimSpace(name) == "" || password == "" {
		return Actor{}, domain.NewValidationError("name", "Please enter both name and password")
	}

	admin, err := m.backend.LoginAdmin(ctx, name, password)
	if err != nil {
		return Actor{}, err
	}

	actor := NewAdmin(Admin{Name: admin.AdminName})
	if err := m.store.Put(ctx, sessionID, actor); err != nil {
		return Actor{}, err
	}
	m.logger.Info("admin logged in", zap.String("session", sessionID), zap.String("admin", admin.AdminName))
	return actor, nil
}

func (m *Manager) SelectInstitution(ctx context.Context, sessionID string, inst Institution) error {
	return m.store.SetInstitution(ctx, sessionID, inst)
}

func (m *Manager) Institution(ctx context.Context, sessionID string) (*Institution, error) {
	return m.store.Institution(ctx, sessionID)
}

func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	return m.store.Clear(ctx, sessionID)
}

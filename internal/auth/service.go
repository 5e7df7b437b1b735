package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Revoker stores logged-out token ids.
type Revoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

var (
	errEmailTaken    = shared.Errorf(shared.ErrConflict, "Email is already registered")
	errWrongPassword = shared.Errorf(shared.ErrBadRequest, "Current password is incorrect")
	errDisabled      = shared.Errorf(shared.ErrForbidden, "Your account is disabled")
	errAccountGone   = shared.Errorf(shared.ErrUnauthenticated, "Account no longer exists")
	errRevoked       = shared.Errorf(shared.ErrUnauthenticated, "Token has been revoked")
)

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	tokens  *TokenManager
	revoked Revoker
	logger  *slog.Logger
	cost    int
}

// NewService constructs a new Service. revoked may be nil, in which case logout only
// returns success and tokens stay valid until they expire.
func NewService(repo Repository, tokens *TokenManager, revoked Revoker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, revoked: revoked, logger: logger, cost: bcrypt.DefaultCost}
}

func (s *Service) hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

func (s *Service) issue(user User) (Session, error) {
	token, claims, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user.Profile()}, nil
}

// Register creates an enabled User account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return Session{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return Session{}, err
	}
	user, err := s.repo.Create(ctx, User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         rbac.RoleUser,
		Enabled:      true,
	})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return Session{}, errEmailTaken
		}
		return Session{}, err
	}
	s.logger.Info("user registered", slog.Int64("user_id", user.ID))
	return s.issue(user)
}

// Login validates email/password credentials. Disabled accounts may still sign in.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return Session{}, err
	}
	user, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate resolves a raw bearer token into the current principal. Role, enabled flag
// and grants come from the stored account, not from the token.
func (s *Service) Authenticate(ctx context.Context, raw string) (rbac.Principal, *shared.Session, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return rbac.Principal{}, nil, err
	}
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return rbac.Principal{}, nil, err
		}
		if revoked {
			return rbac.Principal{}, nil, errRevoked
		}
	}
	id, err := claims.UserID()
	if err != nil {
		return rbac.Principal{}, nil, shared.Errorf(shared.ErrUnauthenticated, "Invalid token")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Principal{}, nil, errAccountGone
		}
		return rbac.Principal{}, nil, err
	}
	sess := &shared.Session{ID: claims.ID, UserID: user.ID, ExpiresAt: claims.ExpiresAt.Time}
	return user.Principal(), sess, nil
}

// Logout revokes the session token until it would have expired.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) error {
	if sess == nil {
		return shared.ErrUnauthenticated
	}
	if s.revoked == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, sess.ID, sess.ExpiresAt)
}

// Profile returns the caller's account.
func (s *Service) Profile(ctx context.Context, p rbac.Principal) (Profile, error) {
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Profile{}, errAccountGone
		}
		return Profile{}, err
	}
	return user.Profile(), nil
}

// UpdateProfile changes the caller's name and email.
func (s *Service) UpdateProfile(ctx context.Context, p rbac.Principal, in ProfileInput) (Profile, error) {
	if !p.Enabled {
		return Profile{}, errDisabled
	}
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return Profile{}, err
	}
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Profile{}, errAccountGone
		}
		return Profile{}, err
	}
	name, email := user.Name, user.Email
	if in.Name != nil {
		name = *in.Name
	}
	if in.Email != nil {
		email = *in.Email
	}
	if name == user.Name && email == user.Email {
		return user.Profile(), nil
	}
	updated, err := s.repo.UpdateProfile(ctx, user.ID, name, email)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return Profile{}, errEmailTaken
		}
		return Profile{}, err
	}
	return updated.Profile(), nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, p rbac.Principal, in PasswordInput) error {
	if !p.Enabled {
		return errDisabled
	}
	if err := validate.Struct(in); err != nil {
		return err
	}
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return errAccountGone
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return errWrongPassword
	}
	hash, err := s.hash(in.NewPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, user.ID, hash)
}

// EnsureAdmin creates the bootstrap admin account when no account uses email yet.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != rbac.RoleAdmin {
			s.logger.Warn("bootstrap admin email belongs to a non-admin account", slog.Int64("user_id", existing.ID))
		}
		return nil
	case !errors.Is(err, shared.ErrNotFound):
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	user, err := s.repo.Create(ctx, User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         rbac.RoleAdmin,
		Enabled:      true,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info("bootstrap admin created", slog.Int64("user_id", user.ID))
	return nil
}

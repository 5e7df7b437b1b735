package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/issuedesk/internal/filestore"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]Account, int, error)
}

// TxRepository holds the row-locked writes of the account lifecycle.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	SetEnabled(ctx context.Context, id int64, enabled bool, at time.Time) error
	// DeleteIssuesBy removes every issue created by userID and returns how many were
	// removed together with their attachment references.
	DeleteIssuesBy(ctx context.Context, userID int64) (int, []string, error)
	Delete(ctx context.Context, id int64) error
}

// Purger schedules removal of attachment files.
type Purger interface {
	PurgeAttachments(ctx context.Context, refs ...string) error
}

var (
	errUserNotFound   = shared.Errorf(shared.ErrNotFound, "User not found")
	errActorDisabled  = shared.Errorf(shared.ErrForbidden, "Your account is disabled")
	errAdminProtected = shared.Errorf(shared.ErrForbidden, "Administrator accounts cannot be modified")
)

// Service handles the account lifecycle.
type Service struct {
	repo   RepositoryPort
	files  filestore.Store
	purger Purger
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. When purger is nil or fails, attachments of
// deleted issues are removed from files directly.
func NewService(repo RepositoryPort, files filestore.Store, purger Purger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, files: files, purger: purger, logger: logger, now: time.Now}
}

// ListResult is one page of accounts.
type ListResult struct {
	Users      []Account         `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns a page of accounts.
func (s *Service) List(ctx context.Context, filter ListFilter, page shared.PageRequest) (ListResult, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	accounts, total, err := s.repo.List(ctx, filter, page.Limit, page.Offset())
	if err != nil {
		return ListResult{}, fmt.Errorf("list users: %w", err)
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return ListResult{Users: accounts, Pagination: shared.NewPagination(page.Page, page.Limit, total)}, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, notFound(err)
	}
	return account, nil
}

// Disable turns off a user account.
func (s *Service) Disable(ctx context.Context, actor rbac.Principal, targetID int64) (Account, error) {
	return s.setEnabled(ctx, actor, targetID, false)
}

// Enable turns a disabled user account back on.
func (s *Service) Enable(ctx context.Context, actor rbac.Principal, targetID int64) (Account, error) {
	return s.setEnabled(ctx, actor, targetID, true)
}

func (s *Service) setEnabled(ctx context.Context, actor rbac.Principal, targetID int64, enabled bool) (Account, error) {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	if targetID == actor.UserID {
		return Account{}, shared.Errorf(shared.ErrBadRequest, "You cannot %s your own account", verb)
	}
	if !actor.Enabled {
		return Account{}, errActorDisabled
	}

	var out Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetForUpdate(ctx, targetID)
		if err != nil {
			return notFound(err)
		}
		if account.Role == rbac.RoleAdmin {
			return errAdminProtected
		}
		if account.Enabled == enabled {
			return shared.Errorf(shared.ErrBadRequest, "User is already %sd", verb)
		}
		now := s.now().UTC()
		if err := tx.SetEnabled(ctx, targetID, enabled, now); err != nil {
			return err
		}
		account.Enabled = enabled
		account.UpdatedAt = now
		out = account
		return nil
	})
	if err != nil {
		return Account{}, wrapUnexpected(verb+" user", err)
	}
	s.logger.Info("user "+verb+"d", slog.Int64("actor_id", actor.UserID), slog.Int64("user_id", targetID))
	return out, nil
}

// PermanentlyDelete removes an account and every issue it created.
func (s *Service) PermanentlyDelete(ctx context.Context, actor rbac.Principal, targetID int64) (DeleteResult, error) {
	if targetID == actor.UserID {
		return DeleteResult{}, shared.Errorf(shared.ErrBadRequest, "You cannot delete your own account")
	}
	if !actor.Enabled {
		return DeleteResult{}, errActorDisabled
	}

	var (
		result      DeleteResult
		attachments []string
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetForUpdate(ctx, targetID)
		if err != nil {
			return notFound(err)
		}
		if account.Role == rbac.RoleAdmin {
			return errAdminProtected
		}
		count, refs, err := tx.DeleteIssuesBy(ctx, targetID)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, targetID); err != nil {
			return err
		}
		result = DeleteResult{UserID: targetID, DeletedIssueCount: count}
		attachments = refs
		return nil
	})
	if err != nil {
		return DeleteResult{}, wrapUnexpected("delete user", err)
	}
	s.logger.Info("user deleted",
		slog.Int64("actor_id", actor.UserID),
		slog.Int64("user_id", targetID),
		slog.Int("deleted_issues", result.DeletedIssueCount))

	s.purge(ctx, attachments)
	return result, nil
}

func (s *Service) purge(ctx context.Context, refs []string) {
	if len(refs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if s.purger != nil {
		err := s.purger.PurgeAttachments(ctx, refs...)
		if err == nil {
			return
		}
		s.logger.Warn("enqueue attachment purge", slog.Any("refs", refs), slog.Any("error", err))
	}
	if s.files == nil {
		s.logger.Error("attachments left in store", slog.Any("refs", refs))
		return
	}
	for _, ref := range refs {
		if err := filestore.RemoveIfExists(ctx, s.files, ref); err != nil {
			s.logger.Warn("remove attachment", slog.String("ref", ref), slog.Any("error", err))
		}
	}
}

// ParseListFilter reads the role, enabled and search query parameters.
func ParseListFilter(q url.Values) (ListFilter, error) {
	f := ListFilter{Search: q.Get("search")}
	verr := shared.NewValidationError()
	if raw := strings.TrimSpace(q.Get("role")); raw != "" {
		if role, ok := rbac.ParseRole(raw); ok {
			f.Role = &role
		} else {
			verr.Add("role", "role must be one of: admin, user")
		}
	}
	if raw := strings.TrimSpace(q.Get("enabled")); raw != "" {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			f.Enabled = &enabled
		} else {
			verr.Add("enabled", "enabled must be true or false")
		}
	}
	return f, verr.OrNil()
}

func notFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return errUserNotFound
	}
	return err
}

func wrapUnexpected(op string, err error) error {
	var derr *shared.Error
	if errors.As(err, &derr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

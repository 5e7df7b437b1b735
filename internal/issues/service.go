package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/issuedesk/internal/filestore"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// RepositoryPort is the persistence contract used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (View, error)
	List(ctx context.Context, pred Predicate, order Order, limit, offset int) ([]View, int, error)
	CountByStatus(ctx context.Context, createdBy *int64) (map[Status]int, error)
	CountByPriority(ctx context.Context, createdBy *int64) (map[Priority]int, error)
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, issue Issue) (Issue, error)
	GetForUpdate(ctx context.Context, id int64) (Issue, error)
	Update(ctx context.Context, issue Issue) (Issue, error)
	Delete(ctx context.Context, id int64) error
}

// Purger schedules removal of stored attachments once the rows referencing them are gone.
type Purger interface {
	PurgeAttachments(ctx context.Context, refs ...string) error
}

var (
	errDisabled      = shared.Errorf(shared.ErrForbidden, "Your account is disabled")
	errNotOwner      = shared.Errorf(shared.ErrForbidden, "Access denied. You can only access your own issues")
	errStatusAdmin   = shared.Errorf(shared.ErrForbidden, "Only administrators can change issue status")
	errAdminOnly     = shared.Errorf(shared.ErrForbidden, "Access denied. Administrator role required")
	errNoAttachment  = shared.Errorf(shared.ErrNotFound, "Issue has no attachment")
	errIssueNotFound = shared.Errorf(shared.ErrNotFound, "Issue not found")
)

const defaultExportRows = 10000

// Service implements the issue lifecycle.
type Service struct {
	repo      RepositoryPort
	files     filestore.Store
	purger    Purger
	logger    *slog.Logger
	now       func() time.Time
	exportMax int
}

// NewService constructs the issue service. purger may be nil, in which case replaced
// attachments are removed from the store synchronously.
func NewService(repo RepositoryPort, files filestore.Store, purger Purger, logger *slog.Logger, exportMax int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if exportMax <= 0 {
		exportMax = defaultExportRows
	}
	return &Service{
		repo:      repo,
		files:     files,
		purger:    purger,
		logger:    logger,
		now:       time.Now,
		exportMax: exportMax,
	}
}

// Create stores a new issue owned by p.
func (s *Service) Create(ctx context.Context, p rbac.Principal, in CreateInput, upload *filestore.Upload) (Issue, error) {
	if !p.Enabled {
		return Issue{}, errDisabled
	}
	in.normalize()
	if !p.IsAdmin() {
		// Only administrators choose the initial status; anything else is dropped unchecked.
		in.Status = ""
	}
	if err := validate.Struct(in); err != nil {
		return Issue{}, err
	}

	now := s.now().UTC()
	issue := Issue{
		Title:       in.Title,
		Description: in.Description,
		Priority:    PriorityMedium,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if pr, ok := ParsePriority(in.Priority); ok {
		issue.Priority = pr
	}
	status := StatusOpen
	if st, ok := ParseStatus(in.Status); ok {
		status = st
	}
	applyStatus(&issue, status, now)

	ref, err := s.save(ctx, upload)
	if err != nil {
		return Issue{}, err
	}
	if ref != "" {
		issue.Attachment = &ref
	}

	var created Issue
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, issue)
		return err
	})
	if err != nil {
		s.discard(ctx, ref)
		return Issue{}, fmt.Errorf("create issue: %w", err)
	}
	return created, nil
}

// Get returns the issue when p may read it.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id int64) (View, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return View{}, notFound(err)
	}
	if !canAccess(p, v.Issue) {
		return View{}, errNotOwner
	}
	return v, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, p rbac.Principal, id int64, in UpdateInput, upload *filestore.Upload) (Issue, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Issue{}, notFound(err)
	}
	if err := checkEditable(p, current.Issue, in); err != nil {
		return Issue{}, err
	}
	if err := in.Validate(); err != nil {
		return Issue{}, err
	}

	ref, err := s.save(ctx, upload)
	if err != nil {
		return Issue{}, err
	}

	var (
		updated Issue
		stale   string
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issue, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if err := checkEditable(p, issue, in); err != nil {
			return err
		}
		now := s.now().UTC()
		in.apply(&issue)
		if in.Status != nil {
			st, _ := ParseStatus(*in.Status)
			applyStatus(&issue, st, now)
		}
		switch {
		case ref != "":
			stale = deref(issue.Attachment)
			issue.Attachment = &ref
		case in.RemoveAttachment:
			stale = deref(issue.Attachment)
			issue.Attachment = nil
		}
		issue.UpdatedAt = now
		updated, err = tx.Update(ctx, issue)
		return err
	})
	if err != nil {
		s.discard(ctx, ref)
		return Issue{}, wrapUnexpected("update issue", err)
	}
	s.purge(ctx, stale)
	return updated, nil
}

// ChangeStatus moves an issue to a new status. Only administrators may call it.
func (s *Service) ChangeStatus(ctx context.Context, p rbac.Principal, id int64, in StatusInput) (Issue, error) {
	if !p.IsAdmin() {
		return Issue{}, errStatusAdmin
	}
	if !p.Enabled {
		return Issue{}, errDisabled
	}
	if err := validate.Struct(in); err != nil {
		return Issue{}, err
	}
	status, _ := ParseStatus(in.Status)

	var updated Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issue, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		now := s.now().UTC()
		applyStatus(&issue, status, now)
		issue.UpdatedAt = now
		updated, err = tx.Update(ctx, issue)
		return err
	})
	if err != nil {
		return Issue{}, wrapUnexpected("change issue status", err)
	}
	return updated, nil
}

// Delete removes an issue. Only administrators may call it.
func (s *Service) Delete(ctx context.Context, p rbac.Principal, id int64) error {
	if !p.IsAdmin() {
		return errAdminOnly
	}
	if !p.Enabled {
		return errDisabled
	}
	var stale string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issue, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		stale = deref(issue.Attachment)
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return wrapUnexpected("delete issue", err)
	}
	s.purge(ctx, stale)
	return nil
}

// ListResult is one page of issues.
type ListResult struct {
	Issues     []View            `json:"issues"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns a page of issues visible to p on the given path.
func (s *Service) List(ctx context.Context, p rbac.Principal, f Filter, scope Scope, page shared.PageRequest) (ListResult, error) {
	pred, order := BuildQuery(f, p, scope)
	rows, total, err := s.repo.List(ctx, pred, order, page.Limit, page.Offset())
	if err != nil {
		return ListResult{}, fmt.Errorf("list issues: %w", err)
	}
	if rows == nil {
		rows = []View{}
	}
	return ListResult{Issues: rows, Pagination: shared.NewPagination(page.Page, page.Limit, total)}, nil
}

// Stats counts issues by status and priority. The own scope, and any non-admin caller,
// only sees issues created by p.
func (s *Service) Stats(ctx context.Context, p rbac.Principal, scope Scope) (Stats, error) {
	var createdBy *int64
	if scope == ScopeOwn || !p.IsAdmin() {
		id := p.UserID
		createdBy = &id
	}

	var (
		byStatus   map[Status]int
		byPriority map[Priority]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.CountByStatus(gctx, createdBy)
		return err
	})
	g.Go(func() error {
		var err error
		byPriority, err = s.repo.CountByPriority(gctx, createdBy)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("issue stats: %w", err)
	}

	out := newStats()
	for st, n := range byStatus {
		out.ByStatus[st] = n
		out.Total += n
	}
	for pr, n := range byPriority {
		out.ByPriority[pr] = n
	}
	return out, nil
}

// Export returns every issue matching f, capped at the configured row limit.
func (s *Service) Export(ctx context.Context, p rbac.Principal, f Filter) ([]View, error) {
	if !p.IsAdmin() {
		return nil, errAdminOnly
	}
	pred, order := BuildQuery(f, p, ScopeAll)
	rows, _, err := s.repo.List(ctx, pred, order, s.exportMax, 0)
	if err != nil {
		return nil, fmt.Errorf("export issues: %w", err)
	}
	return rows, nil
}

// AttachmentURL resolves a retrievable URL for the issue's attachment.
func (s *Service) AttachmentURL(ctx context.Context, p rbac.Principal, id int64) (string, error) {
	v, err := s.Get(ctx, p, id)
	if err != nil {
		return "", err
	}
	if v.Attachment == nil || *v.Attachment == "" {
		return "", errNoAttachment
	}
	if s.files == nil {
		return "", errors.New("attachment store not configured")
	}
	return s.files.URL(ctx, *v.Attachment)
}

// Metadata describes the enumerations and limits clients build forms from.
type Metadata struct {
	Statuses   []Status    `json:"statuses"`
	Priorities []Priority  `json:"priorities"`
	SortFields []SortField `json:"sortFields"`
	SortOrders []SortOrder `json:"sortOrders"`
	Limits     Limits      `json:"limits"`
}

// Limits are the field length bounds.
type Limits struct {
	TitleMin       int `json:"titleMin"`
	TitleMax       int `json:"titleMax"`
	DescriptionMin int `json:"descriptionMin"`
	DescriptionMax int `json:"descriptionMax"`
	PageSizeMax    int `json:"pageSizeMax"`
}

// Metadata returns the static issue metadata.
func (s *Service) Metadata() Metadata {
	return Metadata{
		Statuses:   Statuses(),
		Priorities: Priorities(),
		SortFields: SortFields(),
		SortOrders: []SortOrder{SortAsc, SortDesc},
		Limits: Limits{
			TitleMin:       TitleMinLen,
			TitleMax:       TitleMaxLen,
			DescriptionMin: DescriptionMinLen,
			DescriptionMax: DescriptionMaxLen,
			PageSizeMax:    shared.MaxPerPage,
		},
	}
}

// checkEditable applies the update rules in order: ownership, status, enabled.
func checkEditable(p rbac.Principal, issue Issue, in UpdateInput) error {
	if !canAccess(p, issue) {
		return errNotOwner
	}
	if in.Status != nil && !p.IsAdmin() {
		return errStatusAdmin
	}
	if !p.Enabled {
		return errDisabled
	}
	return nil
}

func canAccess(p rbac.Principal, issue Issue) bool {
	return p.IsAdmin() || p.Owns(issue.CreatedBy)
}

func (s *Service) save(ctx context.Context, upload *filestore.Upload) (string, error) {
	if upload == nil {
		return "", nil
	}
	if s.files == nil {
		return "", errors.New("attachment store not configured")
	}
	ref, err := s.files.Save(ctx, *upload)
	if err != nil {
		return "", fmt.Errorf("store attachment: %w", err)
	}
	return ref, nil
}

// discard removes an attachment saved for a write that did not commit.
func (s *Service) discard(ctx context.Context, ref string) {
	if ref == "" || s.files == nil {
		return
	}
	if err := filestore.RemoveIfExists(context.WithoutCancel(ctx), s.files, ref); err != nil {
		s.logger.Warn("discard attachment", slog.String("ref", ref), slog.Any("error", err))
	}
}

func (s *Service) purge(ctx context.Context, refs ...string) {
	refs = compact(refs)
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
	for _, ref := range refs {
		s.discard(ctx, ref)
	}
}

func notFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return errIssueNotFound
	}
	return err
}

// wrapUnexpected adds context to store failures and leaves domain errors as they are.
func wrapUnexpected(op string, err error) error {
	var verr *shared.ValidationError
	var derr *shared.Error
	if errors.As(err, &verr) || errors.As(err, &derr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func compact(refs []string) []string {
	out := refs[:0]
	for _, r := range refs {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

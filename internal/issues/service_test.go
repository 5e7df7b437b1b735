package issues

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/issuedesk/internal/filestore"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
	_ "github.com/odyssey-erp/issuedesk/testing"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	mu     sync.Mutex
	issues map[int64]Issue
	users  map[int64][2]string
	nextID int64

	txError     error
	listError   error
	lastPred    Predicate
	lastOrder   Order
	lastLimit   int
	committedTx int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		issues: make(map[int64]Issue),
		users: map[int64][2]string{
			adminP.UserID: {"Admin", "admin@example.com"},
			userA.UserID:  {"Alice", "alice@example.com"},
			userB.UserID:  {"Bob", "bob@example.com"},
		},
		nextID: 1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &mockTxRepo{mock: m, staged: make(map[int64]*Issue)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, issue := range tx.staged {
		if issue == nil {
			delete(m.issues, id)
			continue
		}
		m.issues[id] = *issue
	}
	m.committedTx++
	return nil
}

func (m *mockRepository) view(issue Issue) View {
	u := m.users[issue.CreatedBy]
	return View{Issue: issue, CreatorName: u[0], CreatorEmail: u[1]}
}

func (m *mockRepository) Get(ctx context.Context, id int64) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[id]
	if !ok {
		return View{}, fmt.Errorf("get issue %d: %w", id, shared.ErrNotFound)
	}
	return m.view(issue), nil
}

func (m *mockRepository) List(ctx context.Context, pred Predicate, order Order, limit, offset int) ([]View, int, error) {
	if m.listError != nil {
		return nil, 0, m.listError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPred, m.lastOrder, m.lastLimit = pred, order, limit

	var out []View
	for _, issue := range m.issues {
		if matches(pred, issue) {
			out = append(out, m.view(issue))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		less := compare(order.Field, out[i].Issue, out[j].Issue)
		if less == 0 {
			less = int(out[i].ID - out[j].ID)
		}
		if order.Dir == SortAsc {
			return less < 0
		}
		return less > 0
	})
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func matches(pred Predicate, issue Issue) bool {
	if pred.Status != nil && issue.Status != *pred.Status {
		return false
	}
	if pred.Priority != nil && issue.Priority != *pred.Priority {
		return false
	}
	if pred.CreatedFrom != nil && issue.CreatedAt.Before(*pred.CreatedFrom) {
		return false
	}
	if pred.CreatedTo != nil && issue.CreatedAt.After(*pred.CreatedTo) {
		return false
	}
	if pred.CreatedBy != nil && issue.CreatedBy != *pred.CreatedBy {
		return false
	}
	if pred.Search != "" {
		s := strings.ToLower(pred.Search)
		if !strings.Contains(strings.ToLower(issue.Title), s) && !strings.Contains(strings.ToLower(issue.Description), s) {
			return false
		}
	}
	return true
}

func compare(field SortField, a, b Issue) int {
	switch field {
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortPriority:
		return a.Priority.rank() - b.Priority.rank()
	case SortStatus:
		return a.Status.rank() - b.Status.rank()
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (m *mockRepository) CountByStatus(ctx context.Context, createdBy *int64) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[Status]int{}
	for _, issue := range m.issues {
		if createdBy == nil || issue.CreatedBy == *createdBy {
			out[issue.Status]++
		}
	}
	return out, nil
}

func (m *mockRepository) CountByPriority(ctx context.Context, createdBy *int64) (map[Priority]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[Priority]int{}
	for _, issue := range m.issues {
		if createdBy == nil || issue.CreatedBy == *createdBy {
			out[issue.Priority]++
		}
	}
	return out, nil
}

// mockTxRepo stages writes until the callback returns without error.
type mockTxRepo struct {
	mock   *mockRepository
	staged map[int64]*Issue
}

func (t *mockTxRepo) Insert(ctx context.Context, issue Issue) (Issue, error) {
	issue.ID = t.mock.nextID
	t.mock.nextID++
	t.staged[issue.ID] = &issue
	return issue, nil
}

func (t *mockTxRepo) GetForUpdate(ctx context.Context, id int64) (Issue, error) {
	if staged, ok := t.staged[id]; ok {
		if staged == nil {
			return Issue{}, shared.ErrNotFound
		}
		return *staged, nil
	}
	issue, ok := t.mock.issues[id]
	if !ok {
		return Issue{}, fmt.Errorf("lock issue %d: %w", id, shared.ErrNotFound)
	}
	return issue, nil
}

func (t *mockTxRepo) Update(ctx context.Context, issue Issue) (Issue, error) {
	t.staged[issue.ID] = &issue
	return issue, nil
}

func (t *mockTxRepo) Delete(ctx context.Context, id int64) error {
	t.staged[id] = nil
	return nil
}

// ============================================================================
// MOCK FILE STORE AND PURGER
// ============================================================================

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	next    int
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (s *memoryStore) Save(ctx context.Context, up filestore.Upload) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(up.Body); err != nil {
		return "", err
	}
	s.next++
	ref := fmt.Sprintf("obj-%d%s", s.next, up.Extension)
	s.objects[ref] = buf.Bytes()
	return ref, nil
}

func (s *memoryStore) URL(ctx context.Context, ref string) (string, error) {
	return "https://files.example.com/" + ref, nil
}

func (s *memoryStore) Remove(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

func (s *memoryStore) has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[ref]
	return ok
}

type recordingPurger struct {
	refs []string
	err  error
}

func (p *recordingPurger) PurgeAttachments(ctx context.Context, refs ...string) error {
	if p.err != nil {
		return p.err
	}
	p.refs = append(p.refs, refs...)
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

var fixedNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *mockRepository
	store  *memoryStore
	purger *recordingPurger
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{repo: newMockRepository(), store: newMemoryStore(), purger: &recordingPurger{}}
	f.svc = NewService(f.repo, f.store, f.purger, nil, 0)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) seed(t *testing.T, owner rbac.Principal, title string) Issue {
	t.Helper()
	issue, err := f.svc.Create(context.Background(), owner, CreateInput{Title: title, Description: "seeded issue"}, nil)
	require.NoError(t, err)
	return issue
}

func pngUpload(t *testing.T) *filestore.Upload {
	t.Helper()
	body := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	up, err := filestore.Sniff("shot.png", int64(len(body)), bytes.NewReader(body), 0)
	require.NoError(t, err)
	return &up
}

func strp(s string) *string { return &s }

func disabled(p rbac.Principal) rbac.Principal {
	p.Enabled = false
	return p
}

// ============================================================================
// CREATE
// ============================================================================

func TestCreateDefaultsRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.Create(ctx, userA, CreateInput{Title: "Login fails", Description: "Cannot log in"}, nil)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, userA, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Equal(t, PriorityMedium, got.Priority)
	assert.Equal(t, userA.UserID, got.CreatedBy)
	assert.Nil(t, got.ResolvedAt)
	assert.Equal(t, "Alice", got.CreatorName)
	assert.Equal(t, fixedNow, got.CreatedAt)
}

func TestCreateRejectsDisabledPrincipal(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), disabled(userA), CreateInput{Title: "Valid", Description: "Valid"}, nil)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, f.repo.issues)
}

func TestCreateValidationNamesDescription(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "Bug", Description: "x"}, nil)
	assert.Equal(t, []string{"description"}, fields(t, err))
}

func TestCreateUserStatusIsIgnored(t *testing.T) {
	f := newFixture()
	for _, status := range []string{"closed", "bogus"} {
		issue, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "Bug one", Description: "desc", Status: status}, nil)
		require.NoError(t, err, status)
		assert.Equal(t, StatusOpen, issue.Status)
		assert.Nil(t, issue.ResolvedAt)
	}

	_, err := f.svc.Create(context.Background(), adminP, CreateInput{Title: "Bug one", Description: "desc", Status: "bogus"}, nil)
	assert.Equal(t, []string{"status"}, fields(t, err))
}

func TestCreateAdminStatusSetsResolvedAt(t *testing.T) {
	f := newFixture()
	issue, err := f.svc.Create(context.Background(), adminP, CreateInput{Title: "Bug one", Description: "desc", Status: "resolved", Priority: "critical"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, issue.Status)
	assert.Equal(t, PriorityCritical, issue.Priority)
	require.NotNil(t, issue.ResolvedAt)
	assert.Equal(t, fixedNow, *issue.ResolvedAt)
}

func TestCreateStoresAttachment(t *testing.T) {
	f := newFixture()
	issue, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "With file", Description: "desc"}, pngUpload(t))
	require.NoError(t, err)
	require.NotNil(t, issue.Attachment)
	assert.True(t, f.store.has(*issue.Attachment))
}

func TestCreateDiscardsAttachmentWhenStoreFails(t *testing.T) {
	f := newFixture()
	f.repo.txError = errors.New("connection reset")
	_, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "With file", Description: "desc"}, pngUpload(t))
	require.Error(t, err)
	assert.Empty(t, f.store.objects)
}

func TestCreateInvalidInputNeverStoresAttachment(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "x"}, pngUpload(t))
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, f.store.objects)
}

// ============================================================================
// READ
// ============================================================================

func TestGetNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Get(context.Background(), adminP, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetOwnership(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")

	_, err := f.svc.Get(context.Background(), userB, issue.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.Get(context.Background(), adminP, issue.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), disabled(userA), issue.ID)
	assert.NoError(t, err, "disabled accounts keep read access")
}

// ============================================================================
// UPDATE
// ============================================================================

func TestUpdateNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Update(context.Background(), userA, 77, UpdateInput{Title: strp("New title")}, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateOtherUsersIssueIsForbiddenRegardlessOfPayload(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")
	for _, in := range []UpdateInput{
		{Title: strp("Fine title")},
		{Title: strp("x"), Description: strp("")},
		{Status: strp("closed")},
		{},
	} {
		_, err := f.svc.Update(context.Background(), userB, issue.ID, in, nil)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	}
}

func TestUpdateOwnerSupplyingStatusIsForbidden(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")
	for _, status := range []string{"open", "resolved", "", "bogus"} {
		_, err := f.svc.Update(context.Background(), userA, issue.ID, UpdateInput{Status: strp(status)}, nil)
		assert.ErrorIs(t, err, shared.ErrForbidden, status)
	}
}

func TestUpdateDisabledOwnerIsForbidden(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")
	_, err := f.svc.Update(context.Background(), disabled(userA), issue.ID, UpdateInput{Title: strp("New title")}, nil)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestUpdateValidatesPresentFields(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")
	_, err := f.svc.Update(context.Background(), userA, issue.ID, UpdateInput{Description: strp("no")}, nil)
	assert.Equal(t, []string{"description"}, fields(t, err))
}

func TestUpdatePartialLeavesOtherFields(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")
	later := fixedNow.Add(time.Hour)
	f.svc.now = func() time.Time { return later }

	updated, err := f.svc.Update(context.Background(), userA, issue.ID, UpdateInput{Priority: strp("high")}, nil)
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, updated.Priority)
	assert.Equal(t, "Alice bug", updated.Title)
	assert.Equal(t, "seeded issue", updated.Description)
	assert.Equal(t, StatusOpen, updated.Status)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.Equal(t, fixedNow, updated.CreatedAt)
}

func TestUpdateAdminStatusRecomputesResolvedAt(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")

	resolved, err := f.svc.Update(context.Background(), adminP, issue.ID, UpdateInput{Status: strp("resolved")}, nil)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)

	reopened, err := f.svc.Update(context.Background(), adminP, issue.ID, UpdateInput{Status: strp("in_progress")}, nil)
	require.NoError(t, err)
	assert.Nil(t, reopened.ResolvedAt)
}

func TestUpdateReplacingAttachmentPurgesOldOne(t *testing.T) {
	f := newFixture()
	issue, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "With file", Description: "desc"}, pngUpload(t))
	require.NoError(t, err)
	old := *issue.Attachment

	updated, err := f.svc.Update(context.Background(), userA, issue.ID, UpdateInput{}, pngUpload(t))
	require.NoError(t, err)
	require.NotNil(t, updated.Attachment)
	assert.NotEqual(t, old, *updated.Attachment)
	assert.Equal(t, []string{old}, f.purger.refs)
}

func TestUpdateRemoveAttachment(t *testing.T) {
	f := newFixture()
	issue, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "With file", Description: "desc"}, pngUpload(t))
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), userA, issue.ID, UpdateInput{RemoveAttachment: true}, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.Attachment)
	assert.Equal(t, []string{*issue.Attachment}, f.purger.refs)
}

func TestPurgeFallsBackToStoreWhenQueueFails(t *testing.T) {
	f := newFixture()
	f.purger.err = errors.New("redis down")
	issue, err := f.svc.Create(context.Background(), userA, CreateInput{Title: "With file", Description: "desc"}, pngUpload(t))
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), userA, issue.ID, UpdateInput{RemoveAttachment: true}, nil)
	require.NoError(t, err)
	assert.False(t, f.store.has(*issue.Attachment))
}

// ============================================================================
// STATUS AND DELETE
// ============================================================================

func TestChangeStatusAdminOnly(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")
	_, err := f.svc.ChangeStatus(context.Background(), userA, issue.ID, StatusInput{Status: "closed"})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestChangeStatusLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	issue := f.seed(t, userA, "Alice bug")

	closed, err := f.svc.ChangeStatus(ctx, adminP, issue.ID, StatusInput{Status: "closed"})
	require.NoError(t, err)
	require.NotNil(t, closed.ResolvedAt)

	open, err := f.svc.ChangeStatus(ctx, adminP, issue.ID, StatusInput{Status: "open"})
	require.NoError(t, err)
	assert.Nil(t, open.ResolvedAt)

	for _, stored := range f.repo.issues {
		assert.Equal(t, stored.Status.Finished(), stored.ResolvedAt != nil)
	}
}

func TestChangeStatusValidatesAndFindsIssue(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ChangeStatus(context.Background(), adminP, 1, StatusInput{Status: "done"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.ChangeStatus(context.Background(), adminP, 1, StatusInput{Status: "closed"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	issue, err := f.svc.Create(ctx, userA, CreateInput{Title: "With file", Description: "desc"}, pngUpload(t))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, userA, issue.ID), shared.ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, adminP, issue.ID))
	assert.Equal(t, []string{*issue.Attachment}, f.purger.refs)

	_, err = f.svc.Get(ctx, adminP, issue.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, adminP, issue.ID), shared.ErrNotFound)
}

func TestStoreFailureIsNotMasked(t *testing.T) {
	f := newFixture()
	issue := f.seed(t, userA, "Alice bug")
	f.repo.txError = errors.New("deadlock detected")

	_, err := f.svc.ChangeStatus(context.Background(), adminP, issue.ID, StatusInput{Status: "closed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Equal(t, StatusOpen, f.repo.issues[issue.ID].Status)
}

// ============================================================================
// LIST, STATS, EXPORT
// ============================================================================

func TestListMyIssuesIgnoresInjectedCreatedBy(t *testing.T) {
	f := newFixture()
	f.seed(t, userA, "Alice one")
	f.seed(t, userB, "Bob one")

	res, err := f.svc.List(context.Background(), userA, Filter{CreatedBy: int64p(userB.UserID)}, ScopeOwn, shared.PageRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "Alice one", res.Issues[0].Title)
}

func TestListSingleDayFilter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	times := []time.Time{
		time.Date(2025, 6, 9, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 10, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
	}
	for i, ts := range times {
		ts := ts
		f.svc.now = func() time.Time { return ts }
		f.seed(t, userA, fmt.Sprintf("Issue %d", i))
	}

	res, err := f.svc.List(ctx, adminP, Filter{FromDate: day(2025, 6, 10)}, ScopeAll, shared.PageRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	var titles []string
	for _, v := range res.Issues {
		titles = append(titles, v.Title)
	}
	assert.ElementsMatch(t, []string{"Issue 1", "Issue 2"}, titles)
}

func TestListPaginationAndSort(t *testing.T) {
	f := newFixture()
	for _, title := range []string{"Charlie", "alpha", "Bravo"} {
		f.seed(t, userA, title)
	}
	res, err := f.svc.List(context.Background(), adminP, Filter{SortBy: "title", SortOrder: "asc"}, ScopeAll, shared.PageRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, "alpha", res.Issues[0].Title)
	assert.Equal(t, "Bravo", res.Issues[1].Title)
	assert.Equal(t, 3, res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.TotalPages)
}

func TestListEmptyIsNotNull(t *testing.T) {
	f := newFixture()
	res, err := f.svc.List(context.Background(), adminP, Filter{}, ScopeAll, shared.PageRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, res.Issues)
}

func TestStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.seed(t, userA, "Alice one")
	f.seed(t, userA, "Alice two")
	f.seed(t, userB, "Bob one")
	_, err := f.svc.ChangeStatus(ctx, adminP, a.ID, StatusInput{Status: "resolved"})
	require.NoError(t, err)

	all, err := f.svc.Stats(ctx, adminP, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 2, all.ByStatus[StatusOpen])
	assert.Equal(t, 1, all.ByStatus[StatusResolved])
	assert.Equal(t, 0, all.ByStatus[StatusClosed])
	assert.Equal(t, 3, all.ByPriority[PriorityMedium])
	assert.Len(t, all.ByPriority, 4)

	mine, err := f.svc.Stats(ctx, userB, ScopeOwn)
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Total)

	forced, err := f.svc.Stats(ctx, userB, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 1, forced.Total)
}

func TestExportIsAdminOnlyAndCapped(t *testing.T) {
	f := newFixture()
	f.svc.exportMax = 2
	for i := 0; i < 3; i++ {
		f.seed(t, userA, fmt.Sprintf("Issue %d", i))
	}
	_, err := f.svc.Export(context.Background(), userA, Filter{})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	rows, err := f.svc.Export(context.Background(), adminP, Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, f.repo.lastLimit)
}

func TestAttachmentURL(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	plain := f.seed(t, userA, "No file")
	_, err := f.svc.AttachmentURL(ctx, userA, plain.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	withFile, err := f.svc.Create(ctx, userA, CreateInput{Title: "With file", Description: "desc"}, pngUpload(t))
	require.NoError(t, err)
	url, err := f.svc.AttachmentURL(ctx, userA, withFile.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/"+*withFile.Attachment, url)

	_, err = f.svc.AttachmentURL(ctx, userB, withFile.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

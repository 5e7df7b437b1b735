package issues

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/issuedesk/internal/platform/db"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for issues.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const issueColumns = `i.id, i.title, i.description, i.status, i.priority, i.created_by,
	i.attachment, i.resolved_at, i.created_at, i.updated_at`

const viewSelect = `SELECT ` + issueColumns + `, u.name, u.email
	FROM issues i
	JOIN users u ON u.id = i.created_by`

func scanIssue(row pgx.Row, extra ...any) (Issue, error) {
	var (
		i        Issue
		status   string
		priority string
	)
	dest := []any{&i.ID, &i.Title, &i.Description, &status, &priority, &i.CreatedBy,
		&i.Attachment, &i.ResolvedAt, &i.CreatedAt, &i.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issue{}, shared.ErrNotFound
		}
		return Issue{}, err
	}
	i.Status = Status(status)
	i.Priority = Priority(priority)
	return i, nil
}

func scanView(row pgx.Row) (View, error) {
	var v View
	issue, err := scanIssue(row, &v.CreatorName, &v.CreatorEmail)
	if err != nil {
		return View{}, err
	}
	v.Issue = issue
	return v, nil
}

// Get loads one issue with its creator.
func (r *Repository) Get(ctx context.Context, id int64) (View, error) {
	v, err := scanView(r.pool.QueryRow(ctx, viewSelect+` WHERE i.id = $1`, id))
	if err != nil {
		return View{}, fmt.Errorf("get issue %d: %w", id, err)
	}
	return v, nil
}

// List returns one page of issues matching pred and the total number of matches.
func (r *Repository) List(ctx context.Context, pred Predicate, order Order, limit, offset int) ([]View, int, error) {
	where, args := whereClause(pred)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues i JOIN users u ON u.id = i.created_by`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	query := viewSelect + where + orderClause(order)
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var out []View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan issue: %w", err)
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// CountByStatus groups issue counts by status, optionally for one creator.
func (r *Repository) CountByStatus(ctx context.Context, createdBy *int64) (map[Status]int, error) {
	counts, err := r.countBy(ctx, "status", createdBy)
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(counts))
	for k, n := range counts {
		out[Status(k)] = n
	}
	return out, nil
}

// CountByPriority groups issue counts by priority, optionally for one creator.
func (r *Repository) CountByPriority(ctx context.Context, createdBy *int64) (map[Priority]int, error) {
	counts, err := r.countBy(ctx, "priority", createdBy)
	if err != nil {
		return nil, err
	}
	out := make(map[Priority]int, len(counts))
	for k, n := range counts {
		out[Priority(k)] = n
	}
	return out, nil
}

// countBy only receives the fixed column names above.
func (r *Repository) countBy(ctx context.Context, column string, createdBy *int64) (map[string]int, error) {
	query := `SELECT ` + column + `, COUNT(*) FROM issues`
	var args []any
	if createdBy != nil {
		query += ` WHERE created_by = $1`
		args = append(args, *createdBy)
	}
	query += ` GROUP BY ` + column
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count issues by %s: %w", column, err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, issue Issue) (Issue, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO issues
		(title, description, status, priority, created_by, attachment, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		issue.Title, issue.Description, string(issue.Status), string(issue.Priority), issue.CreatedBy,
		issue.Attachment, issue.ResolvedAt, issue.CreatedAt, issue.UpdatedAt)
	if err := row.Scan(&issue.ID); err != nil {
		return Issue{}, fmt.Errorf("insert issue: %w", err)
	}
	return issue, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Issue, error) {
	issue, err := scanIssue(t.tx.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues i WHERE i.id = $1 FOR UPDATE`, id))
	if err != nil {
		return Issue{}, fmt.Errorf("lock issue %d: %w", id, err)
	}
	return issue, nil
}

func (t *txRepo) Update(ctx context.Context, issue Issue) (Issue, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE issues SET
		title = $2, description = $3, status = $4, priority = $5,
		attachment = $6, resolved_at = $7, updated_at = $8
		WHERE id = $1`,
		issue.ID, issue.Title, issue.Description, string(issue.Status), string(issue.Priority),
		issue.Attachment, issue.ResolvedAt, issue.UpdatedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("update issue %d: %w", issue.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return Issue{}, shared.ErrNotFound
	}
	return issue, nil
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete issue %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// whereClause renders pred as a parameterised WHERE clause over the issues i / users u join.
func whereClause(pred Predicate) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if pred.Status != nil {
		conds = append(conds, "i.status = "+arg(string(*pred.Status)))
	}
	if pred.Priority != nil {
		conds = append(conds, "i.priority = "+arg(string(*pred.Priority)))
	}
	if pred.CreatedFrom != nil {
		conds = append(conds, "i.created_at >= "+arg(*pred.CreatedFrom))
	}
	if pred.CreatedTo != nil {
		conds = append(conds, "i.created_at <= "+arg(*pred.CreatedTo))
	}
	if pred.CreatedBy != nil {
		conds = append(conds, "i.created_by = "+arg(*pred.CreatedBy))
	}
	if pred.Search != "" {
		p := arg("%" + escapeLike(pred.Search) + "%")
		conds = append(conds, "(i.title ILIKE "+p+" OR i.description ILIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// orderClause maps a resolved Order onto whitelisted SQL. Enum columns sort by workflow
// rank rather than alphabetically.
func orderClause(o Order) string {
	var expr string
	switch o.Field {
	case SortUpdatedAt:
		expr = "i.updated_at"
	case SortTitle:
		expr = "LOWER(i.title)"
	case SortPriority:
		expr = rankCase("i.priority", prioritiesAsStrings())
	case SortStatus:
		expr = rankCase("i.status", statusesAsStrings())
	default:
		expr = "i.created_at"
	}
	dir := "DESC"
	if o.Dir == SortAsc {
		dir = "ASC"
	}
	return " ORDER BY " + expr + " " + dir + ", i.id " + dir
}

func rankCase(column string, values []string) string {
	var b strings.Builder
	b.WriteString("CASE " + column)
	for i, v := range values {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", v, i+1)
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

func statusesAsStrings() []string {
	out := make([]string, 0, 4)
	for _, s := range Statuses() {
		out = append(out, string(s))
	}
	return out
}

func prioritiesAsStrings() []string {
	out := make([]string, 0, 4)
	for _, p := range Priorities() {
		out = append(out, string(p))
	}
	return out
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/issuedesk/internal/platform/db"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
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

const accountColumns = `u.id, u.name, u.email, u.role, u.enabled, u.features, u.created_at, u.updated_at`

const issueCountColumn = `(SELECT COUNT(*) FROM issues i WHERE i.created_by = u.id)`

func scanAccount(row pgx.Row, extra ...any) (Account, error) {
	var (
		a        Account
		role     string
		features []string
	)
	dest := []any{&a.ID, &a.Name, &a.Email, &role, &a.Enabled, &features, &a.CreatedAt, &a.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	a.Role = rbac.Role(role)
	a.Features = rbac.ParseFeatures(features)
	return a, nil
}

// Get loads an account with its issue count.
func (r *Repository) Get(ctx context.Context, id int64) (Account, error) {
	var count int
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`, `+issueCountColumn+` FROM users u WHERE u.id = $1`, id), &count)
	if err != nil {
		return Account{}, fmt.Errorf("get user %d: %w", id, err)
	}
	a.IssueCount = count
	return a, nil
}

// List returns one page of accounts and the number of matches.
func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Account, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		p := arg("%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(filter.Search) + "%")
		conds = append(conds, "(u.name ILIKE "+p+" OR u.email ILIKE "+p+")")
	}
	if filter.Role != nil {
		conds = append(conds, "u.role = "+arg(string(*filter.Role)))
	}
	if filter.Enabled != nil {
		conds = append(conds, "u.enabled = "+arg(*filter.Enabled))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, limit, offset)
	query := `SELECT ` + accountColumns + `, ` + issueCountColumn + ` FROM users u` + where +
		fmt.Sprintf(` ORDER BY u.created_at DESC, u.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var count int
		a, err := scanAccount(rows, &count)
		if err != nil {
			return nil, 0, err
		}
		a.IssueCount = count
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM users u WHERE u.id = $1 FOR UPDATE`, id))
	if err != nil {
		return Account{}, fmt.Errorf("lock user %d: %w", id, err)
	}
	return a, nil
}

func (t *txRepo) SetEnabled(ctx context.Context, id int64, enabled bool, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE users SET enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, at)
	if err != nil {
		return fmt.Errorf("set user %d enabled: %w", id, err)
	}
	return nil
}

func (t *txRepo) DeleteIssuesBy(ctx context.Context, userID int64) (int, []string, error) {
	rows, err := t.tx.Query(ctx, `DELETE FROM issues WHERE created_by = $1 RETURNING attachment`, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("delete issues of user %d: %w", userID, err)
	}
	defer rows.Close()
	var (
		count int
		refs  []string
	)
	for rows.Next() {
		var ref *string
		if err := rows.Scan(&ref); err != nil {
			return 0, nil, err
		}
		count++
		if ref != nil && *ref != "" {
			refs = append(refs, *ref)
		}
	}
	return count, refs, rows.Err()
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

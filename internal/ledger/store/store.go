package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/bankadmin/ledger/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ ledger.Repository = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectAccountColumns = `id, customer_id, account_number, account_type, balance, created_at`

func scanAccount(s scanner) (*ledger.Account, error) {
	var acc ledger.Account

	var typeStr string

	if err := s.Scan(&acc.ID, &acc.CustomerID, &acc.Number, &typeStr, &acc.Balance, &acc.CreatedAt); err != nil {
		return nil, err
	}

	acc.Type = ledger.AccountType(typeStr)

	return &acc, nil
}

const selectTransactionColumns = `
	t.id, t.account_id, t.kind, t.direction, t.amount, t.description, t.correlation_id, t.created_at
`

func scanTransaction(s scanner) (*ledger.Transaction, error) {
	var tx ledger.Transaction

	var kindStr, dirStr string

	if err := s.Scan(
		&tx.ID, &tx.AccountID, &kindStr, &dirStr, &tx.Amount, &tx.Description, &tx.CorrelationID, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	tx.Kind = ledger.Kind(kindStr)
	tx.Direction = ledger.Direction(dirStr)

	return &tx, nil
}

func getAccount(ctx context.Context, q queryer, query string, arg any) (*ledger.Account, error) {
	acc, err := scanAccount(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting account: %w", classify(err))
	}

	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL`

	return getAccount(ctx, s.db, query, id)
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts
		WHERE account_number = $1 AND deleted_at IS NULL`

	return getAccount(ctx, s.db, query, number)
}

func (s *Store) ListAccounts(ctx context.Context, customerID int64) ([]*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts
		WHERE customer_id = $1 AND deleted_at IS NULL
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", classify(err))
	}
	defer rows.Close()

	var accounts []*ledger.Account

	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}

		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", classify(err))
	}

	return accounts, nil
}

func (s *Store) CustomerForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64

	err := s.db.QueryRowContext(ctx, `SELECT id FROM customers WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledger.ErrNoCustomerProfile
		}

		return 0, fmt.Errorf("getting customer: %w", classify(err))
	}

	return id, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID int64) ([]*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions t
		WHERE t.account_id = $1
		ORDER BY t.created_at DESC, t.id DESC`

	return listTransactions(ctx, s.db, query, accountID)
}

func (s *Store) ListCustomerTransactions(ctx context.Context, customerID int64) ([]*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions t
		JOIN accounts a ON t.account_id = a.id
		WHERE a.customer_id = $1
		ORDER BY t.created_at DESC, t.id DESC`

	return listTransactions(ctx, s.db, query, customerID)
}

func listTransactions(ctx context.Context, q queryer, query string, arg any) ([]*ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", classify(err))
	}
	defer rows.Close()

	var txs []*ledger.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", classify(err))
	}

	return txs, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}

	return nil
}

// Begin opens a READ COMMITTED transaction. Serialization of balance updates
// comes from the row locks taken by LockAccount, not from the isolation level.
func (s *Store) Begin(ctx context.Context) (ledger.UnitOfWork, error) {
	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", classify(err))
	}

	return &unitOfWork{tx: dbTx}, nil
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) LockAccount(ctx context.Context, id int64) (*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE`

	return getAccount(ctx, u.tx, query, id)
}

func (u *unitOfWork) CreateAccount(ctx context.Context, account *ledger.Account) error {
	query := `
		INSERT INTO accounts (customer_id, account_number, account_type, balance, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`

	err := u.tx.QueryRowContext(ctx, query,
		account.CustomerID,
		account.Number,
		account.Type,
		account.Balance,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return ledger.ErrNoCustomerProfile
		}

		return fmt.Errorf("creating account: %w", classify(err))
	}

	return nil
}

func (u *unitOfWork) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res, err := u.tx.ExecContext(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, balance, id)
	if err != nil {
		if pgCode(err) == codeCheckViolation {
			return ledger.ErrInsufficientFunds
		}

		return fmt.Errorf("updating balance: %w", classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", classify(err))
	}

	if n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

func (u *unitOfWork) AppendTransaction(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		INSERT INTO transactions (account_id, kind, direction, amount, description, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	err := u.tx.QueryRowContext(ctx, query,
		tx.AccountID,
		tx.Kind,
		tx.Direction,
		tx.Amount,
		tx.Description,
		tx.CorrelationID,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", classify(err))
	}

	return nil
}

func (u *unitOfWork) SumTransactions(ctx context.Context, accountID int64) (decimal.Decimal, int, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0), COUNT(*)
		FROM transactions
		WHERE account_id = $1
	`

	var (
		sum decimal.Decimal
		n   int
	)

	if err := u.tx.QueryRowContext(ctx, query, accountID).Scan(&sum, &n); err != nil {
		return decimal.Zero, 0, fmt.Errorf("summing transactions: %w", classify(err))
	}

	return sum, n, nil
}

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return classify(err)
	}

	return nil
}

func (u *unitOfWork) Rollback() error {
	err := u.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify(err)
	}

	return nil
}

const (
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}

// classify marks failures after which nothing was applied and a retry may
// succeed: lost connections, timeouts, cancellations, lock and serialization
// conflicts.
func classify(err error) error {
	if err == nil || errors.Is(err, ledger.ErrStoreUnavailable) {
		return err
	}

	if transient(err) {
		return fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
	}

	return err
}

func transient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, sql.ErrTxDone):
		return true
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	code := pgCode(err)

	switch {
	case strings.HasPrefix(code, "08"): // connection exception
		return true
	case code == "40001", code == "40P01": // serialization failure, deadlock
		return true
	case code == "55P03", code == "57014", code == "57P01": // lock timeout, cancel, admin shutdown
		return true
	}

	return false
}

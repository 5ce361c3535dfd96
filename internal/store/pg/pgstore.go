package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sponsorchain.org/internal/ids"
	"sponsorchain.org/internal/treasury"
)

// Store is the Postgres-backed treasury. It mirrors the in-memory engine's
// semantics: lazy accounts, set-style allowances, an append-only payment
// journal keyed by a monotonic sequence.
type Store struct {
	db *sql.DB
}

var _ treasury.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Deposit(ctx context.Context, addr string, m treasury.Money) (treasury.Account, error) {
	if addr == "" {
		return treasury.Account{}, treasury.ErrNotFound
	}
	if m.Asset == "" {
		return treasury.Account{}, treasury.ErrInvalidAsset
	}
	if !m.IsPositive() {
		return treasury.Account{}, treasury.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return treasury.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into accounts(address, created_at) values($1, now())
		on conflict (address) do nothing
	`, addr); err != nil {
		return treasury.Account{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into balances(address, asset, amount)
		values ($1,$2,$3)
		on conflict (address, asset) do update
		set amount = balances.amount + excluded.amount
	`, addr, m.Asset, m.Amount); err != nil {
		return treasury.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return treasury.Account{}, err
	}

	return s.Account(ctx, addr)
}

func (s *Store) Account(ctx context.Context, addr string) (treasury.Account, error) {
	var created time.Time
	err := s.db.QueryRowContext(ctx, `select created_at from accounts where address=$1`, addr).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return treasury.Account{}, treasury.ErrNotFound
	}
	if err != nil {
		return treasury.Account{}, err
	}

	rows, err := s.db.QueryContext(ctx, `select asset, amount from balances where address=$1`, addr)
	if err != nil {
		return treasury.Account{}, err
	}
	defer rows.Close()

	bals := map[string]int64{}
	for rows.Next() {
		var a string
		var amt int64
		if err := rows.Scan(&a, &amt); err != nil {
			return treasury.Account{}, err
		}
		bals[a] = amt
	}
	return treasury.Account{Address: addr, CreatedAt: created, Balances: bals}, nil
}

func (s *Store) Balance(ctx context.Context, addr, asset string) (treasury.Money, error) {
	var amt int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce(amount,0) from balances where address=$1 and asset=$2
	`, addr, asset).Scan(&amt)
	if errors.Is(err, sql.ErrNoRows) {
		return treasury.Money{Asset: asset}, nil
	}
	if err != nil {
		return treasury.Money{}, err
	}
	return treasury.Money{Asset: asset, Amount: amt}, nil
}

func (s *Store) Approve(ctx context.Context, owner, spender string, m treasury.Money) error {
	if owner == "" || spender == "" {
		return treasury.ErrNotFound
	}
	if m.Asset == "" {
		return treasury.ErrInvalidAsset
	}
	if m.Amount < 0 {
		return treasury.ErrInvalidAmount
	}
	_, err := s.db.ExecContext(ctx, `
		insert into allowances(owner, spender, asset, amount)
		values ($1,$2,$3,$4)
		on conflict (owner, spender, asset) do update set amount = excluded.amount
	`, owner, spender, m.Asset, m.Amount)
	return err
}

func (s *Store) Allowance(ctx context.Context, owner, spender, asset string) (treasury.Money, error) {
	var amt int64
	err := s.db.QueryRowContext(ctx, `
		select amount from allowances where owner=$1 and spender=$2 and asset=$3
	`, owner, spender, asset).Scan(&amt)
	if errors.Is(err, sql.ErrNoRows) {
		return treasury.Money{Asset: asset}, nil
	}
	if err != nil {
		return treasury.Money{}, err
	}
	return treasury.Money{Asset: asset, Amount: amt}, nil
}

func (s *Store) Transfer(ctx context.Context, from, to string, m treasury.Money) (treasury.Payment, error) {
	return s.transfer(ctx, from, to, m, "")
}

func (s *Store) TransferFrom(ctx context.Context, spender, from, to string, m treasury.Money) (treasury.Payment, error) {
	if spender == "" {
		return treasury.Payment{}, treasury.ErrNotFound
	}
	return s.transfer(ctx, from, to, m, spender)
}

func (s *Store) transfer(ctx context.Context, from, to string, m treasury.Money, spender string) (treasury.Payment, error) {
	if from == "" || to == "" {
		return treasury.Payment{}, treasury.ErrNotFound
	}
	if m.Asset == "" {
		return treasury.Payment{}, treasury.ErrInvalidAsset
	}
	if !m.IsPositive() {
		return treasury.Payment{}, treasury.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return treasury.Payment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Allowance check and decrement under the same transaction.
	if spender != "" {
		var remaining int64
		err := tx.QueryRowContext(ctx, `
			select amount from allowances
			where owner=$1 and spender=$2 and asset=$3 for update
		`, from, spender, m.Asset).Scan(&remaining)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && remaining < m.Amount) {
			return treasury.Payment{}, treasury.ErrInsufficientAllowance
		}
		if err != nil {
			return treasury.Payment{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			update allowances set amount = amount - $4
			where owner=$1 and spender=$2 and asset=$3
		`, from, spender, m.Asset, m.Amount); err != nil {
			return treasury.Payment{}, err
		}
	}

	// Recipient account materializes lazily, like the in-memory engine.
	if _, err := tx.ExecContext(ctx, `
		insert into accounts(address, created_at) values($1, now())
		on conflict (address) do nothing
	`, to); err != nil {
		return treasury.Payment{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into balances(address, asset, amount)
		values ($1,$2,0) on conflict do nothing
	`, to, m.Asset); err != nil {
		return treasury.Payment{}, err
	}

	// Check sufficient funds (lock row); ordering is stable because the
	// debit row is always locked before the credit update.
	var fromBal int64
	if err := tx.QueryRowContext(ctx, `
		select amount from balances where address=$1 and asset=$2 for update
	`, from, m.Asset).Scan(&fromBal); err != nil {
		return treasury.Payment{}, treasury.ErrInsufficientFunds
	}
	if fromBal < m.Amount {
		return treasury.Payment{}, treasury.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `
		update balances set amount = amount - $3
		where address=$1 and asset=$2
	`, from, m.Asset, m.Amount); err != nil {
		return treasury.Payment{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update balances set amount = amount + $3
		where address=$1 and asset=$2
	`, to, m.Asset, m.Amount); err != nil {
		return treasury.Payment{}, err
	}

	pid := ids.New()
	var seq uint64
	if err := tx.QueryRowContext(ctx, `
		insert into payments(id, from_address, to_address, asset, amount, spender)
		values ($1,$2,$3,$4,$5,nullif($6,'')) returning sequence
	`, pid, from, to, m.Asset, m.Amount, spender).Scan(&seq); err != nil {
		return treasury.Payment{}, err
	}

	if err := tx.Commit(); err != nil {
		return treasury.Payment{}, err
	}

	return treasury.Payment{
		ID:        pid,
		CreatedAt: time.Now().UTC(),
		From:      from,
		To:        to,
		Asset:     m.Asset,
		Amount:    m.Amount,
		Spender:   spender,
		Sequence:  seq,
	}, nil
}

func (s *Store) ListPayments(ctx context.Context, limit int, afterSeq uint64) ([]treasury.Payment, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, created_at, from_address, to_address, asset, amount, coalesce(spender,''), sequence
		from payments
		where sequence > $1
		order by sequence asc
		limit $2
	`, afterSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []treasury.Payment
	var last uint64
	for rows.Next() {
		var p treasury.Payment
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.From, &p.To, &p.Asset, &p.Amount, &p.Spender, &p.Sequence); err != nil {
			return nil, 0, err
		}
		res = append(res, p)
		last = p.Sequence
	}
	return res, last, nil
}

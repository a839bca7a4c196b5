package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/model"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS email_subscriptions (
		address TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (address, email)
	);
	CREATE TABLE IF NOT EXISTS referrals (
		referee TEXT PRIMARY KEY,
		referrer TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer);
	CREATE TABLE IF NOT EXISTS balance_snapshots (
		snapshot_id BIGSERIAL PRIMARY KEY,
		address TEXT NOT NULL,
		usd_value DOUBLE PRECISION NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_balance_snapshots_address ON balance_snapshots(address, taken_at DESC);
`

// Postgres is the production Store
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a pool, pings it and applies the schema
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	logrus.Info("Connected to PostgreSQL")
	return &Postgres{db: db}, nil
}

// Close closes the pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Subscribe inserts s; the primary key rejects duplicates
func (p *Postgres) Subscribe(ctx context.Context, s Subscription) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO email_subscriptions (address, email) VALUES ($1, $2)`,
		normalize(s.Address), s.Email)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Subscribed reports whether address has any subscription
func (p *Postgres) Subscribed(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_subscriptions WHERE address = $1)`,
		normalize(address)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query subscription: %w", err)
	}
	return exists, nil
}

// Refer checks the referral rules and inserts r in one transaction
func (p *Postgres) Refer(ctx context.Context, r Referral) error {
	r = Referral{Referrer: normalize(r.Referrer), Referee: normalize(r.Referee)}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin referral: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT referrer, referee FROM referrals WHERE referee = $1 OR (referee = $2 AND referrer = $1)`,
		r.Referee, r.Referrer)
	if err != nil {
		return fmt.Errorf("query referrals: %w", err)
	}
	existing, err := scanReferrals(rows)
	if err != nil {
		return err
	}
	if err := checkReferral(existing, r); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO referrals (referee, referrer) VALUES ($1, $2)`, r.Referee, r.Referrer)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrInvalidReferral
	}
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return tx.Commit()
}

// Referrals lists address's referees and its referrer
func (p *Postgres) Referrals(ctx context.Context, address string) (ReferralList, error) {
	address = normalize(address)
	rows, err := p.db.QueryContext(ctx,
		`SELECT referrer, referee FROM referrals WHERE referrer = $1 ORDER BY created_at`, address)
	if err != nil {
		return ReferralList{}, fmt.Errorf("query referees: %w", err)
	}
	referees, err := scanReferrals(rows)
	if err != nil {
		return ReferralList{}, err
	}
	out := ReferralList{Referees: referees}

	err = p.db.QueryRowContext(ctx, `SELECT referrer FROM referrals WHERE referee = $1`, address).Scan(&out.Referrer)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ReferralList{}, fmt.Errorf("query referrer: %w", err)
	}
	return out, nil
}

func scanReferrals(rows *sql.Rows) ([]Referral, error) {
	defer rows.Close()
	out := []Referral{}
	for rows.Next() {
		var r Referral
		if err := rows.Scan(&r.Referrer, &r.Referee); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddSnapshot inserts a balance snapshot
func (p *Postgres) AddSnapshot(ctx context.Context, s model.BalanceSnapshot) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO balance_snapshots (address, usd_value, taken_at) VALUES ($1, $2, $3)`,
		normalize(s.Address), s.USDValue, s.TakenAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Snapshots returns address's snapshots oldest first
func (p *Postgres) Snapshots(ctx context.Context, address string) ([]model.BalanceSnapshot, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT address, usd_value, taken_at FROM balance_snapshots WHERE address = $1 ORDER BY taken_at`,
		normalize(address))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	out := []model.BalanceSnapshot{}
	for rows.Next() {
		var s model.BalanceSnapshot
		if err := rows.Scan(&s.Address, &s.USDValue, &s.TakenAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

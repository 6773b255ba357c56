// Package store persists emitted recommendations for history and audit.
// The engine never reads persisted recommendations back into a decision;
// this surface exists for the API and downstream review.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/scalepilot/scalepilot/internal/domain"
)

// Postgres stores recommendations in a single denormalized table with
// the reason/risk/snapshot payloads as JSON columns.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id               TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL,
	audience_id      TEXT NOT NULL,
	audience_name    TEXT NOT NULL DEFAULT '',
	action           TEXT NOT NULL,
	scale_percentage INTEGER,
	confidence       TEXT NOT NULL,
	bucket           TEXT NOT NULL,
	trend            TEXT NOT NULL,
	composite_score  DOUBLE PRECISION NOT NULL,
	reasons          JSONB NOT NULL,
	risks            JSONB NOT NULL,
	snapshot         JSONB NOT NULL,
	generated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recommendations_account
	ON recommendations (account_id, generated_at DESC);`

// EnsureSchema creates the recommendations table if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const insertRecommendation = `
INSERT INTO recommendations (
	id, account_id, audience_id, audience_name, action, scale_percentage,
	confidence, bucket, trend, composite_score, reasons, risks, snapshot, generated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

// SaveRun persists every recommendation of a run inside one transaction.
func (p *Postgres) SaveRun(ctx context.Context, accountID string, recs []domain.Recommendation) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		reasons, err := json.Marshal(rec.Reasons)
		if err != nil {
			return fmt.Errorf("encode reasons for %s: %w", rec.AudienceID, err)
		}
		risks, err := json.Marshal(rec.Risks)
		if err != nil {
			return fmt.Errorf("encode risks for %s: %w", rec.AudienceID, err)
		}
		snapshot, err := json.Marshal(rec.Snapshot)
		if err != nil {
			return fmt.Errorf("encode snapshot for %s: %w", rec.AudienceID, err)
		}
		if _, err := tx.ExecContext(ctx, insertRecommendation,
			rec.ID, accountID, rec.AudienceID, rec.AudienceName, string(rec.Action),
			rec.ScalePercentage, string(rec.Confidence), string(rec.Bucket), string(rec.Trend),
			rec.CompositeScore, reasons, risks, snapshot, rec.GeneratedAt,
		); err != nil {
			return fmt.Errorf("insert recommendation %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

type recommendationRow struct {
	ID              string    `db:"id"`
	AccountID       string    `db:"account_id"`
	AudienceID      string    `db:"audience_id"`
	AudienceName    string    `db:"audience_name"`
	Action          string    `db:"action"`
	ScalePercentage *int      `db:"scale_percentage"`
	Confidence      string    `db:"confidence"`
	Bucket          string    `db:"bucket"`
	Trend           string    `db:"trend"`
	CompositeScore  float64   `db:"composite_score"`
	Reasons         []byte    `db:"reasons"`
	Risks           []byte    `db:"risks"`
	Snapshot        []byte    `db:"snapshot"`
	GeneratedAt     time.Time `db:"generated_at"`
}

const selectByAccount = `
SELECT id, account_id, audience_id, audience_name, action, scale_percentage,
       confidence, bucket, trend, composite_score, reasons, risks, snapshot, generated_at
FROM recommendations
WHERE account_id = $1
ORDER BY generated_at DESC, composite_score DESC
LIMIT $2`

// ListByAccount returns the most recent recommendations for an account.
func (p *Postgres) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Recommendation, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []recommendationRow
	if err := p.db.SelectContext(ctx, &rows, selectByAccount, accountID, limit); err != nil {
		return nil, fmt.Errorf("list recommendations for %s: %w", accountID, err)
	}

	recs := make([]domain.Recommendation, 0, len(rows))
	for _, row := range rows {
		rec := domain.Recommendation{
			ID:              row.ID,
			AudienceID:      row.AudienceID,
			AudienceName:    row.AudienceName,
			Action:          domain.Action(row.Action),
			ScalePercentage: row.ScalePercentage,
			Confidence:      domain.Confidence(row.Confidence),
			Bucket:          domain.PerformanceBucket(row.Bucket),
			Trend:           domain.TrendState(row.Trend),
			CompositeScore:  row.CompositeScore,
			GeneratedAt:     row.GeneratedAt,
		}
		if err := json.Unmarshal(row.Reasons, &rec.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons for %s: %w", row.ID, err)
		}
		if err := json.Unmarshal(row.Risks, &rec.Risks); err != nil {
			return nil, fmt.Errorf("decode risks for %s: %w", row.ID, err)
		}
		if err := json.Unmarshal(row.Snapshot, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for %s: %w", row.ID, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

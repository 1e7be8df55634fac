package repository

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/entity"
)

// ListScansFilter narrows ListScans. Nil bounds are open; Vendor matches
// case-insensitively on a substring.
type ListScansFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Vendor   string
	Limit    int
}

type ScanRepository interface {
	SaveScan(ctx context.Context, scan *entity.Scan) error
	GetScan(ctx context.Context, id uuid.UUID) (*entity.Scan, error)
	ListScans(ctx context.Context, filter ListScansFilter) ([]*entity.Scan, error)
}

type scanRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewScanRepository(pool *pgxpool.Pool, logger *slog.Logger) ScanRepository {
	return &scanRepository{pool: pool, logger: logger}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS scans (
	id          UUID PRIMARY KEY,
	filename    TEXT NOT NULL,
	vendor      TEXT,
	tx_date     TEXT,
	total_ht    DOUBLE PRECISION,
	tva_amount  DOUBLE PRECISION,
	total_ttc   DOUBLE PRECISION,
	confidence  DOUBLE PRECISION NOT NULL,
	coherent    BOOLEAN NOT NULL,
	warnings    JSONB NOT NULL DEFAULT '[]',
	raw_text    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS scans_created_at_idx ON scans (created_at DESC);
CREATE INDEX IF NOT EXISTS scans_vendor_idx ON scans (vendor);
`

// EnsureSchema creates the scans table when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		return common.NewAppError(common.ErrCodeDatabase, "ensure schema", err)
	}
	return nil
}

func (r *scanRepository) SaveScan(ctx context.Context, scan *entity.Scan) error {
	const q = `
INSERT INTO scans (id, filename, vendor, tx_date, total_ht, tva_amount, total_ttc,
                   confidence, coherent, warnings, raw_text, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	warnings := scan.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	_, err := r.pool.Exec(ctx, q,
		scan.ID, scan.Filename, scan.Vendor, scan.TxDate,
		scan.TotalHT, scan.TVAAmount, scan.TotalTTC,
		scan.Confidence, scan.Coherent, warnings, scan.RawText, scan.CreatedAt)
	if err != nil {
		r.logger.Error("failed to save scan", "scan_id", scan.ID, "error", err)
		return common.NewAppError(common.ErrCodeDatabase, "save scan", err)
	}
	r.logger.Info("scan saved", "scan_id", scan.ID, "filename", scan.Filename)
	return nil
}

func (r *scanRepository) GetScan(ctx context.Context, id uuid.UUID) (*entity.Scan, error) {
	const q = `
SELECT id, filename, vendor, tx_date, total_ht, tva_amount, total_ttc,
       confidence, coherent, warnings, raw_text, created_at
FROM scans WHERE id = $1`
	s, err := scanRow(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError(common.ErrCodeNotFound, "scan "+id.String(), common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get scan", "scan_id", id, "error", err)
		return nil, common.NewAppError(common.ErrCodeDatabase, "get scan", err)
	}
	return s, nil
}

func (r *scanRepository) ListScans(ctx context.Context, filter ListScansFilter) ([]*entity.Scan, error) {
	q := `
SELECT id, filename, vendor, tx_date, total_ht, tva_amount, total_ttc,
       confidence, coherent, warnings, raw_text, created_at
FROM scans WHERE 1=1`
	var args []any
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		q += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		q += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	if filter.Vendor != "" {
		args = append(args, "%"+filter.Vendor+"%")
		q += ` AND vendor ILIKE $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list scans", "error", err)
		return nil, common.NewAppError(common.ErrCodeDatabase, "list scans", err)
	}
	defer rows.Close()

	var out []*entity.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, common.NewAppError(common.ErrCodeDatabase, "scan row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError(common.ErrCodeDatabase, "list scans", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*entity.Scan, error) {
	var s entity.Scan
	err := row.Scan(&s.ID, &s.Filename, &s.Vendor, &s.TxDate,
		&s.TotalHT, &s.TVAAmount, &s.TotalTTC,
		&s.Confidence, &s.Coherent, &s.Warnings, &s.RawText, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}


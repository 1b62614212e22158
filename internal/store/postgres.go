package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lifecycle-cli/internal/db"
	"github.com/sells-group/lifecycle-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_job":              `SELECT id, customer_name, created_at FROM jobs WHERE id = $1`,
	"get_products":         `SELECT product_id, manufacturer, description, quantity, idx FROM products WHERE job_id = $1 ORDER BY idx ASC`,
	"update_report_status": `UPDATE reports SET status = $1, progress = $2, current_step = $3 WHERE id = $4`,
	"get_report":           `SELECT id, job_id, status, progress, current_step, options, statistics, filename, error, created_at, completed_at FROM reports WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use this with
// pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	customer_name TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id       TEXT NOT NULL REFERENCES jobs(id),
	product_id   TEXT NOT NULL,
	manufacturer TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	quantity     INTEGER NOT NULL DEFAULT 1,
	idx          INTEGER NOT NULL,
	UNIQUE (job_id, idx)
);

CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL REFERENCES jobs(id),
	status       TEXT NOT NULL DEFAULT 'queued',
	progress     INTEGER NOT NULL DEFAULT 0,
	current_step TEXT NOT NULL DEFAULT '',
	options      JSONB NOT NULL,
	statistics   JSONB,
	filename     TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_reports_job_id ON reports(job_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, customerName string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, customer_name, created_at) VALUES ($1, $2, $3)`,
		id, customerName, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{ID: id, CustomerName: customerName, CreatedAt: now}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, customer_name, created_at FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.CustomerName, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return &j, nil
}

// AddProducts bulk-loads product rows through a temp-table COPY plus
// INSERT ON CONFLICT keyed on (job_id, idx), so re-importing a job's
// product list replaces its rows instead of duplicating them. Job
// uploads routinely carry hundreds of rows.
func (s *PostgresStore) AddProducts(ctx context.Context, jobID string, products []model.Product) error {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}

	rows := make([][]any, 0, len(products))
	for _, p := range products {
		quantity := p.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		rows = append(rows, []any{
			uuid.New().String(), jobID, p.ProductID, p.Manufacturer, p.Description, quantity, p.Index,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "products",
		Columns:      []string{"id", "job_id", "product_id", "manufacturer", "description", "quantity", "idx"},
		ConflictKeys: []string{"job_id", "idx"},
		UpdateCols:   []string{"product_id", "manufacturer", "description", "quantity"},
	}, rows)
	return eris.Wrapf(err, "postgres: add products for job %s", jobID)
}

func (s *PostgresStore) GetProducts(ctx context.Context, jobID string) ([]model.Product, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT product_id, manufacturer, description, quantity, idx
		 FROM products WHERE job_id = $1 ORDER BY idx ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get products for job %s", jobID)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ProductID, &p.Manufacturer, &p.Description, &p.Quantity, &p.Index); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: get products iterate")
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_name, created_at FROM jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.CustomerName, &j.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) CreateReport(ctx context.Context, reportID, jobID string, opts model.ReportOptions) (*model.Report, error) {
	now := time.Now().UTC()

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal options")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, job_id, status, progress, options, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		reportID, jobID, string(model.ReportQueued), 0, optsJSON, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert report for job %s", jobID)
	}

	return &model.Report{
		ID:        reportID,
		JobID:     jobID,
		Status:    model.ReportQueued,
		Options:   opts,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateReportStatus(ctx context.Context, reportID string, status model.ReportStatus, progress int, step string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, progress = $2, current_step = $3 WHERE id = $4`,
		string(status), progress, step, reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update report status %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrReportNotFound, "%s", reportID)
	}
	return nil
}

func (s *PostgresStore) SaveReportResult(ctx context.Context, reportID string, status model.ReportStatus, stats *model.Statistics, filename, errMsg string) error {
	var statsJSON []byte
	if stats != nil {
		var err error
		statsJSON, err = json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal statistics")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, progress = 100, statistics = $2, filename = $3, error = $4, completed_at = $5 WHERE id = $6`,
		string(status), statsJSON, filename, errMsg, time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save report result %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrReportNotFound, "%s", reportID)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	var r model.Report
	var optsJSON []byte
	var statsJSON []byte
	var completedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, status, progress, current_step, options, statistics, filename, error, created_at, completed_at
		 FROM reports WHERE id = $1`,
		reportID,
	).Scan(&r.ID, &r.JobID, &r.Status, &r.Progress, &r.CurrentStep,
		&optsJSON, &statsJSON, &r.Filename, &r.Error, &r.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrReportNotFound, "%s", reportID)
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}

	if err := json.Unmarshal(optsJSON, &r.Options); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal options")
	}
	if len(statsJSON) > 0 {
		r.Statistics = &model.Statistics{}
		if err := json.Unmarshal(statsJSON, r.Statistics); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal statistics")
		}
	}
	r.CompletedAt = completedAt
	return &r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	query := `SELECT id, job_id, status, progress, current_step, options, statistics, filename, error, created_at, completed_at
	          FROM reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.JobID != "" {
		query += fmt.Sprintf(` AND job_id = $%d`, argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var r model.Report
		var optsJSON, statsJSON []byte
		var completedAt *time.Time

		if err := rows.Scan(&r.ID, &r.JobID, &r.Status, &r.Progress, &r.CurrentStep,
			&optsJSON, &statsJSON, &r.Filename, &r.Error, &r.CreatedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		if err := json.Unmarshal(optsJSON, &r.Options); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal options")
		}
		if len(statsJSON) > 0 {
			r.Statistics = &model.Statistics{}
			if err := json.Unmarshal(statsJSON, r.Statistics); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal statistics")
			}
		}
		r.CompletedAt = completedAt
		reports = append(reports, r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

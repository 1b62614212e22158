package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	customer_name TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS products (
	id           TEXT PRIMARY KEY,
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
	options      TEXT NOT NULL,
	statistics   TEXT,
	filename     TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_reports_job_id ON reports(job_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, customerName string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, customer_name, created_at) VALUES (?, ?, ?)`,
		id, customerName, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.Job{ID: id, CustomerName: customerName, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_name, created_at FROM jobs WHERE id = ?`,
		jobID,
	).Scan(&j.ID, &j.CustomerName, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return &j, nil
}

// AddProducts upserts product rows keyed on (job_id, idx), so
// re-importing a job's product list replaces its rows instead of
// duplicating them.
func (s *SQLiteStore) AddProducts(ctx context.Context, jobID string, products []model.Product) error {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (id, job_id, product_id, manufacturer, description, quantity, idx)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, idx) DO UPDATE SET
		   product_id = excluded.product_id,
		   manufacturer = excluded.manufacturer,
		   description = excluded.description,
		   quantity = excluded.quantity`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert product")
	}
	defer stmt.Close()

	for _, p := range products {
		quantity := p.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		_, err := stmt.ExecContext(ctx,
			uuid.New().String(), jobID, p.ProductID, p.Manufacturer, p.Description, quantity, p.Index,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert product %s", p.ProductID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit products")
}

func (s *SQLiteStore) GetProducts(ctx context.Context, jobID string) ([]model.Product, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, manufacturer, description, quantity, idx
		 FROM products WHERE job_id = ? ORDER BY idx ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get products for job %s", jobID)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ProductID, &p.Manufacturer, &p.Description, &p.Quantity, &p.Index); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: get products iterate")
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_name, created_at FROM jobs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.CustomerName, &j.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) CreateReport(ctx context.Context, reportID, jobID string, opts model.ReportOptions) (*model.Report, error) {
	now := time.Now().UTC()

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal options")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, job_id, status, progress, options, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		reportID, jobID, string(model.ReportQueued), 0, string(optsJSON), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert report for job %s", jobID)
	}

	return &model.Report{
		ID:        reportID,
		JobID:     jobID,
		Status:    model.ReportQueued,
		Options:   opts,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateReportStatus(ctx context.Context, reportID string, status model.ReportStatus, progress int, step string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, progress = ?, current_step = ? WHERE id = ?`,
		string(status), progress, step, reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update report status %s", reportID)
	}
	return checkRowsAffected(res, reportID)
}

func (s *SQLiteStore) SaveReportResult(ctx context.Context, reportID string, status model.ReportStatus, stats *model.Statistics, filename, errMsg string) error {
	var statsJSON sql.NullString
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal statistics")
		}
		statsJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, progress = 100, statistics = ?, filename = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), statsJSON, filename, errMsg, time.Now().UTC(), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save report result %s", reportID)
	}
	return checkRowsAffected(res, reportID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, status, progress, current_step, options, statistics, filename, error, created_at, completed_at
		 FROM reports WHERE id = ?`,
		reportID,
	)
	return scanReport(row)
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	query := `SELECT id, job_id, status, progress, current_step, options, statistics, filename, error, created_at, completed_at
	          FROM reports WHERE 1=1`
	var args []any

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

// helpers

func checkRowsAffected(res sql.Result, reportID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrReportNotFound, "%s", reportID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable) (*model.Report, error) {
	var r model.Report
	var optsJSON string
	var statsJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.JobID, &r.Status, &r.Progress, &r.CurrentStep,
		&optsJSON, &statsJSON, &r.Filename, &r.Error, &r.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}

	if err := json.Unmarshal([]byte(optsJSON), &r.Options); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal options")
	}
	if statsJSON.Valid {
		r.Statistics = &model.Statistics{}
		if err := json.Unmarshal([]byte(statsJSON.String), r.Statistics); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal statistics")
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/resinat/forwardproxy/internal/proxy"
)

// Repo is the durable index of completed exchange records.
type Repo struct {
	db *sql.DB
}

// NewRepo opens path, migrates it to the current schema, and returns a
// ready-to-use Repo.
func NewRepo(path string) (*Repo, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Repo) Close() error { return r.db.Close() }

// Insert records one completed exchange. recordedAtNs is the caller's
// timestamp (Repo never calls time.Now itself so tests can supply a fixed
// clock).
func (r *Repo) Insert(recordedAtNs int64, rec proxy.ExchangeRecord) (int64, error) {
	reqHeaders, err := json.Marshal(rec.Request.Headers)
	if err != nil {
		return 0, fmt.Errorf("store: marshal request headers: %w", err)
	}
	respHeaders, err := json.Marshal(rec.Response.Headers)
	if err != nil {
		return 0, fmt.Errorf("store: marshal response headers: %w", err)
	}

	result, err := r.db.Exec(`INSERT INTO exchange_records (
		recorded_at_ns, req_method, req_url, req_headers, req_body_url,
		resp_status, resp_headers, resp_body_url
	) VALUES (?,?,?,?,?,?,?,?)`,
		recordedAtNs, rec.Request.Method, rec.Request.URL, string(reqHeaders), rec.Request.BodyURL,
		rec.Response.StatusCode, string(respHeaders), rec.Response.BodyURL,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert exchange record: %w", err)
	}
	return result.LastInsertId()
}

// ExchangeSummary is one row as returned by List/GetByID.
type ExchangeSummary struct {
	ID           int64
	RecordedAtNs int64
	proxy.ExchangeRecord
}

const summaryColumns = "id, recorded_at_ns, req_method, req_url, req_headers, req_body_url, resp_status, resp_headers, resp_body_url"

// ListFilter narrows List to a window of the exchange log.
type ListFilter struct {
	ReqURLContains string
	Limit          int
}

// List returns the most recent matching exchange records, newest first.
func (r *Repo) List(f ListFilter) ([]ExchangeSummary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := "SELECT " + summaryColumns + " FROM exchange_records"
	var args []any
	if f.ReqURLContains != "" {
		q += " WHERE instr(req_url, ?) > 0"
		args = append(args, f.ReqURLContains)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []ExchangeSummary
	for rows.Next() {
		s, err := scanExchangeSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByID looks up a single record by its store-assigned id.
func (r *Repo) GetByID(id int64) (*ExchangeSummary, error) {
	row := r.db.QueryRow("SELECT "+summaryColumns+" FROM exchange_records WHERE id = ?", id)
	s, err := scanExchangeSummary(row)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExchangeSummary(s rowScanner) (ExchangeSummary, error) {
	var row ExchangeSummary
	var reqHeaders, respHeaders string
	err := s.Scan(
		&row.ID, &row.RecordedAtNs,
		&row.Request.Method, &row.Request.URL, &reqHeaders, &row.Request.BodyURL,
		&row.Response.StatusCode, &respHeaders, &row.Response.BodyURL,
	)
	if err != nil {
		return ExchangeSummary{}, err
	}
	if err := json.Unmarshal([]byte(reqHeaders), &row.Request.Headers); err != nil {
		return ExchangeSummary{}, fmt.Errorf("store: unmarshal request headers: %w", err)
	}
	if err := json.Unmarshal([]byte(respHeaders), &row.Response.Headers); err != nil {
		return ExchangeSummary{}, fmt.Errorf("store: unmarshal response headers: %w", err)
	}
	return row, nil
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteDB opens the database at path. Use ":memory:" for tests.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writes
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	return &SQLiteDB{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// SaveRecord inserts rec, assigning an ID and timestamps when missing
func (s *SQLiteDB) SaveRecord(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `INSERT INTO records (
		id, player_name_hash, score, timestamp, reference_time, game_hash, game_hash_length,
		timestamp_valid, score_valid, hash_valid, verified, attestation, status, error,
		attempts, engine_version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.PlayerNameHash, rec.Score, toInt64(rec.Timestamp), toInt64(rec.ReferenceTime),
		rec.GameHash, rec.GameHashLength,
		boolInt(rec.TimestampValid), boolInt(rec.ScoreValid), boolInt(rec.HashValid), boolInt(rec.Verified),
		rec.Attestation, string(rec.Status), rec.Error, rec.Attempts, rec.EngineVersion,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// UpdateRecord updates the mutable fields of an existing record
func (s *SQLiteDB) UpdateRecord(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = s.now().UTC()

	res, err := s.db.ExecContext(ctx, `UPDATE records SET
		timestamp_valid = ?, score_valid = ?, hash_valid = ?, verified = ?, attestation = ?,
		status = ?, error = ?, attempts = ?, updated_at = ?
		WHERE id = ?`,
		boolInt(rec.TimestampValid), boolInt(rec.ScoreValid), boolInt(rec.HashValid), boolInt(rec.Verified),
		rec.Attestation, string(rec.Status), rec.Error, rec.Attempts, rec.UpdatedAt.UnixNano(), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const recordColumns = `id, player_name_hash, score, timestamp, reference_time, game_hash, game_hash_length,
	timestamp_valid, score_valid, hash_valid, verified, attestation, status, error,
	attempts, engine_version, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var ts, ref, created, updated int64
	var tsValid, scoreValid, hashValid, verified int
	var status string

	err := row.Scan(
		&rec.ID, &rec.PlayerNameHash, &rec.Score, &ts, &ref, &rec.GameHash, &rec.GameHashLength,
		&tsValid, &scoreValid, &hashValid, &verified, &rec.Attestation, &status, &rec.Error,
		&rec.Attempts, &rec.EngineVersion, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	rec.Timestamp = fromInt64(ts)
	rec.ReferenceTime = fromInt64(ref)
	rec.TimestampValid = tsValid == 1
	rec.ScoreValid = scoreValid == 1
	rec.HashValid = hashValid == 1
	rec.Verified = verified == 1
	rec.Status = Status(status)
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return &rec, nil
}

// GetRecord retrieves a record by ID
func (s *SQLiteDB) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListRecords retrieves records newest first with pagination and filtering
func (s *SQLiteDB) ListRecords(ctx context.Context, query RecordsQuery) (*RecordsList, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}

	if query.PlayerNameHash != "" {
		whereClause += " AND player_name_hash = ?"
		args = append(args, query.PlayerNameHash)
	}
	if query.Status != "" {
		whereClause += " AND status = ?"
		args = append(args, string(query.Status))
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = 50
	}
	if query.PerPage > 500 {
		query.PerPage = 500
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	args = append(args, query.PerPage, offset)
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records `+whereClause+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return &RecordsList{
		Records:    records,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

// SaveProof stores or replaces the proof for a record
func (s *SQLiteDB) SaveProof(ctx context.Context, p *ProofRow) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO proofs (
		record_id, proof, commitment, vk_hash, scheme, curve, constraint_count, generation_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RecordID, p.ProofBytes, p.Commitment, p.VKHash, p.Scheme, p.Curve,
		toInt64(p.ConstraintCount), p.GenerationMs, p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save proof: %w", err)
	}
	p.SizeBytes = len(p.ProofBytes)
	return nil
}

// GetProof retrieves the proof stored for a record
func (s *SQLiteDB) GetProof(ctx context.Context, recordID string) (*ProofRow, error) {
	var p ProofRow
	var constraints, created int64
	err := s.db.QueryRowContext(ctx, `SELECT
		record_id, proof, commitment, vk_hash, scheme, curve, constraint_count, generation_ms, created_at
		FROM proofs WHERE record_id = ?`, recordID).Scan(
		&p.RecordID, &p.ProofBytes, &p.Commitment, &p.VKHash, &p.Scheme, &p.Curve,
		&constraints, &p.GenerationMs, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proof: %w", err)
	}
	p.ConstraintCount = fromInt64(constraints)
	p.CreatedAt = time.Unix(0, created).UTC()
	p.SizeBytes = len(p.ProofBytes)
	return &p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SQLite integers are signed; uint64 values are stored bit for bit
func toInt64(v uint64) int64 { return int64(v) }

func fromInt64(v int64) uint64 { return uint64(v) }

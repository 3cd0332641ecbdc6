package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// DB represents the database interface
type DB interface {
	Close() error
	Migrate(ctx context.Context) error
	SaveRecord(ctx context.Context, rec *Record) error
	UpdateRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	ListRecords(ctx context.Context, query RecordsQuery) (*RecordsList, error)
	SaveProof(ctx context.Context, proof *ProofRow) error
	GetProof(ctx context.Context, recordID string) (*ProofRow, error)
}

// Status is the lifecycle state of a verification record
type Status string

const (
	StatusExecuted Status = "executed"
	StatusPending  Status = "pending"
	StatusProving  Status = "proving"
	StatusProved   Status = "proved"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transitions will happen
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusProved || s == StatusFailed
}

// RecordsQuery represents query parameters for listing records
type RecordsQuery struct {
	PlayerNameHash string `json:"player_name_hash,omitempty"`
	Status         Status `json:"status,omitempty"`
	Page           int    `json:"page"`
	PerPage        int    `json:"per_page"`
}

// RecordsList represents a paginated records response
type RecordsList struct {
	Records    []Record `json:"records"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
}

// Record is the public trace of one verification. Only the player name
// digest is kept.
type Record struct {
	ID             string    `json:"id"`
	PlayerNameHash string    `json:"player_name_hash"`
	Score          uint32    `json:"score"`
	Timestamp      uint64    `json:"timestamp"`
	ReferenceTime  uint64    `json:"reference_time"`
	GameHash       string    `json:"game_hash"`
	GameHashLength int       `json:"game_hash_length"`
	TimestampValid bool      `json:"timestamp_valid"`
	ScoreValid     bool      `json:"score_valid"`
	HashValid      bool      `json:"hash_valid"`
	Verified       bool      `json:"verified"`
	Attestation    string    `json:"attestation"`
	Status         Status    `json:"status"`
	Error          string    `json:"error,omitempty"`
	Attempts       int       `json:"attempts"`
	EngineVersion  string    `json:"engine_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProofRow is the stored proof for a record
type ProofRow struct {
	RecordID        string    `json:"record_id"`
	ProofBytes      []byte    `json:"-"`
	Commitment      string    `json:"commitment"`
	VKHash          string    `json:"vk_hash"`
	Scheme          string    `json:"scheme"`
	Curve           string    `json:"curve,omitempty"`
	ConstraintCount uint64    `json:"constraint_count"`
	GenerationMs    int64     `json:"generation_ms"`
	SizeBytes       int       `json:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

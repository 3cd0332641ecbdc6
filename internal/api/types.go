package api

import (
	"github.com/MJE43/score-attest/internal/batch"
	"github.com/MJE43/score-attest/internal/input"
	"github.com/MJE43/score-attest/internal/score"
	"github.com/MJE43/score-attest/internal/store"
)

// Error types carried in EngineError.Type
const (
	ErrTypeValidation        = "validation_error"
	ErrTypeMalformedInput    = "malformed_input"
	ErrTypeNotFound          = "not_found"
	ErrTypeProofGeneration   = "proof_generation_failed"
	ErrTypeProofVerification = "proof_verification_failed"
	ErrTypeUnauthorized      = "unauthorized"
	ErrTypeUnavailable       = "service_unavailable"
	ErrTypeInternal          = "internal_error"
	ErrTypeTimeout           = "timeout"
)

// EngineError is the body of every error response
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

func (e EngineError) Error() string {
	return e.Message
}

// ErrorCategory groups error types for the X-Error-Category header
type ErrorCategory string

const (
	CategoryClient    ErrorCategory = "client"
	CategoryProver    ErrorCategory = "prover"
	CategoryServer    ErrorCategory = "server"
	CategoryTransient ErrorCategory = "transient"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeMalformedInput, ErrTypeNotFound, ErrTypeUnauthorized:
		return CategoryClient
	case ErrTypeProofGeneration, ErrTypeProofVerification:
		return CategoryProver
	case ErrTypeTimeout, ErrTypeUnavailable:
		return CategoryTransient
	default:
		return CategoryServer
	}
}

// VersionInfo is returned by /version and embedded in /health
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit"`
	BuildTime     string `json:"build_time"`
	ProofScheme   string `json:"proof_scheme,omitempty"`
}

// PublicValues is the JSON form of score.GameScorePublicValues with the
// digests hex encoded
type PublicValues struct {
	Timestamp      uint64 `json:"timestamp"`
	PlayerNameHash string `json:"player_name_hash"`
	Score          uint32 `json:"score"`
	GameHash       string `json:"game_hash"`
	Verified       uint32 `json:"verified"`
}

func newPublicValues(v score.GameScorePublicValues) *PublicValues {
	return &PublicValues{
		Timestamp:      v.Timestamp,
		PlayerNameHash: score.HexDigest(v.PlayerNameHash),
		Score:          v.Score,
		GameHash:       score.HexDigest(v.GameHash),
		Verified:       v.Verified,
	}
}

// VerifyResponse is the result of POST /verify
type VerifyResponse struct {
	ID              string                    `json:"id"`
	Outcome         score.VerificationOutcome `json:"outcome"`
	PublicValues    *PublicValues             `json:"public_values"`
	Attestation     string                    `json:"attestation"`
	ConstraintCount uint64                    `json:"constraint_count,omitempty"`
	EngineVersion   string                    `json:"engine_version"`
	RequestID       string                    `json:"request_id,omitempty"`
}

// BatchRequest is the body of POST /verify/batch
type BatchRequest struct {
	Submissions []input.Request `json:"submissions"`
}

// BatchItem reports one submission of a batch. Error is set for entries
// that could not be parsed.
type BatchItem struct {
	Index        int                        `json:"index"`
	Outcome      *score.VerificationOutcome `json:"outcome,omitempty"`
	PublicValues *PublicValues              `json:"public_values,omitempty"`
	Attestation  string                     `json:"attestation,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

// BatchResponse is the result of POST /verify/batch
type BatchResponse struct {
	Items     []BatchItem   `json:"items"`
	Summary   batch.Summary `json:"summary"`
	Malformed int           `json:"malformed"`
	RequestID string        `json:"request_id,omitempty"`
}

// SubmitResponse acknowledges a queued proof job
type SubmitResponse struct {
	VerificationID string       `json:"verification_id"`
	Status         store.Status `json:"status"`
	EventsURL      string       `json:"events_url"`
	RequestID      string       `json:"request_id,omitempty"`
}

// ProofResponse is the result of GET /proofs/{id}
type ProofResponse struct {
	Record   *store.Record   `json:"record"`
	Proof    *store.ProofRow `json:"proof,omitempty"`
	Values   *PublicValues   `json:"public_values,omitempty"`
	FileName string          `json:"file_name,omitempty"`
}

// CheckResponse is the result of POST /proofs/{id}/check
type CheckResponse struct {
	VerificationID string `json:"verification_id"`
	Valid          bool   `json:"valid"`
	Verified       bool   `json:"verified"`
	Scheme         string `json:"scheme"`
	RequestID      string `json:"request_id,omitempty"`
}

// connectedEvent is sent first on every event stream
type connectedEvent struct {
	Connected      bool   `json:"connected"`
	VerificationID string `json:"verification_id"`
	Message        string `json:"message"`
}

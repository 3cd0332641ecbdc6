// Package prover hides the proving system behind a small capability
// interface. The score package never imports it.
package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/MJE43/score-attest/internal/score"
)

const (
	SchemeGroth16   = "groth16"
	SchemeSimulated = "simulated"
	CurveBN254      = "bn254"
)

// Engine runs the score program and produces proofs of its output
type Engine interface {
	// Execute runs the program without generating a proof
	Execute(ctx context.Context, sub score.ScoreSubmission) (*Execution, error)
	// Prove runs the program and proves the resulting attestation
	Prove(ctx context.Context, sub score.ScoreSubmission) (*Proof, error)
	// Verify checks a proof against this engine's verifying key
	Verify(ctx context.Context, proof *Proof) error
	// ExportVerifyingKey writes the verifying key to w and returns its hash
	ExportVerifyingKey(ctx context.Context, w io.Writer) ([]byte, error)
	Scheme() string
}

// Execution is the result of an unproven run
type Execution struct {
	Result score.Result `json:"result"`
	// ConstraintCount is the size of the checked program, the analogue of
	// an instruction count
	ConstraintCount uint64        `json:"constraint_count"`
	Duration        time.Duration `json:"duration"`
}

// Proof binds an attestation to a proof of the program that produced it
type Proof struct {
	Attestation     []byte        `json:"attestation"`
	ReferenceTime   uint64        `json:"reference_time"`
	Commitment      []byte        `json:"commitment"`
	ProofBytes      []byte        `json:"proof"`
	VKHash          []byte        `json:"vk_hash"`
	Scheme          string        `json:"scheme"`
	Curve           string        `json:"curve,omitempty"`
	ConstraintCount uint64        `json:"constraint_count"`
	GeneratedIn     time.Duration `json:"generated_in"`
}

// PublicValues decodes the attested public record
func (p *Proof) PublicValues() (score.GameScorePublicValues, error) {
	return score.Decode(p.Attestation)
}

// WriteProof serializes p as a proof file
func WriteProof(w io.Writer, p *Proof) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("failed to write proof: %w", err)
	}
	return nil
}

// ReadProof parses a proof file written by WriteProof
func ReadProof(r io.Reader) (*Proof, error) {
	var p Proof
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if len(p.Attestation) != score.AttestationSize {
		return nil, fmt.Errorf("%w: attestation is %d bytes", ErrInvalidProof, len(p.Attestation))
	}
	return &p, nil
}

// ProofFileName follows the game_score_proof_<timestamp>.bin convention
func ProofFileName(timestamp uint64) string {
	return fmt.Sprintf("game_score_proof_%d.bin", timestamp)
}

package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/score"
)

// Groth16Engine proves score runs with gnark Groth16 over BN254. The
// circuit is compiled on first use and the trusted setup is run once per
// engine.
type Groth16Engine struct {
	policy score.Policy
	logger *zap.Logger

	compileOnce sync.Once
	ccs         constraint.ConstraintSystem
	compileErr  error

	setupOnce sync.Once
	pk        groth16.ProvingKey
	vk        groth16.VerifyingKey
	vkHash    []byte
	setupErr  error
}

// NewGroth16Engine creates an engine for the given policy. gnark's own
// logger is silenced; progress is reported through logger instead.
func NewGroth16Engine(policy score.Policy, logger *zap.Logger) *Groth16Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	return &Groth16Engine{policy: policy, logger: logger.Named("groth16")}
}

func (e *Groth16Engine) Scheme() string { return SchemeGroth16 }

func (e *Groth16Engine) compile() (constraint.ConstraintSystem, error) {
	e.compileOnce.Do(func() {
		start := time.Now()
		ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, NewScoreCircuit(e.policy))
		if err != nil {
			e.compileErr = fmt.Errorf("%w: %v", ErrCircuitCompilationFailed, err)
			return
		}
		e.ccs = ccs
		e.logger.Info("circuit compiled",
			zap.Int("constraints", ccs.GetNbConstraints()),
			zap.Duration("took", time.Since(start)))
	})
	return e.ccs, e.compileErr
}

// Setup compiles the circuit and runs the trusted setup if not done yet
func (e *Groth16Engine) Setup() error {
	ccs, err := e.compile()
	if err != nil {
		return err
	}
	e.setupOnce.Do(func() {
		start := time.Now()
		pk, vk, err := groth16.Setup(ccs)
		if err != nil {
			e.setupErr = fmt.Errorf("%w: %v", ErrSetupFailed, err)
			return
		}
		hash, err := hashVerifyingKey(vk)
		if err != nil {
			e.setupErr = fmt.Errorf("%w: %v", ErrSetupFailed, err)
			return
		}
		e.pk, e.vk, e.vkHash = pk, vk, hash
		e.logger.Info("trusted setup complete",
			zap.String("vk_hash", fmt.Sprintf("%x", hash)),
			zap.Duration("took", time.Since(start)))
	})
	return e.setupErr
}

// Execute runs the program and checks the circuit is satisfied by it
func (e *Groth16Engine) Execute(ctx context.Context, sub score.ScoreSubmission) (*Execution, error) {
	start := time.Now()
	ccs, err := e.compile()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := e.policy.Execute(sub)

	w, err := frontend.NewWitness(assignment(sub, res), ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: witness: %v", ErrUnsatisfied, err)
	}
	if err := ccs.IsSolved(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsatisfied, err)
	}

	return &Execution{
		Result:          res,
		ConstraintCount: uint64(ccs.GetNbConstraints()),
		Duration:        time.Since(start),
	}, nil
}

// Prove runs the program and proves its attestation
func (e *Groth16Engine) Prove(ctx context.Context, sub score.ScoreSubmission) (*Proof, error) {
	start := time.Now()
	if err := e.Setup(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := e.policy.Execute(sub)

	w, err := frontend.NewWitness(assignment(sub, res), ecc.BN254.ScalarField())
	if err != nil {
		return nil, wrapGeneration("witness", err)
	}
	if err := e.ccs.IsSolved(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsatisfied, err)
	}

	proof, err := groth16.Prove(e.ccs, e.pk, w)
	if err != nil {
		return nil, wrapGeneration("prove", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, wrapGeneration("serialize", err)
	}

	took := time.Since(start)
	e.logger.Debug("proof generated",
		zap.Int("bytes", buf.Len()),
		zap.Uint32("verified", res.Values.Verified),
		zap.Duration("took", took))

	return &Proof{
		Attestation:     res.Attestation,
		ReferenceTime:   sub.ReferenceTime,
		Commitment:      commitmentBytes(res.Attestation),
		ProofBytes:      buf.Bytes(),
		VKHash:          append([]byte(nil), e.vkHash...),
		Scheme:          SchemeGroth16,
		Curve:           CurveBN254,
		ConstraintCount: uint64(e.ccs.GetNbConstraints()),
		GeneratedIn:     took,
	}, nil
}

// Verify checks p against the engine's own verifying key
func (e *Groth16Engine) Verify(ctx context.Context, p *Proof) error {
	if err := e.Setup(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !bytes.Equal(p.VKHash, e.vkHash) {
		return fmt.Errorf("%w: proof made with %x", ErrVerifyingKeyMismatch, p.VKHash)
	}
	return VerifyWithKey(e.vk, p)
}

// ExportVerifyingKey writes the serialized key to w
func (e *Groth16Engine) ExportVerifyingKey(ctx context.Context, w io.Writer) ([]byte, error) {
	if err := e.Setup(); err != nil {
		return nil, err
	}
	if _, err := e.vk.WriteTo(w); err != nil {
		return nil, fmt.Errorf("failed to write verifying key: %w", err)
	}
	return append([]byte(nil), e.vkHash...), nil
}

// ReadVerifyingKey loads a key written by ExportVerifyingKey
func ReadVerifyingKey(r io.Reader) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read verifying key: %w", err)
	}
	return vk, nil
}

// VerifyWithKey checks p against an explicit key, for offline verification
// of proof files.
func VerifyWithKey(vk groth16.VerifyingKey, p *Proof) error {
	if p.Scheme != SchemeGroth16 {
		return fmt.Errorf("%w: scheme %q", ErrInvalidProof, p.Scheme)
	}
	values, err := score.Decode(p.Attestation)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if want := commitmentBytes(p.Attestation); len(p.Commitment) > 0 && !bytes.Equal(p.Commitment, want) {
		return wrapVerification("commitment", fmt.Errorf("commitment does not match attestation"))
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(p.ProofBytes)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	pub, err := frontend.NewWitness(publicAssignment(values, p.ReferenceTime, p.Attestation),
		ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return wrapVerification("public witness", err)
	}

	if err := groth16.Verify(proof, vk, pub); err != nil {
		return wrapVerification("pairing", err)
	}
	return nil
}

// VerifyingKeyHash is SHA-256 over the serialized key
func VerifyingKeyHash(vk groth16.VerifyingKey) ([]byte, error) {
	return hashVerifyingKey(vk)
}

func hashVerifyingKey(vk groth16.VerifyingKey) ([]byte, error) {
	h := sha256.New()
	if _, err := vk.WriteTo(h); err != nil {
		return nil, fmt.Errorf("failed to serialize verifying key: %w", err)
	}
	return h.Sum(nil), nil
}

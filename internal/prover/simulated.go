package prover

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/MJE43/score-attest/internal/score"
)

// SimulatedEngine stands in for a real prover on hosts where the trusted
// setup is too expensive, such as CI and demos. Its proofs are keyed MACs
// over the attestation and are only meaningful to the same engine.
type SimulatedEngine struct {
	policy score.Policy
	key    []byte
	delay  time.Duration
}

// NewSimulatedEngine creates a simulator. A nil key is replaced by a
// random one. delay is added to every Prove call.
func NewSimulatedEngine(policy score.Policy, key []byte, delay time.Duration) *SimulatedEngine {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("prover: random key: %v", err))
		}
	}
	return &SimulatedEngine{policy: policy, key: key, delay: delay}
}

func (e *SimulatedEngine) Scheme() string { return SchemeSimulated }

func (e *SimulatedEngine) Execute(ctx context.Context, sub score.ScoreSubmission) (*Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	return &Execution{
		Result:   e.policy.Execute(sub),
		Duration: time.Since(start),
	}, nil
}

func (e *SimulatedEngine) Prove(ctx context.Context, sub score.ScoreSubmission) (*Proof, error) {
	start := time.Now()
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, wrapGeneration("simulate", ctx.Err())
		case <-time.After(e.delay):
		}
	}

	res := e.policy.Execute(sub)
	return &Proof{
		Attestation:   res.Attestation,
		ReferenceTime: sub.ReferenceTime,
		Commitment:    commitmentBytes(res.Attestation),
		ProofBytes:    e.mac(res.Attestation, sub.ReferenceTime),
		VKHash:        e.vkHash(),
		Scheme:        SchemeSimulated,
		GeneratedIn:   time.Since(start),
	}, nil
}

func (e *SimulatedEngine) Verify(ctx context.Context, p *Proof) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Scheme != SchemeSimulated {
		return fmt.Errorf("%w: scheme %q", ErrInvalidProof, p.Scheme)
	}
	if !bytes.Equal(p.VKHash, e.vkHash()) {
		return fmt.Errorf("%w: proof made with %x", ErrVerifyingKeyMismatch, p.VKHash)
	}
	if _, err := score.Decode(p.Attestation); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !hmac.Equal(p.ProofBytes, e.mac(p.Attestation, p.ReferenceTime)) {
		return wrapVerification("mac", fmt.Errorf("proof does not match attestation"))
	}
	return nil
}

func (e *SimulatedEngine) ExportVerifyingKey(ctx context.Context, w io.Writer) ([]byte, error) {
	if _, err := w.Write(e.key); err != nil {
		return nil, fmt.Errorf("failed to write verifying key: %w", err)
	}
	return e.vkHash(), nil
}

func (e *SimulatedEngine) mac(attestation []byte, referenceTime uint64) []byte {
	m := hmac.New(sha256.New, e.key)
	m.Write(attestation)
	var ref [8]byte
	binary.BigEndian.PutUint64(ref[:], referenceTime)
	m.Write(ref[:])
	return m.Sum(nil)
}

func (e *SimulatedEngine) vkHash() []byte {
	h := sha256.Sum256(e.key)
	return h[:]
}

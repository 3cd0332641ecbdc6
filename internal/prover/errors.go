package prover

import (
	"errors"
	"fmt"
)

var (
	ErrCircuitCompilationFailed = errors.New("circuit compilation failed")
	ErrSetupFailed              = errors.New("trusted setup failed")
	ErrProofGenerationFailed    = errors.New("proof generation failed")
	ErrProofVerificationFailed  = errors.New("proof verification failed")
	ErrInvalidProof             = errors.New("invalid proof")
	ErrVerifyingKeyMismatch     = errors.New("verifying key mismatch")
	// ErrUnsatisfied means the program and the circuit disagree about the
	// outcome. Retrying cannot help.
	ErrUnsatisfied = errors.New("circuit not satisfied")
)

func wrapGeneration(stage string, err error) error {
	return fmt.Errorf("%w: stage=%s, cause=%v", ErrProofGenerationFailed, stage, err)
}

func wrapVerification(stage string, err error) error {
	return fmt.Errorf("%w: stage=%s, cause=%v", ErrProofVerificationFailed, stage, err)
}

// IsRetryable reports whether a failed Prove call may succeed when repeated
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsatisfied) || errors.Is(err, ErrProofVerificationFailed) ||
		errors.Is(err, ErrInvalidProof) || errors.Is(err, ErrVerifyingKeyMismatch) {
		return false
	}
	return errors.Is(err, ErrProofGenerationFailed) || errors.Is(err, ErrSetupFailed)
}

package prover

import (
	"crypto/sha256"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/MJE43/score-attest/internal/score"
)

// ScoreCircuit re-derives the verification flag from the public fields.
// A proof exists only when the public Verified matches the honest result.
//
// Commitment carries SHA-256 of the attestation reduced into the scalar
// field, so a proof cannot be replayed against a different blob.
//
// The player digest and game hash are bound only through Commitment. The
// circuit does not prove knowledge of a name hashing to the digest; the
// prover is trusted to have computed it with score.HashPlayerName.
type ScoreCircuit struct {
	Timestamp     frontend.Variable `gnark:",public"`
	ReferenceTime frontend.Variable `gnark:",public"`
	Score         frontend.Variable `gnark:",public"`
	Verified      frontend.Variable `gnark:",public"`
	Commitment    frontend.Variable `gnark:",public"`

	HashLength frontend.Variable

	// policy bounds are compiled in as constants
	MaxScore       uint32 `gnark:"-"`
	MaxSkewSeconds uint64 `gnark:"-"`
}

// NewScoreCircuit returns an empty circuit for the given policy
func NewScoreCircuit(p score.Policy) *ScoreCircuit {
	return &ScoreCircuit{MaxScore: p.MaxScore, MaxSkewSeconds: p.MaxSkewSeconds}
}

// Define implements frontend.Circuit
func (c *ScoreCircuit) Define(api frontend.API) error {
	api.AssertIsBoolean(c.Verified)
	api.ToBinary(c.Timestamp, 64)
	api.ToBinary(c.ReferenceTime, 64)
	api.ToBinary(c.Score, 32)
	api.ToBinary(c.HashLength, 32)

	// Cmp yields 1 when a > b
	greater := func(a, b frontend.Variable) frontend.Variable {
		return api.IsZero(api.Sub(api.Cmp(a, b), 1))
	}

	refLater := greater(c.ReferenceTime, c.Timestamp)
	diff := api.Select(refLater,
		api.Sub(c.ReferenceTime, c.Timestamp),
		api.Sub(c.Timestamp, c.ReferenceTime),
	)

	timestampValid := api.Sub(1, greater(diff, c.MaxSkewSeconds))
	scoreValid := api.Sub(1, greater(c.Score, c.MaxScore))
	hashValid := api.IsZero(api.Sub(c.HashLength, score.GameHashLength))

	verified := api.And(api.And(timestampValid, scoreValid), hashValid)
	api.AssertIsEqual(c.Verified, verified)

	// the commitment must appear in a constraint to be bound by the proof
	sq := api.Mul(c.Commitment, c.Commitment)
	api.AssertIsEqual(sq, api.Mul(c.Commitment, c.Commitment))

	return nil
}

// Commitment hashes an attestation into the BN254 scalar field
func Commitment(attestation []byte) *big.Int {
	digest := sha256.Sum256(attestation)
	var e fr.Element
	e.SetBytes(digest[:])
	return e.BigInt(new(big.Int))
}

// commitmentBytes is the canonical 32-byte form of Commitment
func commitmentBytes(attestation []byte) []byte {
	out := make([]byte, 32)
	Commitment(attestation).FillBytes(out)
	return out
}

// assignment fills the circuit from a submission and its program result
func assignment(sub score.ScoreSubmission, res score.Result) *ScoreCircuit {
	return &ScoreCircuit{
		Timestamp:     sub.Timestamp,
		ReferenceTime: sub.ReferenceTime,
		Score:         sub.Score,
		Verified:      res.Values.Verified,
		Commitment:    Commitment(res.Attestation),
		HashLength:    len(sub.GameHash),
	}
}

// publicAssignment rebuilds the public part from a stored proof. Private
// fields are zero and ignored by the public witness.
func publicAssignment(values score.GameScorePublicValues, referenceTime uint64, attestation []byte) *ScoreCircuit {
	return &ScoreCircuit{
		Timestamp:     values.Timestamp,
		ReferenceTime: referenceTime,
		Score:         values.Score,
		Verified:      values.Verified,
		Commitment:    Commitment(attestation),
		HashLength:    0,
	}
}

package score

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// AttestationSize is five static ABI words
const AttestationSize = 5 * 32

var (
	ErrMalformedAttestation = errors.New("malformed attestation")
	ErrInvalidVerifiedFlag  = errors.New("verified flag must be 0 or 1")
)

// attestationArgs mirrors the Solidity tuple
// (uint64 timestamp, bytes32 playerNameHash, uint32 score, bytes32 gameHash, uint32 verified).
var attestationArgs = abi.Arguments{
	{Name: "timestamp", Type: mustType("uint64")},
	{Name: "playerNameHash", Type: mustType("bytes32")},
	{Name: "score", Type: mustType("uint32")},
	{Name: "gameHash", Type: mustType("bytes32")},
	{Name: "verified", Type: mustType("uint32")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("score: abi type %s: %v", t, err))
	}
	return typ
}

// Encode produces the canonical 160-byte ABI encoding of v. The same
// input always produces the same bytes.
func Encode(v GameScorePublicValues) []byte {
	out, err := attestationArgs.Pack(v.Timestamp, v.PlayerNameHash, v.Score, v.GameHash, v.Verified)
	if err != nil {
		// all argument types are fixed above, Pack cannot reject them
		panic(fmt.Sprintf("score: pack attestation: %v", err))
	}
	return out
}

// Decode is the inverse of Encode
func Decode(blob []byte) (GameScorePublicValues, error) {
	var v GameScorePublicValues
	if len(blob) != AttestationSize {
		return v, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedAttestation, len(blob), AttestationSize)
	}

	fields, err := attestationArgs.Unpack(blob)
	if err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedAttestation, err)
	}
	if len(fields) != len(attestationArgs) {
		return v, fmt.Errorf("%w: decoded %d fields", ErrMalformedAttestation, len(fields))
	}

	var ok bool
	if v.Timestamp, ok = fields[0].(uint64); !ok {
		return v, fmt.Errorf("%w: timestamp has type %T", ErrMalformedAttestation, fields[0])
	}
	if v.PlayerNameHash, ok = fields[1].([32]byte); !ok {
		return v, fmt.Errorf("%w: player name hash has type %T", ErrMalformedAttestation, fields[1])
	}
	if v.Score, ok = fields[2].(uint32); !ok {
		return v, fmt.Errorf("%w: score has type %T", ErrMalformedAttestation, fields[2])
	}
	if v.GameHash, ok = fields[3].([32]byte); !ok {
		return v, fmt.Errorf("%w: game hash has type %T", ErrMalformedAttestation, fields[3])
	}
	if v.Verified, ok = fields[4].(uint32); !ok {
		return v, fmt.Errorf("%w: verified has type %T", ErrMalformedAttestation, fields[4])
	}
	if v.Verified > 1 {
		return v, fmt.Errorf("%w: got %d", ErrInvalidVerifiedFlag, v.Verified)
	}

	return v, nil
}

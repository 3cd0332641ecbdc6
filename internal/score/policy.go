package score

const (
	// MaxScore is the highest accepted score, inclusive
	MaxScore uint32 = 10000
	// MaxSkewSeconds is the largest accepted distance between the claimed
	// timestamp and the reference time, inclusive
	MaxSkewSeconds uint64 = 3600
	// GameHashLength is the only accepted raw game hash length
	GameHashLength = 32
)

// Policy carries the validation bounds
type Policy struct {
	MaxScore       uint32 `json:"max_score" yaml:"max_score"`
	MaxSkewSeconds uint64 `json:"max_skew_seconds" yaml:"max_skew_seconds"`
}

// DefaultPolicy returns the production bounds
func DefaultPolicy() Policy {
	return Policy{
		MaxScore:       MaxScore,
		MaxSkewSeconds: MaxSkewSeconds,
	}
}

// Validate runs the three checks against sub. It never fails; a bad
// submission yields an outcome with Verified set to false.
func (p Policy) Validate(sub ScoreSubmission) VerificationOutcome {
	out := VerificationOutcome{
		TimestampValid: p.TimestampValid(sub.Timestamp, sub.ReferenceTime),
		ScoreValid:     p.ScoreValid(sub.Score),
		HashValid:      HashValid(sub.GameHash),
	}
	out.Verified = out.TimestampValid && out.ScoreValid && out.HashValid
	return out
}

// TimestampValid reports whether ts lies within MaxSkewSeconds of ref in
// either direction.
func (p Policy) TimestampValid(ts, ref uint64) bool {
	return skew(ts, ref) <= p.MaxSkewSeconds
}

// ScoreValid reports whether s is within the score bound
func (p Policy) ScoreValid(s uint32) bool {
	return s <= p.MaxScore
}

// HashValid checks the raw length before any normalization
func HashValid(raw []byte) bool {
	return len(raw) == GameHashLength
}

// skew subtracts the smaller value from the larger so it cannot wrap
func skew(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

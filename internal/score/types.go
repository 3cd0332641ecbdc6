package score

// ScoreSubmission is a single claimed game result. PlayerName is private
// input and never leaves this package unhashed.
type ScoreSubmission struct {
	Timestamp     uint64 `json:"timestamp"`
	PlayerName    []byte `json:"-"`
	Score         uint32 `json:"score"`
	GameHash      []byte `json:"game_hash"`
	ReferenceTime uint64 `json:"reference_time"`
}

// VerificationOutcome holds the individual check results
type VerificationOutcome struct {
	TimestampValid bool `json:"timestamp_valid"`
	ScoreValid     bool `json:"score_valid"`
	HashValid      bool `json:"hash_valid"`
	Verified       bool `json:"verified"`
}

// GameScorePublicValues is the public record committed by a run.
// Verified is 1 when every check passed and 0 otherwise.
type GameScorePublicValues struct {
	Timestamp      uint64   `json:"timestamp"`
	PlayerNameHash [32]byte `json:"player_name_hash"`
	Score          uint32   `json:"score"`
	GameHash       [32]byte `json:"game_hash"`
	Verified       uint32   `json:"verified"`
}

// IsVerified reports whether the record attests a valid score
func (v GameScorePublicValues) IsVerified() bool {
	return v.Verified == 1
}

// Result is everything a single program run produces
type Result struct {
	Outcome     VerificationOutcome   `json:"outcome"`
	Values      GameScorePublicValues `json:"public_values"`
	Attestation []byte                `json:"attestation"`
}

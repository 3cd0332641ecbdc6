package score

// Execute runs the full program for one submission: validation, privacy
// hashing, hash normalization and attestation encoding. It reads no clock;
// the reference time comes from the submission.
func (p Policy) Execute(sub ScoreSubmission) Result {
	outcome := p.Validate(sub)

	values := GameScorePublicValues{
		Timestamp:      sub.Timestamp,
		PlayerNameHash: HashPlayerName(sub.PlayerName),
		Score:          sub.Score,
		GameHash:       NormalizeHash(sub.GameHash),
	}
	if outcome.Verified {
		values.Verified = 1
	}

	return Result{
		Outcome:     outcome,
		Values:      values,
		Attestation: Encode(values),
	}
}

// Execute runs the program under DefaultPolicy
func Execute(sub ScoreSubmission) Result {
	return DefaultPolicy().Execute(sub)
}

// Package input turns caller-facing requests into score submissions. All
// text decoding and clock handling happens here so the score package stays
// pure.
package input

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MJE43/score-attest/internal/score"
)

// ErrMalformedInput is returned for requests that cannot be turned into a
// submission at all. A well-formed request with bad values is not an error;
// the validator reports it through its outcome.
var ErrMalformedInput = errors.New("malformed input")

// Request is the textual form accepted by the CLI and HTTP api
type Request struct {
	PlayerName string `json:"player_name"`
	Score      uint32 `json:"score"`
	// Timestamp of zero means "now"
	Timestamp uint64 `json:"timestamp"`
	GameHash  string `json:"game_hash"`
}

// ParseGameHash decodes a hex game hash. A leading 0x is accepted. The
// decoded length is not checked here.
func ParseGameHash(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: game hash: %v", ErrMalformedInput, err)
	}
	return b, nil
}

// Submission builds a submission with now as the trusted reference time
func (r Request) Submission(now time.Time) (score.ScoreSubmission, error) {
	if r.PlayerName == "" {
		return score.ScoreSubmission{}, fmt.Errorf("%w: player name is required", ErrMalformedInput)
	}

	gameHash, err := ParseGameHash(r.GameHash)
	if err != nil {
		return score.ScoreSubmission{}, err
	}

	ref := unixSeconds(now)
	ts := r.Timestamp
	if ts == 0 {
		ts = ref
	}

	return score.ScoreSubmission{
		Timestamp:     ts,
		PlayerName:    []byte(r.PlayerName),
		Score:         r.Score,
		GameHash:      gameHash,
		ReferenceTime: ref,
	}, nil
}

func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/input"
	"github.com/MJE43/score-attest/internal/logging"
	"github.com/MJE43/score-attest/internal/prover"
	"github.com/MJE43/score-attest/internal/score"
)

func addSubmissionFlags(cmd *cobra.Command, req *input.Request) {
	cmd.Flags().StringVar(&req.PlayerName, "player", "", "player name (hashed before use)")
	cmd.Flags().Uint32Var(&req.Score, "score", 0, "claimed score")
	cmd.Flags().Uint64Var(&req.Timestamp, "timestamp", 0, "unix seconds of the game, 0 means now")
	cmd.Flags().StringVar(&req.GameHash, "game-hash", "", "hex game state hash")
	_ = cmd.MarkFlagRequired("player")
	_ = cmd.MarkFlagRequired("game-hash")
}

func newExecuteCmd(a *app) *cobra.Command {
	var req input.Request
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Run the score program without proving",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := req.Submission(time.Now())
			if err != nil {
				return err
			}
			engine, err := a.newEngine()
			if err != nil {
				return err
			}

			exec, err := engine.Execute(cmd.Context(), sub)
			if err != nil {
				return err
			}
			a.logger.Info("score executed",
				logging.PlayerField(exec.Result.Values.PlayerNameHash),
				zap.Bool("verified", exec.Result.Outcome.Verified),
				zap.Duration("took", exec.Duration))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Program executed successfully.")
			printReport(out, exec.Result)
			fmt.Fprintf(out, "Constraints: %d\n", exec.ConstraintCount)
			fmt.Fprintln(out, "==========================================")
			if !exec.Result.Outcome.Verified {
				return errNotVerified
			}
			return nil
		},
	}
	addSubmissionFlags(cmd, &req)
	return cmd
}

func newProveCmd(a *app) *cobra.Command {
	var (
		req input.Request
		out string
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Prove a score, verify the proof and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := req.Submission(time.Now())
			if err != nil {
				return err
			}
			engine, err := a.newEngine()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "=== GAME SCORE VERIFICATION ===")
			fmt.Fprintln(w, "Generating proof...")
			p, err := engine.Prove(cmd.Context(), sub)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Proof generated in %s.\n", p.GeneratedIn.Round(time.Millisecond))

			if err := engine.Verify(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintln(w, "Proof verified successfully!")

			if out == "" {
				out = prover.ProofFileName(sub.Timestamp)
			}
			if err := saveProof(out, p); err != nil {
				return err
			}

			values, err := p.PublicValues()
			if err != nil {
				return err
			}
			// the individual checks are not attested, rerun them locally
			printReport(w, a.cfg.Policy.Execute(sub))
			fmt.Fprintln(w, "==========================================")
			fmt.Fprintf(w, "Proof saved to: %s\n", out)
			fmt.Fprintf(w, "VERIFICATION_SUCCESS=%t\n", values.IsVerified())

			a.logger.Info("proof saved",
				zap.String("path", out),
				zap.String("scheme", p.Scheme),
				logging.PlayerField(values.PlayerNameHash),
				zap.Bool("verified", values.IsVerified()))
			return nil
		},
	}
	addSubmissionFlags(cmd, &req)
	cmd.Flags().StringVar(&out, "out", "", "proof file, default game_score_proof_<timestamp>.bin")
	return cmd
}

func saveProof(path string, p *prover.Proof) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create proof directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create proof file: %w", err)
	}
	if err := prover.WriteProof(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printReport(w io.Writer, res score.Result) {
	status := "FAILED"
	if res.Outcome.Verified {
		status = "SUCCESS"
	}
	fmt.Fprintln(w, "===== GAME SCORE VERIFICATION REPORT =====")
	fmt.Fprintf(w, "Timestamp: %d\n", res.Values.Timestamp)
	fmt.Fprintf(w, "Timestamp Valid: %t\n", res.Outcome.TimestampValid)
	fmt.Fprintf(w, "Player: [HASHED] %s\n", score.HexDigest(res.Values.PlayerNameHash))
	fmt.Fprintf(w, "Score: %d\n", res.Values.Score)
	fmt.Fprintf(w, "Score Valid: %t\n", res.Outcome.ScoreValid)
	fmt.Fprintf(w, "Hash Valid: %t\n", res.Outcome.HashValid)
	fmt.Fprintf(w, "Game Hash: %s\n", score.HexDigest(res.Values.GameHash))
	fmt.Fprintf(w, "Verification Status: %s\n", status)
}

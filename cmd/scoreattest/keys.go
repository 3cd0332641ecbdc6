package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/prover"
)

func newVKeyCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "vkey",
		Short: "Export the verifying key",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.newEngine()
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create key file: %w", err)
			}
			hash, err := engine.ExportVerifyingKey(cmd.Context(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Verification key saved to: %s\n", out)
			fmt.Fprintf(w, "Scheme: %s\n", engine.Scheme())
			fmt.Fprintf(w, "VK hash: %s\n", hex.EncodeToString(hash))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "score_vkey.bin", "key file")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var proofPath, vkeyPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify a saved proof file against a verifying key",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readProofFile(proofPath)
			if err != nil {
				return err
			}
			key, err := os.Open(vkeyPath)
			if err != nil {
				return fmt.Errorf("failed to open key file: %w", err)
			}
			defer key.Close()

			switch p.Scheme {
			case prover.SchemeGroth16:
				vk, err := prover.ReadVerifyingKey(key)
				if err != nil {
					return err
				}
				err = prover.VerifyWithKey(vk, p)
				if err != nil {
					return err
				}
			case prover.SchemeSimulated:
				secret, err := io.ReadAll(key)
				if err != nil {
					return fmt.Errorf("failed to read key file: %w", err)
				}
				if err := prover.NewSimulatedEngine(a.cfg.Policy, secret, 0).Verify(cmd.Context(), p); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: unknown scheme %q", prover.ErrInvalidProof, p.Scheme)
			}

			values, err := p.PublicValues()
			if err != nil {
				return err
			}
			a.logger.Debug("proof checked", zap.String("path", proofPath), zap.String("scheme", p.Scheme))

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Proof is valid (%s).\n", p.Scheme)
			fmt.Fprintf(w, "Timestamp: %d\n", values.Timestamp)
			fmt.Fprintf(w, "Score: %d\n", values.Score)
			fmt.Fprintf(w, "VERIFICATION_SUCCESS=%t\n", values.IsVerified())
			return nil
		},
	}
	cmd.Flags().StringVar(&proofPath, "proof", "", "proof file")
	cmd.Flags().StringVar(&vkeyPath, "vkey", "score_vkey.bin", "verifying key file")
	_ = cmd.MarkFlagRequired("proof")
	return cmd
}

func readProofFile(path string) (*prover.Proof, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proof file: %w", err)
	}
	defer f.Close()
	return prover.ReadProof(f)
}

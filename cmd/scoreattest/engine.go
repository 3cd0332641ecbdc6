package main

import (
	"fmt"

	"github.com/MJE43/score-attest/internal/prover"
)

// newEngine builds the configured proving engine
func (a *app) newEngine() (prover.Engine, error) {
	switch a.cfg.Prover.Engine {
	case prover.SchemeGroth16:
		return prover.NewGroth16Engine(a.cfg.Policy, a.logger), nil
	case prover.SchemeSimulated:
		a.logger.Warn("using the simulated prover; proofs are not zero-knowledge")
		return prover.NewSimulatedEngine(a.cfg.Policy, []byte(a.cfg.Prover.SimulatedKey), a.cfg.Prover.SimulatedDelay), nil
	default:
		return nil, fmt.Errorf("unknown prover engine %q", a.cfg.Prover.Engine)
	}
}

// Package attest orchestrates score verification: synchronous execution,
// asynchronous proving on a worker pool, persistence and progress events.
package attest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/input"
	"github.com/MJE43/score-attest/internal/logging"
	"github.com/MJE43/score-attest/internal/prover"
	"github.com/MJE43/score-attest/internal/score"
	"github.com/MJE43/score-attest/internal/store"
)

var (
	ErrQueueFull = errors.New("proof queue is full")
	ErrClosed    = errors.New("service is closed")
	ErrNoProof   = errors.New("record has no proof")
	// ErrInterrupted marks jobs that were queued or proving when a previous
	// process stopped
	ErrInterrupted = errors.New("proof interrupted by service restart")
)

// Options configures a Service. Zero values get defaults.
type Options struct {
	Policy         score.Policy
	Engine         prover.Engine
	DB             store.DB
	Hub            *Hub
	Metrics        *Metrics
	Logger         *zap.Logger
	Workers        int
	QueueSize      int
	MaxAttempts    uint64
	InitialBackoff time.Duration
	Timeout        time.Duration
	// Retention is how long progress history is kept after completion
	Retention     time.Duration
	EngineVersion string
	Now           func() time.Time
}

// Verification is the result of a synchronous run
type Verification struct {
	Record          *store.Record `json:"record"`
	Result          score.Result  `json:"result"`
	ConstraintCount uint64        `json:"constraint_count,omitempty"`
}

type job struct {
	recordID string
	sub      score.ScoreSubmission
}

// Service is safe for concurrent use
type Service struct {
	opts   Options
	logger *zap.Logger

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewService starts the proof workers
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.Retention <= 0 {
		opts.Retention = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:   opts,
		logger: opts.Logger.Named("attest"),
		jobs:   make(chan job, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return s
}

// Hub exposes the progress hub for streaming
func (s *Service) Hub() *Hub { return s.opts.Hub }

// Policy returns the active validation policy
func (s *Service) Policy() score.Policy { return s.opts.Policy }

// Engine returns the proving engine
func (s *Service) Engine() prover.Engine { return s.opts.Engine }

// Now returns the service's reference clock
func (s *Service) Now() time.Time { return s.opts.Now() }

// QueueStats reports waiting proof jobs and the queue capacity
func (s *Service) QueueStats() (queued, capacity int) {
	return len(s.jobs), cap(s.jobs)
}

// Verify executes req without proving and stores an executed record
func (s *Service) Verify(ctx context.Context, req input.Request) (*Verification, error) {
	sub, err := req.Submission(s.opts.Now())
	if err != nil {
		return nil, err
	}

	exec, err := s.opts.Engine.Execute(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	rec := newRecord(sub, exec.Result, store.StatusExecuted, s.opts.EngineVersion)
	if err := s.opts.DB.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.opts.Metrics.Verifications.WithLabelValues(outcomeLabel(exec.Result.Outcome.Verified)).Inc()
	s.logger.Info("score executed",
		zap.String("id", rec.ID),
		logging.PlayerField(exec.Result.Values.PlayerNameHash),
		zap.Uint32("score", sub.Score),
		zap.Bool("verified", exec.Result.Outcome.Verified))

	return &Verification{Record: rec, Result: exec.Result, ConstraintCount: exec.ConstraintCount}, nil
}

// Submit stores a pending record and queues it for proving. It returns as
// soon as the job is queued.
func (s *Service) Submit(ctx context.Context, req input.Request) (*store.Record, error) {
	sub, err := req.Submission(s.opts.Now())
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	res := s.opts.Policy.Execute(sub)
	rec := newRecord(sub, res, store.StatusPending, s.opts.EngineVersion)
	if err := s.opts.DB.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.opts.Hub.Publish(Event{
		VerificationID: rec.ID,
		Stage:          StageQueued,
		Progress:       5,
		Message:        "verification queued",
	})

	s.opts.Metrics.QueueDepth.Inc()
	select {
	case s.jobs <- job{recordID: rec.ID, sub: sub}:
	default:
		s.opts.Metrics.QueueDepth.Dec()
		rec.Status = store.StatusFailed
		rec.Error = ErrQueueFull.Error()
		if err := s.opts.DB.UpdateRecord(ctx, rec); err != nil {
			s.logger.Warn("failed to mark rejected job", zap.String("id", rec.ID), zap.Error(err))
		}
		s.publish(rec.ID, Event{Stage: StageFailed, Progress: 100, Message: rec.Error, Completed: true})
		return nil, ErrQueueFull
	}

	s.logger.Info("proof queued", zap.String("id", rec.ID), logging.PlayerField(res.Values.PlayerNameHash))
	return rec, nil
}

// Get returns a record and its proof metadata. The proof is nil until the
// record is proved.
func (s *Service) Get(ctx context.Context, id string) (*store.Record, *store.ProofRow, error) {
	rec, err := s.opts.DB.GetRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	row, err := s.opts.DB.GetProof(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return rec, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, row, nil
}

func (s *Service) List(ctx context.Context, q store.RecordsQuery) (*store.RecordsList, error) {
	return s.opts.DB.ListRecords(ctx, q)
}

// LoadProof rebuilds the engine proof for a stored record
func (s *Service) LoadProof(ctx context.Context, id string) (*prover.Proof, error) {
	rec, row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNoProof
	}
	return proofFromRows(rec, row)
}

// VerifyProof re-checks a stored proof against the current key
func (s *Service) VerifyProof(ctx context.Context, id string) error {
	p, err := s.LoadProof(ctx, id)
	if err != nil {
		return err
	}
	return s.opts.Engine.Verify(ctx, p)
}

// Recover fails records left pending or proving by a previous process and
// completes their progress topics. The player name is not persisted so
// orphaned jobs cannot be re-run. Call it before accepting submissions.
func (s *Service) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for _, status := range []store.Status{store.StatusPending, store.StatusProving} {
		for {
			// each failed record leaves the filter, so page one is re-read
			list, err := s.opts.DB.ListRecords(ctx, store.RecordsQuery{Status: status, Page: 1, PerPage: 100})
			if err != nil {
				return recovered, fmt.Errorf("list %s records: %w", status, err)
			}
			if len(list.Records) == 0 {
				break
			}
			for i := range list.Records {
				rec := &list.Records[i]
				rec.Status = store.StatusFailed
				rec.Error = ErrInterrupted.Error()
				if err := s.opts.DB.UpdateRecord(ctx, rec); err != nil {
					return recovered, fmt.Errorf("fail record %s: %w", rec.ID, err)
				}
				s.opts.Metrics.Proofs.WithLabelValues("interrupted").Inc()
				s.publish(rec.ID, Event{
					Stage:     StageFailed,
					Progress:  100,
					Message:   rec.Error,
					Completed: true,
					Attempt:   rec.Attempts,
				})
				recovered++
			}
		}
	}
	if recovered > 0 {
		s.logger.Warn("failed interrupted proofs", zap.Int("count", recovered))
	}
	return recovered, nil
}

// Close stops accepting work, aborts in-flight proofs and waits for the
// workers to exit.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Service) worker(id int) {
	defer s.wg.Done()
	logger := s.logger.With(zap.Int("worker", id))
	for j := range s.jobs {
		s.opts.Metrics.QueueDepth.Dec()
		s.process(logger, j)
	}
}

func (s *Service) process(logger *zap.Logger, j job) {
	// persistence outlives cancellation so failures are recorded on shutdown
	dbCtx := context.WithoutCancel(s.ctx)
	ctx := s.ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	logger = logger.With(zap.String("id", j.recordID))

	rec, err := s.opts.DB.GetRecord(dbCtx, j.recordID)
	if err != nil {
		logger.Error("queued record vanished", zap.Error(err))
		return
	}

	fail := func(stage string, err error) {
		rec.Status = store.StatusFailed
		rec.Error = err.Error()
		if uerr := s.opts.DB.UpdateRecord(dbCtx, rec); uerr != nil {
			logger.Error("failed to persist failure", zap.Error(uerr))
		}
		s.opts.Metrics.Proofs.WithLabelValues("failed").Inc()
		s.publish(rec.ID, Event{
			Stage:     StageFailed,
			Progress:  100,
			Message:   fmt.Sprintf("%s failed: %v", stage, err),
			Completed: true,
			Attempt:   rec.Attempts,
		})
		logger.Warn("proof failed", zap.String("stage", stage), zap.Error(err))
	}

	rec.Status = store.StatusProving
	if err := s.opts.DB.UpdateRecord(dbCtx, rec); err != nil {
		logger.Error("failed to mark proving", zap.Error(err))
	}
	s.publish(rec.ID, Event{Stage: StageExecuting, Progress: 10, Message: "executing score program"})

	start := time.Now()
	var proof *prover.Proof
	backoff := retry.WithMaxRetries(s.opts.MaxAttempts-1, retry.NewExponential(s.opts.InitialBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec.Attempts++
		s.publish(rec.ID, Event{
			Stage:    StageProving,
			Progress: 30,
			Message:  "generating proof",
			Attempt:  rec.Attempts,
		})
		p, err := s.opts.Engine.Prove(ctx, j.sub)
		if err != nil {
			if prover.IsRetryable(err) && ctx.Err() == nil {
				logger.Info("proof attempt failed, retrying", zap.Int("attempt", rec.Attempts), zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		proof = p
		return nil
	})
	if err != nil {
		fail("prove", err)
		return
	}
	s.opts.Metrics.ProofDuration.Observe(time.Since(start).Seconds())

	s.publish(rec.ID, Event{Stage: StageVerifying, Progress: 85, Message: "verifying proof"})
	if err := s.opts.Engine.Verify(ctx, proof); err != nil {
		fail("verify", err)
		return
	}

	row := &store.ProofRow{
		RecordID:        rec.ID,
		ProofBytes:      proof.ProofBytes,
		Commitment:      hex.EncodeToString(proof.Commitment),
		VKHash:          hex.EncodeToString(proof.VKHash),
		Scheme:          proof.Scheme,
		Curve:           proof.Curve,
		ConstraintCount: proof.ConstraintCount,
		GenerationMs:    proof.GeneratedIn.Milliseconds(),
	}
	if err := s.opts.DB.SaveProof(dbCtx, row); err != nil {
		fail("store", err)
		return
	}

	rec.Status = store.StatusProved
	rec.Error = ""
	rec.Attestation = hex.EncodeToString(proof.Attestation)
	if err := s.opts.DB.UpdateRecord(dbCtx, rec); err != nil {
		fail("store", err)
		return
	}

	s.opts.Metrics.Proofs.WithLabelValues("proved").Inc()
	s.opts.Metrics.Verifications.WithLabelValues(outcomeLabel(rec.Verified)).Inc()
	s.publish(rec.ID, Event{
		Stage:     StageStored,
		Progress:  100,
		Message:   "proof stored as " + prover.ProofFileName(j.sub.Timestamp),
		Completed: true,
		Success:   true,
		Attempt:   rec.Attempts,
	})
	logger.Info("proof stored",
		zap.Bool("verified", rec.Verified),
		zap.Int("attempts", rec.Attempts),
		zap.Int("proof_bytes", len(proof.ProofBytes)),
		zap.Duration("took", time.Since(start)))
}

func (s *Service) publish(id string, ev Event) {
	ev.VerificationID = id
	s.opts.Hub.Publish(ev)
	if ev.Completed {
		time.AfterFunc(s.opts.Retention, func() { s.opts.Hub.Forget(id) })
	}
}

func newRecord(sub score.ScoreSubmission, res score.Result, status store.Status, engineVersion string) *store.Record {
	return &store.Record{
		PlayerNameHash: score.HexDigest(res.Values.PlayerNameHash),
		Score:          sub.Score,
		Timestamp:      sub.Timestamp,
		ReferenceTime:  sub.ReferenceTime,
		GameHash:       score.HexDigest(res.Values.GameHash),
		GameHashLength: len(sub.GameHash),
		TimestampValid: res.Outcome.TimestampValid,
		ScoreValid:     res.Outcome.ScoreValid,
		HashValid:      res.Outcome.HashValid,
		Verified:       res.Outcome.Verified,
		Attestation:    hex.EncodeToString(res.Attestation),
		Status:         status,
		EngineVersion:  engineVersion,
	}
}

func proofFromRows(rec *store.Record, row *store.ProofRow) (*prover.Proof, error) {
	attestation, err := hex.DecodeString(rec.Attestation)
	if err != nil {
		return nil, fmt.Errorf("%w: stored attestation: %v", prover.ErrInvalidProof, err)
	}
	commitment, err := hex.DecodeString(row.Commitment)
	if err != nil {
		return nil, fmt.Errorf("%w: stored commitment: %v", prover.ErrInvalidProof, err)
	}
	vkHash, err := hex.DecodeString(row.VKHash)
	if err != nil {
		return nil, fmt.Errorf("%w: stored vk hash: %v", prover.ErrInvalidProof, err)
	}
	return &prover.Proof{
		Attestation:     attestation,
		ReferenceTime:   rec.ReferenceTime,
		Commitment:      commitment,
		ProofBytes:      row.ProofBytes,
		VKHash:          vkHash,
		Scheme:          row.Scheme,
		Curve:           row.Curve,
		ConstraintCount: row.ConstraintCount,
		GeneratedIn:     time.Duration(row.GenerationMs) * time.Millisecond,
	}, nil
}

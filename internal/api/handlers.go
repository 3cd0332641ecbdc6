package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/batch"
	"github.com/MJE43/score-attest/internal/input"
	"github.com/MJE43/score-attest/internal/prover"
	"github.com/MJE43/score-attest/internal/score"
	"github.com/MJE43/score-attest/internal/store"
)

const (
	maxBodyBytes      = 1 << 20
	maxBatchBodyBytes = 8 << 20
)

// decodeJSON reads a strict JSON body into dst, writing the error response
// itself on failure
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return false
		}
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON: "+err.Error())
		return false
	}
	if dec.More() {
		s.errorHandler.HandleValidationError(w, r, "body", "unexpected data after JSON object")
		return false
	}
	return true
}

// POST /api/v1/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req input.Request
	if !s.decodeJSON(w, r, maxBodyBytes, &req) {
		return
	}

	v, err := s.svc.Verify(r.Context(), req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		ID:              v.Record.ID,
		Outcome:         v.Result.Outcome,
		PublicValues:    newPublicValues(v.Result.Values),
		Attestation:     hex.EncodeToString(v.Result.Attestation),
		ConstraintCount: v.ConstraintCount,
		EngineVersion:   EngineVersion,
		RequestID:       middleware.GetReqID(r.Context()),
	})
}

// POST /api/v1/verify/batch
func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decodeJSON(w, r, maxBatchBodyBytes, &req) {
		return
	}
	if len(req.Submissions) == 0 {
		s.errorHandler.HandleValidationError(w, r, "submissions", "at least one submission is required")
		return
	}
	if len(req.Submissions) > batch.MaxBatchSize {
		s.errorHandler.HandleError(w, r, batch.ErrTooLarge)
		return
	}

	now := s.svc.Now()
	items := make([]BatchItem, len(req.Submissions))
	subs := make([]score.ScoreSubmission, 0, len(req.Submissions))
	positions := make([]int, 0, len(req.Submissions))
	for i, sr := range req.Submissions {
		items[i].Index = i
		sub, err := sr.Submission(now)
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		subs = append(subs, sub)
		positions = append(positions, i)
	}

	results, summary, err := s.batch.Run(r.Context(), s.svc.Policy(), subs)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	for _, it := range results {
		if it.Result == nil {
			continue
		}
		item := &items[positions[it.Index]]
		outcome := it.Result.Outcome
		item.Outcome = &outcome
		item.PublicValues = newPublicValues(it.Result.Values)
		item.Attestation = hex.EncodeToString(it.Result.Attestation)
	}

	s.writeJSON(w, http.StatusOK, BatchResponse{
		Items:     items,
		Summary:   summary,
		Malformed: len(req.Submissions) - len(subs),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// POST /api/v1/proofs
func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req input.Request
	if !s.decodeJSON(w, r, maxBodyBytes, &req) {
		return
	}

	rec, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	base := "/api/v1/proofs/" + rec.ID
	w.Header().Set("Location", base)
	s.writeJSON(w, http.StatusAccepted, SubmitResponse{
		VerificationID: rec.ID,
		Status:         rec.Status,
		EventsURL:      base + "/events",
		RequestID:      middleware.GetReqID(r.Context()),
	})
}

// GET /api/v1/proofs
func (s *Server) handleListProofs(w http.ResponseWriter, r *http.Request) {
	q := store.RecordsQuery{
		PlayerNameHash: r.URL.Query().Get("player_name_hash"),
		Status:         store.Status(r.URL.Query().Get("status")),
	}

	switch q.Status {
	case "", store.StatusExecuted, store.StatusPending, store.StatusProving, store.StatusProved, store.StatusFailed:
	default:
		s.errorHandler.HandleValidationError(w, r, "status", "unknown status "+strconv.Quote(string(q.Status)))
		return
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"per_page", &q.PerPage}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorHandler.HandleValidationError(w, r, p.name, p.name+" must be a positive integer")
			return
		}
		*p.dst = n
	}

	list, err := s.svc.List(r.Context(), q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/proofs/{id}
func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, row, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	resp := ProofResponse{Record: rec, Proof: row}
	if raw, err := hex.DecodeString(rec.Attestation); err == nil {
		if values, err := score.Decode(raw); err == nil {
			resp.Values = newPublicValues(values)
		}
	}
	if row != nil {
		resp.FileName = prover.ProofFileName(rec.Timestamp)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/proofs/{id}/raw returns the proof file
func (s *Server) handleRawProof(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.svc.LoadProof(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	values, err := p.PublicValues()
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := prover.WriteProof(&buf, p); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, prover.ProofFileName(values.Timestamp)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		s.logger.Debug("failed to write proof", zap.String("id", id), zap.Error(err))
	}
}

// POST /api/v1/proofs/{id}/check re-verifies a stored proof. A proof that
// fails verification is reported in the body, not as an error.
func (s *Server) handleCheckProof(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, _, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	resp := CheckResponse{
		VerificationID: id,
		Scheme:         s.svc.Engine().Scheme(),
		RequestID:      middleware.GetReqID(r.Context()),
	}
	err = s.svc.VerifyProof(r.Context(), id)
	switch {
	case err == nil:
		resp.Valid = true
		resp.Verified = rec.Verified
	case errors.Is(err, prover.ErrProofVerificationFailed),
		errors.Is(err, prover.ErrVerifyingKeyMismatch),
		errors.Is(err, prover.ErrInvalidProof):
		s.logger.Warn("stored proof rejected", zap.String("id", id), zap.Error(err))
	default:
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/vkey
func (s *Server) handleVerifyingKey(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	hash, err := s.svc.Engine().ExportVerifyingKey(r.Context(), &buf)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="score_vkey.bin"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-VK-Hash", hex.EncodeToString(hash))
	w.Header().Set("X-Proof-Scheme", s.svc.Engine().Scheme())
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		s.logger.Debug("failed to write verifying key", zap.Error(err))
	}
}

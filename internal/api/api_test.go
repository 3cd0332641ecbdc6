package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MJE43/score-attest/internal/attest"
	"github.com/MJE43/score-attest/internal/batch"
	"github.com/MJE43/score-attest/internal/input"
	"github.com/MJE43/score-attest/internal/prover"
	"github.com/MJE43/score-attest/internal/score"
	"github.com/MJE43/score-attest/internal/store"
)

var testKey = []byte("api-test-key")

type testEnv struct {
	svc     *attest.Service
	server  *Server
	handler http.Handler
}

// envOption adjusts the service and server options before construction
type envOption func(*attest.Options, *Options)

func newTestEnv(t *testing.T, token string, delay time.Duration, opts ...envOption) *testEnv {
	t.Helper()
	db, err := store.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	svcOpts := attest.Options{
		Policy:         score.DefaultPolicy(),
		Engine:         prover.NewSimulatedEngine(score.DefaultPolicy(), testKey, delay),
		DB:             db,
		Metrics:        attest.NewMetrics(reg),
		Workers:        2,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		Timeout:        5 * time.Second,
		EngineVersion:  "test",
	}
	serverOpts := Options{
		Token:          token,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RequestTimeout: 10 * time.Second,
		KeepAlive:      50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&svcOpts, &serverOpts)
	}

	svc := attest.NewService(svcOpts)
	t.Cleanup(svc.Close)

	serverOpts.Service = svc
	server := NewServer(serverOpts)
	return &testEnv{svc: svc, server: server, handler: server.Routes()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) waitDone(t *testing.T, id string) {
	t.Helper()
	ch, cancel := e.svc.Hub().Subscribe(id)
	defer cancel()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("verification %s did not complete", id)
		}
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func goodRequest() input.Request {
	return input.Request{
		PlayerName: "mallory",
		Score:      4200,
		GameHash:   "0x" + strings.Repeat("cd", 32),
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "", 0)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthCheckResponse](t, w)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Equal(t, prover.SchemeSimulated, resp.ProofScheme)
	assert.Contains(t, resp.Checks, "database")
	assert.Contains(t, resp.Checks, "prover")

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", nil).Code)
}

func TestVersionEndpoint(t *testing.T) {
	env := newTestEnv(t, "", 0)

	w := env.do(t, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[VersionInfo](t, w)
	assert.Equal(t, EngineVersion, info.EngineVersion)
	assert.Equal(t, prover.SchemeSimulated, info.ProofScheme)
	assert.Equal(t, EngineVersion, w.Header().Get("X-Engine-Version"))
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t, "", 0)

	w := env.do(t, http.MethodPost, "/api/v1/verify", goodRequest())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[VerifyResponse](t, w)
	assert.NotEmpty(t, resp.ID)
	assert.True(t, resp.Outcome.Verified)
	assert.Equal(t, uint32(1), resp.PublicValues.Verified)
	assert.Equal(t, uint32(4200), resp.PublicValues.Score)
	assert.Equal(t, strings.Repeat("cd", 32), resp.PublicValues.GameHash)
	assert.Equal(t, score.HexDigest(score.HashPlayerName([]byte("mallory"))), resp.PublicValues.PlayerNameHash)
	assert.Len(t, resp.Attestation, score.AttestationSize*2)
	assert.NotContains(t, w.Body.String(), "mallory")
}

func TestVerifyRejectedScoreIsNotAnError(t *testing.T) {
	env := newTestEnv(t, "", 0)

	req := goodRequest()
	req.Score = score.MaxScore + 1
	w := env.do(t, http.MethodPost, "/api/v1/verify", req)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[VerifyResponse](t, w)
	assert.False(t, resp.Outcome.ScoreValid)
	assert.False(t, resp.Outcome.Verified)
	assert.True(t, resp.Outcome.TimestampValid)
	assert.Equal(t, uint32(0), resp.PublicValues.Verified)
}

func TestVerifyErrors(t *testing.T) {
	env := newTestEnv(t, "", 0)

	tests := []struct {
		name    string
		body    interface{}
		errType string
	}{
		{"invalid json", "{", ErrTypeValidation},
		{"unknown field", `{"player_name":"a","game_hash":"00","extra":1}`, ErrTypeValidation},
		{"trailing data", `{"player_name":"a","game_hash":"00"} {}`, ErrTypeValidation},
		{"bad hex", input.Request{PlayerName: "a", GameHash: "zz"}, ErrTypeMalformedInput},
		{"missing name", input.Request{GameHash: "00"}, ErrTypeMalformedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/verify", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.errType, w.Header().Get("X-Error-Type"))
			assert.Equal(t, string(CategoryClient), w.Header().Get("X-Error-Category"))

			resp := decode[EngineError](t, w)
			assert.Equal(t, tt.errType, resp.Type)
			assert.NotEmpty(t, resp.RequestID)
			assert.NotEmpty(t, resp.Timestamp)
		})
	}
}

func TestVerifyBatchEndpoint(t *testing.T) {
	env := newTestEnv(t, "", 0)

	tooHigh := goodRequest()
	tooHigh.Score = 50_000
	shortHash := goodRequest()
	shortHash.GameHash = "abcd"

	w := env.do(t, http.MethodPost, "/api/v1/verify/batch", BatchRequest{Submissions: []input.Request{
		goodRequest(),
		{PlayerName: "x", GameHash: "not-hex"},
		tooHigh,
		shortHash,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[BatchResponse](t, w)
	require.Len(t, resp.Items, 4)
	assert.Equal(t, 1, resp.Malformed)
	assert.Equal(t, 3, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Verified)
	assert.Equal(t, 2, resp.Summary.Rejected)

	assert.True(t, resp.Items[0].Outcome.Verified)
	assert.NotEmpty(t, resp.Items[1].Error)
	assert.Nil(t, resp.Items[1].Outcome)
	assert.False(t, resp.Items[2].Outcome.ScoreValid)
	assert.False(t, resp.Items[3].Outcome.HashValid)
	for i, item := range resp.Items {
		assert.Equal(t, i, item.Index)
	}
}

func TestVerifyBatchUsesServiceClock(t *testing.T) {
	pinned := time.Unix(1_000_000_000, 0)
	env := newTestEnv(t, "", 0, func(o *attest.Options, _ *Options) {
		o.Now = func() time.Time { return pinned }
	})

	atPinned := goodRequest()
	atPinned.Timestamp = uint64(pinned.Unix())
	resolved := goodRequest()

	w := env.do(t, http.MethodPost, "/api/v1/verify/batch", BatchRequest{Submissions: []input.Request{atPinned, resolved}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[BatchResponse](t, w)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 2, resp.Summary.Verified)
	assert.True(t, resp.Items[0].Outcome.TimestampValid)
	assert.Equal(t, uint64(pinned.Unix()), resp.Items[1].PublicValues.Timestamp)

	w = env.do(t, http.MethodPost, "/api/v1/verify", atPinned)
	require.Equal(t, http.StatusOK, w.Code)
	single := decode[VerifyResponse](t, w)
	assert.Equal(t, *resp.Items[0].Outcome, single.Outcome)
	assert.Equal(t, resp.Items[0].Attestation, single.Attestation)
}

func TestVerifyBatchEmpty(t *testing.T) {
	env := newTestEnv(t, "", 0)
	w := env.do(t, http.MethodPost, "/api/v1/verify/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrTypeValidation, w.Header().Get("X-Error-Type"))
}

func TestProofLifecycle(t *testing.T) {
	env := newTestEnv(t, "", 0)

	req := goodRequest()
	req.Timestamp = uint64(time.Now().Unix())
	w := env.do(t, http.MethodPost, "/api/v1/proofs", req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	submitted := decode[SubmitResponse](t, w)
	assert.Equal(t, store.StatusPending, submitted.Status)
	assert.Equal(t, "/api/v1/proofs/"+submitted.VerificationID+"/events", submitted.EventsURL)
	assert.Equal(t, "/api/v1/proofs/"+submitted.VerificationID, w.Header().Get("Location"))

	env.waitDone(t, submitted.VerificationID)

	w = env.do(t, http.MethodGet, "/api/v1/proofs/"+submitted.VerificationID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[ProofResponse](t, w)
	assert.Equal(t, store.StatusProved, got.Record.Status)
	require.NotNil(t, got.Proof)
	assert.Equal(t, prover.SchemeSimulated, got.Proof.Scheme)
	assert.Equal(t, prover.ProofFileName(req.Timestamp), got.FileName)
	require.NotNil(t, got.Values)
	assert.Equal(t, uint32(1), got.Values.Verified)

	w = env.do(t, http.MethodGet, "/api/v1/proofs/"+submitted.VerificationID+"/raw", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), prover.ProofFileName(req.Timestamp))
	p, err := prover.ReadProof(w.Body)
	require.NoError(t, err)
	require.NoError(t, prover.NewSimulatedEngine(score.DefaultPolicy(), testKey, 0).Verify(context.Background(), p))

	w = env.do(t, http.MethodPost, "/api/v1/proofs/"+submitted.VerificationID+"/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	check := decode[CheckResponse](t, w)
	assert.True(t, check.Valid)
	assert.True(t, check.Verified)
}

func TestResponsesAndLogsOmitPlayerName(t *testing.T) {
	const name = "ganondorf-dragmire"
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	env := newTestEnv(t, "", 0, func(o *attest.Options, so *Options) {
		o.Logger = logger
		so.Logger = logger
	})

	req := goodRequest()
	req.PlayerName = name
	var bodies []string
	record := func(w *httptest.ResponseRecorder) *httptest.ResponseRecorder {
		bodies = append(bodies, w.Body.String())
		return w
	}

	w := record(env.do(t, http.MethodPost, "/api/v1/verify", req))
	require.Equal(t, http.StatusOK, w.Code)
	verifyID := decode[VerifyResponse](t, w).ID

	w = record(env.do(t, http.MethodPost, "/api/v1/proofs", req))
	require.Equal(t, http.StatusAccepted, w.Code)
	proofID := decode[SubmitResponse](t, w).VerificationID
	env.waitDone(t, proofID)

	record(env.do(t, http.MethodPost, "/api/v1/verify/batch", BatchRequest{Submissions: []input.Request{req}}))
	for _, id := range []string{verifyID, proofID} {
		require.Equal(t, http.StatusOK, record(env.do(t, http.MethodGet, "/api/v1/proofs/"+id, nil)).Code)
		require.Equal(t, http.StatusOK, record(env.do(t, http.MethodGet, "/api/v1/proofs/"+id+"/events", nil)).Code)
	}
	require.Equal(t, http.StatusOK, record(env.do(t, http.MethodGet, "/api/v1/proofs/"+proofID+"/raw", nil)).Code)
	require.Equal(t, http.StatusOK, record(env.do(t, http.MethodGet, "/api/v1/proofs", nil)).Code)

	hexName := hex.EncodeToString([]byte(name))
	for _, body := range bodies {
		assert.NotContains(t, body, name)
		assert.NotContains(t, body, hexName)
	}

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, name)
		for k, val := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(val), name, "log field %s of %q", k, entry.Message)
		}
	}
}

func TestListProofs(t *testing.T) {
	env := newTestEnv(t, "", 0)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/verify", goodRequest()).Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/proofs?per_page=2&status=executed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[store.RecordsList](t, w)
	assert.Equal(t, 3, list.TotalCount)
	assert.Len(t, list.Records, 2)
	assert.Equal(t, 2, list.TotalPages)

	hash := score.HexDigest(score.HashPlayerName([]byte("someone-else")))
	w = env.do(t, http.MethodGet, "/api/v1/proofs?player_name_hash="+hash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[store.RecordsList](t, w).TotalCount)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/proofs?status=bogus", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/proofs?page=0", nil).Code)
}

func TestProofNotFound(t *testing.T) {
	env := newTestEnv(t, "", 0)

	for _, path := range []string{
		"/api/v1/proofs/missing",
		"/api/v1/proofs/missing/raw",
		"/api/v1/proofs/missing/events",
	} {
		w := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, ErrTypeNotFound, w.Header().Get("X-Error-Type"), path)
	}
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/proofs/missing/check", nil).Code)
}

func TestRawProofForExecutedRecord(t *testing.T) {
	env := newTestEnv(t, "", 0)

	w := env.do(t, http.MethodPost, "/api/v1/verify", goodRequest())
	require.Equal(t, http.StatusOK, w.Code)
	id := decode[VerifyResponse](t, w).ID

	w = env.do(t, http.MethodGet, "/api/v1/proofs/"+id+"/raw", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no proof stored")
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, "", 200*time.Millisecond)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	w := env.do(t, http.MethodPost, "/api/v1/proofs", goodRequest())
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[SubmitResponse](t, w).VerificationID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/proofs/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the stream closes itself after the completing event
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.HasPrefix(text, "event: connected\n"), text)
	assert.Contains(t, text, "event: queued\n")
	assert.Contains(t, text, "event: proving\n")
	assert.Contains(t, text, "event: stored\n")
	assert.Contains(t, text, `"completed":true`)
}

func TestCloseStreamsEndsOpenStreams(t *testing.T) {
	env := newTestEnv(t, "", time.Minute)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	w := env.do(t, http.MethodPost, "/api/v1/proofs", goodRequest())
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[SubmitResponse](t, w).VerificationID

	resp, err := http.Get(srv.URL + "/api/v1/proofs/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	done := make(chan string, 1)
	go func() {
		body, _ := io.ReadAll(resp.Body)
		done <- string(body)
	}()

	env.server.CloseStreams()
	env.server.CloseStreams()
	select {
	case body := <-done:
		assert.Contains(t, body, "event: connected\n")
		assert.NotContains(t, body, "event: stored\n")
	case <-time.After(5 * time.Second):
		t.Fatal("stream stayed open after CloseStreams")
	}
}

func TestEventsStreamForFinishedRecord(t *testing.T) {
	env := newTestEnv(t, "", 0)

	w := env.do(t, http.MethodPost, "/api/v1/verify", goodRequest())
	require.Equal(t, http.StatusOK, w.Code)
	id := decode[VerifyResponse](t, w).ID

	w = env.do(t, http.MethodGet, "/api/v1/proofs/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: connected\n")
	assert.Contains(t, w.Body.String(), "event: stored\n")
	assert.Contains(t, w.Body.String(), "executed without proof")
}

func TestVerifyingKeyEndpoint(t *testing.T) {
	env := newTestEnv(t, "", 0)

	w := env.do(t, http.MethodGet, "/api/v1/vkey", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testKey, w.Body.Bytes())

	var buf bytes.Buffer
	want, err := prover.NewSimulatedEngine(score.DefaultPolicy(), testKey, 0).ExportVerifyingKey(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want), w.Header().Get("X-VK-Hash"))
	assert.Equal(t, prover.SchemeSimulated, w.Header().Get("X-Proof-Scheme"))
}

func TestTokenProtectsMutatingRoutes(t *testing.T) {
	env := newTestEnv(t, "s3cret", 0)

	w := env.do(t, http.MethodPost, "/api/v1/verify", goodRequest())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrTypeUnauthorized, w.Header().Get("X-Error-Type"))

	w = env.do(t, http.MethodPost, "/api/v1/proofs", goodRequest(), TokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/verify", goodRequest(), TokenHeader, "s3cret")
	assert.Equal(t, http.StatusOK, w.Code)

	// reads stay open
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/proofs", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/vkey", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "", 0)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/verify", goodRequest()).Code)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `scoreattest_verifications_total{outcome="verified"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, "s3cret", 0)
	w := env.do(t, http.MethodOptions, "/api/v1/verify", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), TokenHeader)
}

func TestRecoveryHandler(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())
	h := eh.RecoveryHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrTypeInternal, w.Header().Get("X-Error-Type"))
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		errType string
	}{
		{fmt.Errorf("wrap: %w", input.ErrMalformedInput), http.StatusBadRequest, ErrTypeMalformedInput},
		{batch.ErrTooLarge, http.StatusBadRequest, ErrTypeValidation},
		{store.ErrNotFound, http.StatusNotFound, ErrTypeNotFound},
		{attest.ErrNoProof, http.StatusNotFound, ErrTypeNotFound},
		{attest.ErrQueueFull, http.StatusServiceUnavailable, ErrTypeUnavailable},
		{attest.ErrClosed, http.StatusServiceUnavailable, ErrTypeUnavailable},
		{prover.ErrVerifyingKeyMismatch, http.StatusUnprocessableEntity, ErrTypeProofVerification},
		{fmt.Errorf("x: %w", prover.ErrProofGenerationFailed), http.StatusInternalServerError, ErrTypeProofGeneration},
		{prover.ErrSetupFailed, http.StatusInternalServerError, ErrTypeProofGeneration},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrTypeTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, errType, message := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.errType, errType)
			assert.NotEmpty(t, message)
		})
	}

	_, _, message := classify(errors.New("disk on fire"))
	assert.NotContains(t, message, "disk", "internal causes stay out of the message")
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, CategoryClient, GetErrorCategory(ErrTypeNotFound))
	assert.Equal(t, CategoryProver, GetErrorCategory(ErrTypeProofGeneration))
	assert.Equal(t, CategoryTransient, GetErrorCategory(ErrTypeTimeout))
	assert.Equal(t, CategoryServer, GetErrorCategory(ErrTypeInternal))
}

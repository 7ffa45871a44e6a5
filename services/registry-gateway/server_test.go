package registrygateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	"omatrust/attestation"
	"omatrust/verifier"
)

const reviewSchema = "0x28b73429cc730191053ba7fe21e17253be25dbab480f0c3a369de5217657d925"

type stubVerifier struct {
	result  verifier.Result
	lastReq verifier.Request
}

func (s *stubVerifier) Verify(_ context.Context, req verifier.Request) verifier.Result {
	s.lastReq = req
	return s.result
}

func newTestServer(t *testing.T, stub *stubVerifier) *Server {
	t.Helper()
	store, err := attestation.NewStore(filepath.Join(t.TempDir(), "gateway.db"), &bolt.Options{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	server, err := NewServer(stub, store, attestation.NewEngine(reviewSchema), rate.Limit(1000), 1000, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleVerify(t *testing.T) {
	t.Parallel()

	stub := &stubVerifier{result: verifier.Result{Verified: true, Method: "dns-txt", TxHash: "0xfeed"}}
	server := newTestServer(t, stub)

	rec := doJSON(t, server.Router(), http.MethodPost, "/v1/verify", map[string]string{
		"did":       "did:web:example.com",
		"message":   "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B claim\nURI: https://example.com",
		"signature": "0xabcd",
		"domain":    "example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Verified bool   `json:"verified"`
		Method   string `json:"method"`
		TxHash   string `json:"txHash"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Verified || resp.Method != "dns-txt" || resp.TxHash != "0xfeed" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if stub.lastReq.DID != "did:web:example.com" || stub.lastReq.Domain != "example.com" {
		t.Fatalf("verifier received wrong request: %+v", stub.lastReq)
	}
	if len(stub.lastReq.Signature) != 2 {
		t.Fatalf("expected decoded signature bytes, got %v", stub.lastReq.Signature)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected the request id to be echoed in X-Request-Id")
	}
}

func TestHandleVerifyRejectsBadSignatureEncoding(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubVerifier{})
	rec := doJSON(t, server.Router(), http.MethodPost, "/v1/verify", map[string]string{
		"did":       "did:web:example.com",
		"message":   "msg",
		"signature": "not-hex",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleVerifyReportsRegistrarError(t *testing.T) {
	t.Parallel()

	stub := &stubVerifier{result: verifier.Result{
		Verified:     true,
		Method:       "owner()",
		RegistrarErr: errors.New("registrar write failed: nonce too low"),
	}}
	server := newTestServer(t, stub)

	rec := doJSON(t, server.Router(), http.MethodPost, "/v1/verify", map[string]string{
		"did":       "did:pkh:eip155:1:0x1111111111111111111111111111111111111111",
		"message":   "msg",
		"signature": "0xabcd",
	})
	var resp struct {
		Verified       bool   `json:"verified"`
		Error          string `json:"error"`
		RegistrarError string `json:"registrarError"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Verified {
		t.Fatal("registrar failure must keep the verification result")
	}
	if resp.Error != "" {
		t.Fatalf("verification error must stay empty, got %q", resp.Error)
	}
	if resp.RegistrarError == "" {
		t.Fatal("expected registrarError to be reported")
	}
}

func TestAttestationSyncAndReputation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubVerifier{})
	router := server.Router()

	records := []attestation.Record{
		{
			UID: "0x01", Attester: "0xaaaa", SchemaID: reviewSchema, Time: 100,
			Data: map[string]any{"subject": "did:web:example.com", "version": "1.0", "ratingValue": 4},
		},
		{
			UID: "0x02", Attester: "0xaaaa", SchemaID: reviewSchema, Time: 200,
			Data: map[string]any{"subject": "did:web:example.com", "version": "1.0", "ratingValue": 5},
		},
		{
			UID: "0x03", Attester: "0xbbbb", SchemaID: reviewSchema, Time: 150,
			Data: map[string]any{"subject": "did:web:example.com", "version": "1.0", "ratingValue": 3},
		},
	}
	rec := doJSON(t, router, http.MethodPut, "/v1/attestations", map[string]any{"records": records})
	if rec.Code != http.StatusOK {
		t.Fatalf("sync failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/reputation?subject=did:web:example.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reputation failed with %d: %s", rec.Code, rec.Body.String())
	}
	var summary attestation.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	// 0x02 supersedes 0x01 for the same attester/subject/version key.
	if summary.Count != 2 {
		t.Fatalf("expected 2 surviving reviews, got %d", summary.Count)
	}
	if summary.Average != 4 {
		t.Fatalf("expected average 4, got %v", summary.Average)
	}
}

func TestReputationRequiresSubject(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &stubVerifier{})
	rec := doJSON(t, server.Router(), http.MethodGet, "/v1/reputation", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	store, err := attestation.NewStore(filepath.Join(t.TempDir(), "gateway.db"), &bolt.Options{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	server, err := NewServer(&stubVerifier{}, store, attestation.NewEngine(reviewSchema), rate.Limit(1), 1, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	router := server.Router()

	first := doJSON(t, router, http.MethodGet, "/v1/reputation?subject=did:web:example.com", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	second := doJSON(t, router, http.MethodGet, "/v1/reputation?subject=did:web:example.com", nil)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	// Probes and scrapes bypass the limiter even when the API is throttled.
	health := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if health.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", health.Code)
	}
	metrics := doJSON(t, router, http.MethodGet, "/metrics", nil)
	if metrics.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", metrics.Code)
	}
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":8096" {
		t.Fatalf("unexpected default listen address %q", cfg.ListenAddress)
	}
}

func TestConfigEndpointOverrides(t *testing.T) {
	t.Parallel()

	cfg := &Config{RPCOverrides: map[string]string{"1": "https://mainnet.example/rpc"}}
	overrides, err := cfg.EndpointOverrides()
	if err != nil {
		t.Fatalf("endpoint overrides: %v", err)
	}
	if overrides[1] != "https://mainnet.example/rpc" {
		t.Fatalf("unexpected overrides: %v", overrides)
	}

	cfg = &Config{RPCOverrides: map[string]string{"mainnet": "https://mainnet.example/rpc"}}
	if _, err := cfg.EndpointOverrides(); err == nil {
		t.Fatal("expected error for non-numeric chain id")
	}
}

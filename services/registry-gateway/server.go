// Package registrygateway exposes DID verification and attestation
// reputation over HTTP for the application registry.
package registrygateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"omatrust/attestation"
	"omatrust/verifier"
)

const maxBodyBytes = 1 << 20 // 1 MiB; attestation syncs carry full snapshots

// DIDVerifier is the verification capability consumed by the HTTP layer.
// *verifier.Verifier implements it.
type DIDVerifier interface {
	Verify(ctx context.Context, req verifier.Request) verifier.Result
}

// Server implements the HTTP handlers for the registry gateway.
type Server struct {
	verifier DIDVerifier
	store    *attestation.Store
	engine   *attestation.Engine
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewServer constructs the gateway around its collaborators.
func NewServer(verify DIDVerifier, store *attestation.Store, engine *attestation.Engine, limit rate.Limit, burst int, log *slog.Logger) (*Server, error) {
	if verify == nil {
		return nil, errors.New("verifier required")
	}
	if store == nil {
		return nil, errors.New("attestation store required")
	}
	if engine == nil {
		return nil, errors.New("attestation engine required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		verifier: verify,
		store:    store,
		engine:   engine,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log,
	}, nil
}

// Router assembles the route tree. Health and metrics stay outside the rate
// limiter so probes and scrapes keep working while the API is saturated.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/verify", s.handleVerify)
		r.Put("/attestations", s.handleSyncAttestations)
		r.Get("/reputation", s.handleReputation)
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type verifyRequest struct {
	DID       string `json:"did"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Domain    string `json:"domain,omitempty"`
}

type verifyResponse struct {
	Verified       bool   `json:"verified"`
	Method         string `json:"method,omitempty"`
	TxHash         string `json:"txHash,omitempty"`
	Error          string `json:"error,omitempty"`
	RegistrarError string `json:"registrarError,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	log := s.log.With("requestId", requestID)

	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if strings.TrimSpace(req.DID) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "did and message are required")
		return
	}
	signature, err := hexutil.Decode(strings.TrimSpace(req.Signature))
	if err != nil {
		writeError(w, http.StatusBadRequest, "signature must be 0x-prefixed hex")
		return
	}

	result := s.verifier.Verify(r.Context(), verifier.Request{
		DID:       req.DID,
		Message:   req.Message,
		Signature: signature,
		Domain:    req.Domain,
	})

	resp := verifyResponse{Verified: result.Verified, Method: result.Method, TxHash: result.TxHash}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	if result.RegistrarErr != nil {
		resp.RegistrarError = result.RegistrarErr.Error()
	}
	log.Info("verification handled",
		"did", req.DID, "verified", result.Verified, "method", result.Method)
	writeJSON(w, http.StatusOK, resp)
}

type syncRequest struct {
	Records []attestation.Record `json:"records"`
}

func (s *Server) handleSyncAttestations(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if err := s.store.ReplaceAll(req.Records); err != nil {
		if errors.Is(err, attestation.ErrEmptyUID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("attestation sync failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to store snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stored": len(req.Records)})
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	records, err := s.store.BySubject(subject)
	if err != nil {
		s.log.Error("reputation lookup failed", "subject", subject, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load attestations")
		return
	}
	if version := strings.TrimSpace(r.URL.Query().Get("version")); version != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Version() == version {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	writeJSON(w, http.StatusOK, s.engine.Aggregate(records))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

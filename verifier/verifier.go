// Package verifier proves that the signer of an ownership claim controls a
// claimed wallet and that the wallet controls a given DID, then hands the
// verified DID to the registrar.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"omatrust/observability/metrics"
	"omatrust/retry"
	"omatrust/verifier/claim"
	"omatrust/verifier/pkh"
	"omatrust/verifier/web"
)

var (
	// ErrAddressMismatch indicates the recovered signer differs from the
	// wallet named in the claim text.
	ErrAddressMismatch = errors.New("verifier: signer does not match claimed address")
	// ErrDomainMismatch indicates the claim names a different domain than
	// the caller expected.
	ErrDomainMismatch = errors.New("verifier: claimed domain does not match expected domain")
	// ErrInvalidDID indicates the DID string is not method-prefixed.
	ErrInvalidDID = errors.New("verifier: malformed did")
	// ErrUnsupportedMethod indicates a DID method other than web or pkh.
	ErrUnsupportedMethod = errors.New("verifier: unsupported did method")
	// ErrOwnershipNotFound indicates no did:web strategy produced a proof.
	ErrOwnershipNotFound = errors.New("verifier: no ownership proof found")
	// ErrTimeout indicates the caller's deadline expired while strategies
	// were still running.
	ErrTimeout = errors.New("verifier: verification deadline exceeded")
	// ErrRegistrar indicates the DID verified but the registrar write
	// failed. The verification itself stands.
	ErrRegistrar = errors.New("verifier: registrar write failed")
)

const (
	didMethodWeb = "web"
	didMethodPKH = "pkh"
)

// A Registrar records a verified DID in the application registry.
// Transaction mechanics live entirely behind this interface.
type Registrar interface {
	RegisterDID(ctx context.Context, did string) (txHash string, err error)
}

// Request is one inbound verification request.
type Request struct {
	DID       string
	Message   string
	Signature []byte

	// Domain optionally pins the claim to an expected domain.
	Domain string
}

// Result reports the outcome of a verification request. RegistrarErr is set
// only when verification succeeded but the registry write did not; that
// state is deliberately kept distinct from a failed verification.
type Result struct {
	Verified     bool
	Method       string
	TxHash       string
	Err          error
	RegistrarErr error
}

// Config wires the orchestrator's collaborators.
type Config struct {
	// HTTPClient serves hosted-document lookups; defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	// DNSServer overrides the TXT resolver address (host:port).
	DNSServer string
	// Endpoints resolves RPC endpoints for did:pkh chains.
	Endpoints pkh.EndpointResolver
	// Clients overrides the EVM client source; defaults to a lazily
	// dialing pool over Endpoints.
	Clients pkh.ClientSource
	// Registrar is optional; without it verified DIDs are not registered.
	Registrar Registrar
	// Retry bounds every network call site; zero value uses the default
	// two-attempt policy.
	Retry retry.Policy
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Verifier is the top-level DID ownership verification state machine.
type Verifier struct {
	web       []web.Strategy
	prober    *pkh.Prober
	registrar Registrar
	retry     retry.Policy
	log       *slog.Logger
}

// New constructs a verifier from cfg.
func New(cfg Config) (*Verifier, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clients := cfg.Clients
	if clients == nil {
		if cfg.Endpoints == nil {
			return nil, errors.New("verifier: endpoint resolver or client source required")
		}
		clients = pkh.NewClientPool(cfg.Endpoints)
	}
	return &Verifier{
		web:       web.Strategies(cfg.HTTPClient, cfg.DNSServer),
		prober:    pkh.NewProber(clients, cfg.Retry, log),
		registrar: cfg.Registrar,
		retry:     cfg.Retry,
		log:       log,
	}, nil
}

// Verify runs the full claim-signature-ownership pipeline for req. The
// signature and claim consistency checks run before any network I/O.
func (v *Verifier) Verify(ctx context.Context, req Request) Result {
	parsed := claim.Parse(req.Message)
	signer, err := claim.RecoverSigner(req.Message, req.Signature)
	if err != nil {
		return v.reject(req.DID, err)
	}
	if parsed.Address == "" || !strings.EqualFold(signer.Hex(), parsed.Address) {
		return v.reject(req.DID, fmt.Errorf("%w: signer %s, claimed %q",
			ErrAddressMismatch, signer.Hex(), parsed.Address))
	}
	if req.Domain != "" && parsed.Domain != "" && !strings.EqualFold(req.Domain, parsed.Domain) {
		return v.reject(req.DID, fmt.Errorf("%w: claimed %q, expected %q",
			ErrDomainMismatch, parsed.Domain, req.Domain))
	}

	method, identifier, err := splitDID(req.DID)
	if err != nil {
		return v.reject(req.DID, err)
	}
	switch method {
	case didMethodWeb:
		return v.verifyWeb(ctx, req.DID, identifier, parsed.Address)
	case didMethodPKH:
		return v.verifyPKH(ctx, req.DID, identifier, parsed.Address)
	default:
		return v.reject(req.DID, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method))
	}
}

func (v *Verifier) verifyWeb(ctx context.Context, did, domain, wallet string) Result {
	// Strategy errors are retried under the configured policy. A clean
	// miss is a final answer for that strategy and moves to the next one.
	for _, strategy := range v.web {
		var matched bool
		err := v.retry.Do(ctx, func() error {
			var attemptErr error
			matched, attemptErr = strategy.Attempt(ctx, domain, wallet)
			return attemptErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return v.reject(did, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
			}
			metrics.Verifier().ObserveStrategy(strategy.Name(), "error")
			v.log.Debug("did:web strategy failed",
				"strategy", strategy.Name(), "domain", domain, "error", err.Error())
			continue
		}
		if matched {
			metrics.Verifier().ObserveStrategy(strategy.Name(), "match")
			return v.accept(ctx, did, strategy.Name())
		}
		metrics.Verifier().ObserveStrategy(strategy.Name(), "miss")
	}
	if ctx.Err() != nil {
		return v.reject(did, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
	}
	return v.reject(did, fmt.Errorf("%w for domain %s", ErrOwnershipNotFound, domain))
}

func (v *Verifier) verifyPKH(ctx context.Context, did, identifier, wallet string) Result {
	method, err := v.prober.Verify(ctx, identifier, wallet)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return v.reject(did, fmt.Errorf("%w: %v", ErrTimeout, err))
		}
		return v.reject(did, err)
	}
	return v.accept(ctx, did, method)
}

func (v *Verifier) accept(ctx context.Context, did, method string) Result {
	metrics.Verifier().ObserveVerification(method, "verified")
	result := Result{Verified: true, Method: method}
	if v.registrar == nil {
		return result
	}
	txHash, err := v.registrar.RegisterDID(ctx, did)
	if err != nil {
		v.log.Error("registrar write failed", "did", did, "error", err.Error())
		result.RegistrarErr = fmt.Errorf("%w: %v", ErrRegistrar, err)
		return result
	}
	result.TxHash = txHash
	return result
}

func (v *Verifier) reject(did string, err error) Result {
	metrics.Verifier().ObserveVerification("none", "rejected")
	v.log.Info("verification rejected", "did", did, "error", err.Error())
	return Result{Err: err}
}

// splitDID separates a DID into its method and method-specific identifier.
// The identifier keeps any embedded colons (did:pkh carries a full CAIP-10).
func splitDID(did string) (string, string, error) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) < 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDID, did)
	}
	return parts[1], parts[2], nil
}

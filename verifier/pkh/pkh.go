// Package pkh proves that a wallet controls the contract named by a did:pkh
// identifier, using an ordered chain of on-chain ownership probes.
package pkh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"omatrust/caip10"
	"omatrust/observability/metrics"
	"omatrust/retry"
)

var (
	// ErrUnsupportedNamespace indicates a did:pkh outside eip155.
	ErrUnsupportedNamespace = errors.New("pkh: unsupported namespace")
	// ErrInvalidChainID indicates a non-integer chain reference.
	ErrInvalidChainID = errors.New("pkh: invalid chain id")
	// ErrNotAContract indicates the target address has no code. Fatal; no
	// probe can succeed against an externally owned account.
	ErrNotAContract = errors.New("pkh: address is not a contract")
	// ErrNetwork indicates the RPC endpoint could not be reached even after
	// retrying. Retrying later may succeed.
	ErrNetwork = errors.New("pkh: network error")
)

// OwnershipError reports that every probe was exhausted without a match. It
// carries the full diagnostic so operators can see what was attempted.
type OwnershipError struct {
	Contract  common.Address
	Wallet    common.Address
	Attempted []string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("pkh: no ownership link from wallet %s to contract %s (attempted %s)",
		e.Wallet.Hex(), e.Contract.Hex(), strings.Join(e.Attempted, ", "))
}

// ClientSource supplies a shared EVM client per chain. *ClientPool
// implements it.
type ClientSource interface {
	ClientFor(chainID uint64) (EVMClient, error)
}

// Prober runs the ordered ownership probes for did:pkh targets.
type Prober struct {
	clients ClientSource
	probes  []probe
	retry   retry.Policy
	log     *slog.Logger
}

// NewProber constructs a prober. The client source's lifecycle stays with
// the caller.
func NewProber(clients ClientSource, policy retry.Policy, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	return &Prober{
		clients: clients,
		probes:  orderedProbes(),
		retry:   policy,
		log:     log,
	}
}

// Verify proves that wallet controls the contract named by identifier, the
// CAIP-10 portion of a did:pkh. It returns the name of the first probe that
// matched.
func (p *Prober) Verify(ctx context.Context, identifier, wallet string) (string, error) {
	id, err := caip10.Parse(identifier)
	if err != nil {
		return "", err
	}
	if id.Namespace != caip10.NamespaceEIP155 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNamespace, id.Namespace)
	}
	chainID, err := strconv.ParseUint(id.Reference, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidChainID, id.Reference)
	}
	if !caip10.IsEVMAddress(id.Address) {
		return "", &caip10.FormatError{Field: "address", Message: "must be a 20-byte hex address"}
	}
	if !caip10.IsEVMAddress(wallet) {
		return "", &caip10.FormatError{Field: "wallet", Message: "must be a 20-byte hex address"}
	}

	client, err := p.clients.ClientFor(chainID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	contract := common.HexToAddress(id.Address)
	walletAddr := common.HexToAddress(wallet)

	// An externally owned account can never satisfy a probe; fail fast
	// before spending four call rounds.
	var code []byte
	err = p.retry.Do(ctx, func() error {
		var callErr error
		code, callErr = client.CodeAt(ctx, contract, nil)
		return callErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: fetch code for %s: %v", ErrNetwork, contract.Hex(), err)
	}
	if len(code) == 0 {
		return "", fmt.Errorf("%w: %s on chain %d", ErrNotAContract, contract.Hex(), chainID)
	}

	attempted := make([]string, 0, len(p.probes))
	for _, pr := range p.probes {
		attempted = append(attempted, pr.name())
		matched := false
		err := p.retry.Do(ctx, func() error {
			var probeErr error
			matched, probeErr = pr.attempt(ctx, client, contract, walletAddr)
			return probeErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Reverts and missing functions look identical to RPC faults
			// here; both mean "no match", the distinction is metrics-only.
			metrics.Verifier().ObserveProbeFailure(pr.name(), failureClass(err))
			p.log.Debug("ownership probe failed",
				"probe", pr.name(), "contract", contract.Hex(), "error", err.Error())
			continue
		}
		if matched {
			metrics.Verifier().ObserveStrategy(pr.name(), "match")
			return pr.name(), nil
		}
		metrics.Verifier().ObserveStrategy(pr.name(), "miss")
	}
	return "", &OwnershipError{Contract: contract, Wallet: walletAddr, Attempted: attempted}
}

func failureClass(err error) string {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") || strings.Contains(msg, "abi") {
		return "permanent"
	}
	return "transient"
}

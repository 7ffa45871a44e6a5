package pkh

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMClient is the subset of the Ethereum RPC used by the ownership prober.
// *ethclient.Client satisfies it.
type EVMClient interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// An EndpointResolver maps a chain id to a JSON-RPC endpoint. Registry
// operators typically configure a handful of overrides and fall back to a
// shared gateway for everything else.
type EndpointResolver interface {
	Endpoint(chainID uint64) (string, error)
}

// StaticEndpoints resolves endpoints from an override map with a templated
// gateway fallback. The template's {chainId} placeholder is substituted with
// the decimal chain id.
type StaticEndpoints struct {
	Overrides map[uint64]string
	Gateway   string
}

// Endpoint implements EndpointResolver.
func (s StaticEndpoints) Endpoint(chainID uint64) (string, error) {
	if endpoint, ok := s.Overrides[chainID]; ok && strings.TrimSpace(endpoint) != "" {
		return endpoint, nil
	}
	if strings.TrimSpace(s.Gateway) == "" {
		return "", fmt.Errorf("pkh: no rpc endpoint configured for chain %d", chainID)
	}
	return strings.ReplaceAll(s.Gateway, "{chainId}", strconv.FormatUint(chainID, 10)), nil
}

// ClientPool lazily dials one client per chain and shares it across
// concurrent verifications. The pool only ever issues read calls, so a
// client is safe to share once constructed. Lifecycle belongs to the caller:
// construct the pool alongside the verifier and Close it at shutdown.
type ClientPool struct {
	resolver EndpointResolver
	dial     func(endpoint string) (EVMClient, error)

	mu      sync.Mutex
	clients map[uint64]EVMClient
}

// NewClientPool builds a pool that dials go-ethereum clients through the
// given resolver.
func NewClientPool(resolver EndpointResolver) *ClientPool {
	return &ClientPool{
		resolver: resolver,
		dial: func(endpoint string) (EVMClient, error) {
			return ethclient.Dial(endpoint)
		},
		clients: make(map[uint64]EVMClient),
	}
}

// ClientFor returns the shared client for chainID, dialing it on first use.
func (p *ClientPool) ClientFor(chainID uint64) (EVMClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[chainID]; ok {
		return client, nil
	}
	endpoint, err := p.resolver.Endpoint(chainID)
	if err != nil {
		return nil, err
	}
	client, err := p.dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("pkh: dial chain %d: %w", chainID, err)
	}
	p.clients[chainID] = client
	return client, nil
}

// Close releases every dialed client.
func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for chainID, client := range p.clients {
		if closer, ok := client.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(p.clients, chainID)
	}
}

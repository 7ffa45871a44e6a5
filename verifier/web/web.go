// Package web implements the ordered did:web ownership lookup strategies:
// the hosted DID document and the registry DNS TXT record.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"omatrust/caip10"
)

// Method names reported by the did:web strategies.
const (
	MethodDIDJSON = "did.json"
	MethodDNSTXT  = "dns-txt"
)

const (
	wellKnownPath    = "/.well-known/did.json"
	documentTimeout  = 5 * time.Second
	acceptDIDContent = "application/did+json, application/json"
)

var walletPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

// A Strategy independently tries to associate the claimed wallet with a
// domain. A false match with a nil error means "not found here"; errors are
// advisory and never abort the strategy chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, domain, wallet string) (bool, error)
}

// DocumentStrategy fetches https://<domain>/.well-known/did.json and scans
// its verification methods for the claimed wallet.
type DocumentStrategy struct {
	Client  *http.Client
	Timeout time.Duration

	// UseHTTP downgrades the scheme for loopback test servers.
	UseHTTP bool
}

type didDocument struct {
	VerificationMethod []verificationMethod `json:"verificationMethod"`
}

type verificationMethod struct {
	BlockchainAccountID string `json:"blockchainAccountId"`
}

// Name implements Strategy.
func (s *DocumentStrategy) Name() string { return MethodDIDJSON }

// Attempt implements Strategy. Network and parse failures are "not found",
// not fatal.
func (s *DocumentStrategy) Attempt(ctx context.Context, domain, wallet string) (bool, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = documentTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scheme := "https://"
	if s.UseHTTP {
		scheme = "http://"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+domain+wellKnownPath, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", acceptDIDContent)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var doc didDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return false, err
	}
	for _, method := range doc.VerificationMethod {
		address := walletPattern.FindString(method.BlockchainAccountID)
		if address == "" {
			continue
		}
		if strings.EqualFold(address, wallet) {
			return true, nil
		}
	}
	return false, nil
}

// Strategies returns the ordered did:web lookup chain: hosted document
// first, DNS TXT second.
func Strategies(httpClient *http.Client, dnsServer string) []Strategy {
	return []Strategy{
		&DocumentStrategy{Client: httpClient},
		&TXTStrategy{Server: dnsServer},
	}
}

// matchCAIP10 reports whether a caip10= token value names the claimed EVM
// wallet.
func matchCAIP10(value, wallet string) bool {
	id, err := caip10.Parse(value)
	if err != nil {
		return false
	}
	return id.Namespace == caip10.NamespaceEIP155 && strings.EqualFold(id.Address, wallet)
}

// Package claim parses signed ownership statements and recovers the wallet
// that produced the signature.
package claim

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature indicates signature recovery was mathematically
// impossible (wrong length, invalid recovery id, garbage bytes).
var ErrInvalidSignature = errors.New("claim: invalid signature")

var (
	leadingAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}`)
	uriSchemePattern      = regexp.MustCompile(`^https?://`)
)

// A Claim holds the wallet address and domain asserted inside a signed
// ownership statement. Either field may be empty; consistency against the
// recovered signer is enforced by the orchestrator.
type Claim struct {
	Address string
	Domain  string
}

// Parse extracts the claimed wallet and domain from a free-text statement.
// The first line must begin with a 0x-prefixed 20-byte address; a later line
// of the form "URI: https://..." contributes the claimed domain. Extraction
// never fails, missing pieces just leave the field empty.
func Parse(message string) Claim {
	var parsed Claim
	lines := strings.Split(message, "\n")
	if len(lines) == 0 {
		return parsed
	}
	first := strings.TrimRight(lines[0], "\r")
	if match := leadingAddressPattern.FindString(first); match != "" {
		parsed.Address = strings.ToLower(match)
	}
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if !strings.HasPrefix(trimmed, "URI:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "URI:"))
		if !uriSchemePattern.MatchString(raw) {
			continue
		}
		parsedURL, err := url.Parse(raw)
		if err != nil || parsedURL.Host == "" {
			continue
		}
		parsed.Domain = strings.ToLower(parsedURL.Host)
		break
	}
	return parsed
}

// RecoverSigner recovers the address that signed message under the EIP-191
// personal-message scheme. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(message string, signature []byte) (common.Address, error) {
	if len(signature) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidSignature, ethcrypto.SignatureLength, len(signature))
	}
	sig := make([]byte, ethcrypto.SignatureLength)
	copy(sig, signature)
	if sig[ethcrypto.RecoveryIDOffset] >= 27 {
		sig[ethcrypto.RecoveryIDOffset] -= 27
	}
	digest := accounts.TextHash([]byte(message))
	pubKey, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}

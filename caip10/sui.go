package caip10

import (
	"fmt"
	"strings"
)

// NamespaceSui identifies Sui accounts in CAIP-10 identifiers.
const NamespaceSui = "sui"

const suiAddressHexLen = 64

var suiReferences = []string{"mainnet", "testnet", "devnet"}

// NormalizeSuiAddress canonicalizes a Sui object or account address: the 0x
// prefix is required, the remainder must be hex and at most 32 bytes, and the
// result is left-zero-padded to 64 lowercase hex characters.
func NormalizeSuiAddress(address string) (string, error) {
	if !strings.HasPrefix(address, "0x") {
		return "", &FormatError{Field: "address", Message: "must start with 0x"}
	}
	digits := address[2:]
	for _, r := range digits {
		if !isHexDigit(r) {
			return "", &FormatError{Field: "address", Message: "must contain only hexadecimal characters after 0x"}
		}
	}
	if len(digits) > suiAddressHexLen {
		return "", &FormatError{Field: "address", Message: "exceeds 32 bytes"}
	}
	padded := strings.Repeat("0", suiAddressHexLen-len(digits)) + strings.ToLower(digits)
	return "0x" + padded, nil
}

// ValidateSuiAccount checks the network reference against the known Sui
// networks (case-insensitively) and returns the normalized address.
func ValidateSuiAccount(reference, address string) (string, error) {
	ref := strings.ToLower(strings.TrimSpace(reference))
	valid := false
	for _, known := range suiReferences {
		if ref == known {
			valid = true
			break
		}
	}
	if !valid {
		return "", &FormatError{
			Field:   "reference",
			Message: fmt.Sprintf("must be one of %s", strings.Join(suiReferences, ", ")),
		}
	}
	return NormalizeSuiAddress(address)
}

// IsSuiAddress reports whether address normalizes cleanly, ignoring the
// network reference.
func IsSuiAddress(address string) bool {
	_, err := NormalizeSuiAddress(address)
	return err == nil
}

func isHexDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f':
		return true
	case r >= 'A' && r <= 'F':
		return true
	}
	return false
}

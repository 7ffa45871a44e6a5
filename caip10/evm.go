package caip10

import "regexp"

// NamespaceEIP155 identifies EVM accounts in CAIP-10 identifiers.
const NamespaceEIP155 = "eip155"

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsEVMAddress reports whether address is a well-formed 20-byte hex address.
func IsEVMAddress(address string) bool {
	return evmAddressPattern.MatchString(address)
}

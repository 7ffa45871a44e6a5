package caip10

import (
	"fmt"
	"regexp"
	"strings"
)

// An Identifier is a CAIP-10 chain-agnostic account identifier of the form
// namespace:reference:address. The address component is opaque at this layer
// and may itself contain colons; chain-specific validators layer on top.
type Identifier struct {
	Namespace string
	Reference string
	Address   string
}

var namespacePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// FormatError reports a malformed identifier or address component.
type FormatError struct {
	Field   string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("caip10: invalid %s: %s", e.Field, e.Message)
}

// Parse splits s on its first two colons. The remainder after the second
// colon is captured greedily as the address, so addresses containing colons
// survive a round trip through Build.
func Parse(s string) (Identifier, error) {
	if s == "" {
		return Identifier{}, &FormatError{Field: "identifier", Message: "value required"}
	}
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 3 {
		return Identifier{}, &FormatError{Field: "identifier", Message: "expected namespace:reference:address"}
	}
	if !namespacePattern.MatchString(parts[0]) {
		return Identifier{}, &FormatError{Field: "namespace", Message: "must be lowercase alphanumeric"}
	}
	return Identifier{Namespace: parts[0], Reference: parts[1], Address: parts[2]}, nil
}

// Build colon-joins the components without validation.
func Build(namespace, reference, address string) string {
	return namespace + ":" + reference + ":" + address
}

// String renders the identifier in CAIP-10 wire format.
func (id Identifier) String() string {
	return Build(id.Namespace, id.Reference, id.Address)
}

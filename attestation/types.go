package attestation

import (
	"encoding/json"
	"math/big"
	"strings"
)

// Decoded field names for review attestations. RatingFieldLegacy covers
// records produced before the schema rename.
const (
	SubjectField      = "subject"
	VersionField      = "version"
	RatingField       = "ratingValue"
	RatingFieldLegacy = "rating"
)

// A Record is one observed attestation from the on-chain event log. The log
// is append-only; the only mutation a record ever sees upstream is
// RevocationTime moving from zero to a timestamp.
type Record struct {
	UID            string         `json:"uid"`
	Attester       string         `json:"attester"`
	Recipient      string         `json:"recipient"`
	Time           uint64         `json:"time"`
	RevocationTime uint64         `json:"revocationTime"`
	ExpirationTime uint64         `json:"expirationTime"`
	SchemaID       string         `json:"schemaId"`
	Data           map[string]any `json:"decodedData"`
}

// Subject returns the decoded subject identifier, or "" when absent.
func (r Record) Subject() string {
	return stringField(r.Data, SubjectField)
}

// Version returns the decoded subject version, or "" when absent.
func (r Record) Version() string {
	return stringField(r.Data, VersionField)
}

// Revoked reports whether the record carries a non-zero revocation time.
func (r Record) Revoked() bool {
	return r.RevocationTime != 0
}

// Rating returns the numeric rating carried by the record. The primary field
// name is tried first, then the legacy one. Big-integer-typed values are
// normalized to plain float64; non-numeric values report ok=false.
func (r Record) Rating() (float64, bool) {
	if value, ok := numericField(r.Data, RatingField); ok {
		return value, true
	}
	return numericField(r.Data, RatingFieldLegacy)
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}

func numericField(data map[string]any, key string) (float64, bool) {
	if data == nil {
		return 0, false
	}
	raw, ok := data[key]
	if !ok {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint64:
		return float64(value), true
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case *big.Int:
		if value == nil {
			return 0, false
		}
		scaled, _ := new(big.Float).SetInt(value).Float64()
		return scaled, true
	case big.Int:
		scaled, _ := new(big.Float).SetInt(&value).Float64()
		return scaled, true
	default:
		return 0, false
	}
}

// MajorVersion extracts the leading run of digits before the first dot. The
// version must begin with an ASCII digit; prefixed forms like "v1.0.0" yield
// ok=false rather than being coerced.
func MajorVersion(version string) (string, bool) {
	if version == "" || version[0] < '0' || version[0] > '9' {
		return "", false
	}
	end := len(version)
	for i := 0; i < len(version); i++ {
		if version[i] == '.' {
			end = i
			break
		}
		if version[i] < '0' || version[i] > '9' {
			end = i
			break
		}
	}
	return version[:end], true
}

// normalizedAttester lowercases the attester for grouping so checksummed and
// lowercase forms of the same wallet collapse into one key.
func normalizedAttester(attester string) string {
	return strings.ToLower(attester)
}

package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// keyEncodings are tried in order after hex. Runtime-generated secrets use
// the URL-safe alphabet; operator-pasted ones are usually standard base64.
var keyEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

// DecodeKey turns a configured secret into raw bytes: hex first, then the
// base64 variants, falling back to the literal string. Signing secrets feed
// HMAC as-is; decoding exists so the strength check measures pasted key
// material by its real byte length.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	for _, enc := range keyEncodings {
		if decoded, err := enc.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	return []byte(v), nil
}

// KeyByteLength returns the decoded byte length of a secret string. Empty
// input reports zero without error.
func KeyByteLength(value string) (int, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, nil
	}

	decoded, err := DecodeKey(v)
	if err != nil {
		return 0, err
	}
	return len(decoded), nil
}

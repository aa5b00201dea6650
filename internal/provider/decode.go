// internal/provider/decode.go
package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecodeString decodes a JSON string result.
func DecodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("malformed string result: %w", err)
	}
	return s, nil
}

// DecodeStrings decodes a JSON string-array result (e.g. eth_accounts).
func DecodeStrings(raw json.RawMessage) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("malformed string array result: %w", err)
	}
	return out, nil
}

// HexToInt64 parses a 0x-prefixed quantity (e.g. eth_chainId results).
// Plain decimal strings are accepted as well.
func HexToInt64(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed hex quantity %q: %w", s, err)
		}
		return v, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed quantity %q: %w", s, err)
	}
	return v, nil
}

// Int64ToHex formats a quantity the way provider methods expect chain ids.
func Int64ToHex(v int64) string {
	return "0x" + strconv.FormatInt(v, 16)
}

package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidCredentials is returned when the credentials value is neither a
// JSON object nor base64 of one.
var ErrInvalidCredentials = errors.New("invalid firebase credentials")

// DecodeCredentials accepts a service-account JSON document, or the same
// document base64-encoded. Base64 is tried first and only accepted when it
// decodes to a JSON object.
func DecodeCredentials(raw string) ([]byte, error) {
	compact := strings.Join(strings.Fields(raw), "")

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding} {
		decoded, err := enc.DecodeString(compact)
		if err == nil && isJSONObject(decoded) {
			return decoded, nil
		}
	}

	if isJSONObject([]byte(raw)) {
		return []byte(raw), nil
	}
	return nil, ErrInvalidCredentials
}

func isJSONObject(b []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(b, &obj) == nil && obj != nil
}

// Package packet codes the embedded binary envelope carried inside a
// rumor's content. The relay stream is shared with other
// applications, so decode rejections here are routine, not errors.
package packet

import (
	"encoding/base64"
	"strings"
)

// Marker prefixes every embedded packet so foreign content can be
// skipped before any base64 work.
const Marker = "bitchat1:"

// Encode wraps payload bytes for transport inside event content:
// marker + unpadded base64url.
func Encode(payload []byte) string {
	return Marker + base64.RawURLEncoding.EncodeToString(payload)
}

// Decode validates the marker, restores base64 padding and decodes.
// The bool is false for anything malformed or foreign.
func Decode(content string) ([]byte, bool) {
	if !strings.HasPrefix(content, Marker) {
		return nil, false
	}
	body := content[len(Marker):]
	if strings.ContainsRune(body, '=') {
		return nil, false
	}
	if pad := (4 - len(body)%4) % 4; pad > 0 {
		body += strings.Repeat("=", pad)
	}
	payload, err := base64.URLEncoding.DecodeString(body)
	if err != nil {
		return nil, false
	}
	return payload, true
}

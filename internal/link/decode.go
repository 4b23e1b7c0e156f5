package link

import (
	"encoding/base64"
	"errors"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("decoded bytes are not valid utf-8")

// DecodeBase64 tries the standard alphabet (with padding) first, then
// URL-safe, then the unpadded variants.
func DecodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// DecodeBase64Text decodes s and requires the result to be UTF-8.
func DecodeBase64Text(s string) (string, error) {
	return decodeB64UTF8(s)
}

func decodeB64UTF8(s string) (string, error) {
	b, err := DecodeBase64(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errInvalidUTF8
	}
	return string(b), nil
}

// percentDecode decodes each valid %XX escape and keeps any other '%'
// literally. A result that is not UTF-8 yields "".
func percentDecode(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b = append(b, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		b = append(b, s[i])
	}
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	default:
		return c - '0'
	}
}

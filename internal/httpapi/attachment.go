package httpapi

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const maxFileNameBytes = 200

// exportFileName derives the download name for a record's runtime config.
// An explicit name wins over the record's display name.
func exportFileName(explicit, displayName string) (string, error) {
	base := strings.TrimSpace(explicit)
	if base != "" {
		if strings.ContainsAny(base, "\r\n\x00") {
			return "", requestError("INVALID_ARGUMENT", "fileName 含有非法控制字符", "")
		}
		if strings.Contains(base, "/") || strings.Contains(base, "\\") {
			return "", requestError("INVALID_ARGUMENT", "fileName 不允许包含路径分隔符", "")
		}
		if len(base) > maxFileNameBytes {
			return "", requestError("INVALID_ARGUMENT", "fileName 过长", "max=200 bytes")
		}
	} else {
		base = sanitizeFileName(displayName)
	}
	if base == "" {
		base = "config"
	}
	if !hasExt(base) {
		base += ".json"
	}
	return base, nil
}

// sanitizeFileName makes a display name usable as a file name. Display
// names come from link fragments and may contain anything.
func sanitizeFileName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(s))
	if len(s) > maxFileNameBytes {
		n := maxFileNameBytes
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	return strings.Trim(s, ". ")
}

func hasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}

func contentDispositionAttachment(filename string) string {
	// RFC 6266 + RFC 5987.
	escaped := strings.ReplaceAll(filename, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")

	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", escaped, pctEncode(filename))
}

func pctEncode(s string) string {
	// Go's QueryEscape uses '+' for spaces, which we rewrite to %20.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

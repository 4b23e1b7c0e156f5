package link

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

var (
	ErrUnrecognizedScheme = errors.New("unrecognized link scheme")
	ErrMalformed          = errors.New("malformed link")
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Parse trims the input and classifies it. Precedence is fixed: a leading
// '{' wins over any scheme, then ss, vless, vmess, trojan.
func Parse(input string) (Link, error) {
	s := strings.TrimSpace(input)
	switch {
	case strings.HasPrefix(s, "{"):
		return JSON{Raw: s}, nil
	case strings.HasPrefix(s, SchemeShadowsocks):
		return parseShadowsocks(strings.TrimPrefix(s, SchemeShadowsocks))
	case strings.HasPrefix(s, SchemeVLESS):
		uuid, addr, query, frag, err := parseUserAtHost(KindVLESS, strings.TrimPrefix(s, SchemeVLESS))
		if err != nil {
			return nil, err
		}
		return VLESS{UUID: uuid, Addr: addr, Query: query, Fragment: frag}, nil
	case strings.HasPrefix(s, SchemeVMess):
		return VMess{Payload: strings.TrimPrefix(s, SchemeVMess)}, nil
	case strings.HasPrefix(s, SchemeTrojan):
		password, addr, query, frag, err := parseUserAtHost(KindTrojan, strings.TrimPrefix(s, SchemeTrojan))
		if err != nil {
			return nil, err
		}
		return Trojan{Password: password, Addr: addr, Query: query, Fragment: frag}, nil
	default:
		return nil, &ParseError{
			AppError: model.AppError{
				Code:    "LINK_UNRECOGNIZED",
				Message: "不支持的链接格式",
				Stage:   "parse_link",
				Snippet: SchemeOf(s),
				Hint:    "expected: {...} | ss:// | vless:// | vmess:// | trojan://",
			},
			Cause: ErrUnrecognizedScheme,
		}
	}
}

// ss://<b64(method:password)>@<host>:<port>[#name]
//
// The name is the text after the last '#'; the endpoint stops at the
// first '#'. The link is malformed only when neither view has a single '@'.
func parseShadowsocks(rest string) (Link, error) {
	body, _, _ := strings.Cut(rest, "#")
	ss := Shadowsocks{Body: body, Label: rest}
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		ss.Label, ss.Fragment = rest[:i], Fragment{Raw: rest[i+1:], Present: true}
	}
	_, _, endpoint := ss.Endpoint()
	_, listed := ss.Server()
	if !endpoint && !listed {
		return nil, malformed(KindShadowsocks, "缺少唯一的 @ 分隔符")
	}
	return ss, nil
}

// <user>@<host>:<port>[?query][#name], shared by vless and trojan.
func parseUserAtHost(kind Kind, rest string) (string, HostPort, map[string]string, Fragment, error) {
	main, rawFrag, hasFrag := strings.Cut(rest, "#")
	frag := Fragment{Raw: rawFrag, Present: hasFrag}

	main, rawQuery, hasQuery := strings.Cut(main, "?")
	query := map[string]string{}
	if hasQuery {
		query = parseQuery(rawQuery)
	}

	user, host, ok := cutSingle(main, "@")
	if !ok {
		return "", HostPort{}, nil, Fragment{}, malformed(kind, "缺少唯一的 @ 分隔符")
	}
	return user, splitHostPort(host), query, frag, nil
}

// parseQuery keeps only pairs with exactly one '='. Later keys override
// earlier ones. Values are not unescaped.
func parseQuery(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if strings.Count(pair, "=") != 1 {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		out[k] = v
	}
	return out
}

// cutSingle splits s around sep only when sep occurs exactly once.
func cutSingle(s, sep string) (before, after string, ok bool) {
	if strings.Count(s, sep) != 1 {
		return "", "", false
	}
	return strings.Cut(s, sep)
}

func splitHostPort(s string) HostPort {
	parts := strings.Split(s, ":")
	hp := HostPort{Host: parts[0], Exact: len(parts) == 2}
	if len(parts) > 1 {
		hp.Port = parts[1]
	}
	return hp
}

func malformed(kind Kind, message string) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    "LINK_MALFORMED",
			Message: message,
			Stage:   "parse_link",
			Snippet: string(kind),
		},
		Cause: ErrMalformed,
	}
}

// SchemeOf returns the "xxx://" prefix of s, or "" when there is none.
// It is safe to log: it never includes credentials.
func SchemeOf(s string) string {
	i := strings.Index(s, "://")
	if i <= 0 || i > 16 {
		return ""
	}
	return s[:i+3]
}

// Package display derives the (name, server) pair shown in config lists.
// Extraction never fails: anything it cannot read degrades to a fixed
// fallback pair.
package display

import (
	"github.com/samber/lo"

	"github.com/John-Robertt/v2ray-mvp/internal/link"
	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

const (
	DefaultJSONName        = "JSON Config"
	DefaultShadowsocksName = "Shadowsocks Config"
	DefaultVLESSName       = "VLESS Config"
	DefaultVMessName       = "VMess Config"
	DefaultTrojanName      = "Trojan Config"

	FallbackName  = "Custom Config"
	UnknownServer = "Unknown"
)

// Fallback is returned for input that is unrecognized, or recognized but
// structurally broken.
func Fallback() model.Display {
	return model.Display{Name: FallbackName, Server: UnknownServer}
}

// Extract returns the display pair for input.
func Extract(input string) model.Display {
	l, err := link.Parse(input)
	if err != nil {
		return Fallback()
	}
	return FromLink(l)
}

// FromLink is Extract for an already classified link.
func FromLink(l link.Link) model.Display {
	switch v := l.(type) {
	case link.JSON:
		return fromJSON(v)
	case link.Shadowsocks:
		server, ok := v.Server()
		if !ok {
			return Fallback()
		}
		return fromURI(v.Fragment, server, DefaultShadowsocksName)
	case link.VLESS:
		return fromURI(v.Fragment, v.Addr.Host, DefaultVLESSName)
	case link.Trojan:
		return fromURI(v.Fragment, v.Addr.Host, DefaultTrojanName)
	case link.VMess:
		return fromVMess(v)
	default:
		return Fallback()
	}
}

// fromURI names the link after its fragment. A fragment that is present but
// fails to decode yields an empty name, not the default.
func fromURI(frag link.Fragment, server, defaultName string) model.Display {
	name := defaultName
	if frag.Present {
		name = frag.Decode()
	}
	return model.Display{Name: name, Server: server}
}

func fromJSON(j link.JSON) model.Display {
	doc, err := j.Document()
	if err != nil {
		return model.Display{Name: DefaultJSONName, Server: UnknownServer}
	}
	return model.Display{Name: jsonName(doc), Server: jsonServer(doc)}
}

// jsonName prefers "ps" over "name". A key that exists with a non-string
// value still shadows the next candidate.
func jsonName(doc map[string]any) string {
	for _, key := range []string{"ps", "name"} {
		v, ok := doc[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		return lo.Ternary(ok, s, DefaultJSONName)
	}
	return DefaultJSONName
}

func jsonServer(doc map[string]any) string {
	v, ok := dig(doc, "outbounds", 0, "settings", "vnext", 0, "address")
	if !ok {
		return UnknownServer
	}
	s, ok := v.(string)
	return lo.Ternary(ok, s, UnknownServer)
}

// dig walks a decoded JSON value. String steps index objects, int steps
// index arrays.
func dig(v any, path ...any) (any, bool) {
	cur := v
	for _, step := range path {
		switch k := step.(type) {
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = obj[k]; !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]any)
			if !ok || k < 0 || k >= len(arr) {
				return nil, false
			}
			cur = arr[k]
		default:
			return nil, false
		}
	}
	return cur, true
}

func fromVMess(v link.VMess) model.Display {
	doc, err := v.Decode()
	if err != nil {
		return Fallback()
	}
	name, ok := doc.String("ps")
	if !ok {
		name = DefaultVMessName
	}
	server, ok := doc.String("add")
	if !ok {
		server = UnknownServer
	}
	return model.Display{Name: name, Server: server}
}

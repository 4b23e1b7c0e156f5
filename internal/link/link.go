// Package link classifies a raw share link into one of the supported
// encodings. It performs structural splitting only: no I/O, no protocol
// validation.
package link

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

type Kind string

const (
	KindJSON        Kind = "json"
	KindShadowsocks Kind = "shadowsocks"
	KindVLESS       Kind = "vless"
	KindVMess       Kind = "vmess"
	KindTrojan      Kind = "trojan"
)

const (
	SchemeShadowsocks = "ss://"
	SchemeVLESS       = "vless://"
	SchemeVMess       = "vmess://"
	SchemeTrojan      = "trojan://"
)

// Link is a closed sum type: JSON, Shadowsocks, VLESS, VMess or Trojan.
type Link interface {
	Kind() Kind
	link()
}

// HostPort is the segment after '@' split on ':'. Host is always the first
// segment; Exact reports whether there were exactly two segments.
type HostPort struct {
	Host  string
	Port  string
	Exact bool
}

// Fragment is the text after '#', still percent-encoded.
type Fragment struct {
	Raw     string
	Present bool
}

// Decode percent-decodes the fragment. A '%' that starts no valid escape
// is kept as is; a result that is not UTF-8 yields "".
func (f Fragment) Decode() string {
	return percentDecode(f.Raw)
}

// JSON is a document that already looks like a runtime config.
type JSON struct {
	Raw string
}

// Shadowsocks keeps two views of the link body. The endpoint is read from
// the text before the first '#', the display name and server from around
// the last '#'. They differ only when the name itself contains '#'.
type Shadowsocks struct {
	Body     string // before the first '#'
	Label    string // before the last '#'
	Fragment Fragment
}

// Endpoint splits Body into the base64 userinfo (method:password) and the
// address. ok is false unless Body has exactly one '@'.
func (s Shadowsocks) Endpoint() (userInfo string, addr HostPort, ok bool) {
	user, host, ok := cutSingle(s.Body, "@")
	if !ok {
		return "", HostPort{}, false
	}
	return user, splitHostPort(host), true
}

// Server is the host part of Label. ok is false unless Label has exactly
// one '@'.
func (s Shadowsocks) Server() (string, bool) {
	_, host, ok := cutSingle(s.Label, "@")
	if !ok {
		return "", false
	}
	return splitHostPort(host).Host, true
}

type VLESS struct {
	UUID     string
	Addr     HostPort
	Query    map[string]string
	Fragment Fragment
}

type VMess struct {
	Payload string // base64 of a JSON value
}

type Trojan struct {
	Password string
	Addr     HostPort
	Query    map[string]string
	Fragment Fragment
}

func (JSON) Kind() Kind        { return KindJSON }
func (Shadowsocks) Kind() Kind { return KindShadowsocks }
func (VLESS) Kind() Kind       { return KindVLESS }
func (VMess) Kind() Kind       { return KindVMess }
func (Trojan) Kind() Kind      { return KindTrojan }

func (JSON) link()        {}
func (Shadowsocks) link() {}
func (VLESS) link()       {}
func (VMess) link()       {}
func (Trojan) link()      {}

var (
	errNotObject    = errors.New("json document is not an object")
	errTrailingData = errors.New("unexpected data after json value")
)

// Document parses the raw text as a JSON object.
func (j JSON) Document() (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(j.Raw), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNotObject
	}
	return doc, nil
}

// VMessDocument is the decoded vmess payload. Only the fields the extractor
// and converter read have accessors.
type VMessDocument map[string]any

// Decode base64-decodes the payload and parses it as exactly one JSON
// value. A value that is not an object decodes to an empty document, so
// every field takes its default.
func (v VMess) Decode() (VMessDocument, error) {
	text, err := decodeB64UTF8(v.Payload)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	doc, ok := val.(map[string]any)
	if !ok {
		return VMessDocument{}, nil
	}
	return VMessDocument(doc), nil
}

// String returns the value of key when it is a JSON string.
func (d VMessDocument) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Port returns "port" when it is an integer in 0..65535. Numeric strings
// are accepted since many generators quote the port.
func (d VMessDocument) Port() (uint16, bool) {
	var raw string
	switch p := d["port"].(type) {
	case json.Number:
		raw = p.String()
	case string:
		raw = strings.TrimSpace(p)
	default:
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

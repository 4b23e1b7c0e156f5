// Package convert turns a share link into the runtime config document the
// proxy engine loads.
package convert

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/John-Robertt/v2ray-mvp/internal/link"
	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

// Converter is immutable after New and safe for concurrent use.
type Converter struct {
	d Defaults
}

func New(d Defaults) *Converter {
	return &Converter{d: StandardDefaults().Merge(d)}
}

func (c *Converter) Defaults() Defaults { return c.d }

var standard = New(StandardDefaults())

// Convert uses the standard defaults.
func Convert(input string) (string, error) {
	return standard.Convert(input)
}

// Convert returns the runtime config for input as compact JSON. JSON input
// is returned trimmed but otherwise verbatim, so converting a converted
// document is a no-op.
func (c *Converter) Convert(input string) (string, error) {
	l, err := link.Parse(input)
	if err != nil {
		return "", Unparsed(input, err)
	}
	return c.ConvertLink(l)
}

// Unparsed wraps a link.Parse failure for input as an unsupported-format error.
func Unparsed(input string, err error) error {
	return unsupported(link.SchemeOf(strings.TrimSpace(input)), err)
}

// ConvertLink is Convert for an already classified link.
func (c *Converter) ConvertLink(l link.Link) (string, error) {
	if j, ok := l.(link.JSON); ok {
		return j.Raw, nil
	}
	cfg, err := c.build(l)
	if err != nil {
		return "", unsupported(string(l.Kind()), err)
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", unsupported(string(l.Kind()), err)
	}
	return string(b), nil
}

func (c *Converter) build(l link.Link) (*model.RuntimeConfig, error) {
	switch v := l.(type) {
	case link.Shadowsocks:
		return c.shadowsocks(v)
	case link.VLESS:
		return c.vless(v)
	case link.VMess:
		return c.vmess(v)
	case link.Trojan:
		return nil, ErrNoConverter
	default:
		return nil, fallThrough(l.Kind(), "no runtime form", nil)
	}
}

func (c *Converter) shadowsocks(v link.Shadowsocks) (*model.RuntimeConfig, error) {
	user, addr, ok := v.Endpoint()
	if !ok {
		return nil, fallThrough(link.KindShadowsocks, "body has no single @", link.ErrMalformed)
	}
	userInfo, err := link.DecodeBase64Text(user)
	if err != nil {
		return nil, fallThrough(link.KindShadowsocks, "userinfo is not base64 text", err)
	}
	method, password, ok := strings.Cut(userInfo, ":")
	if !ok {
		return nil, fallThrough(link.KindShadowsocks, "userinfo has no method:password", nil)
	}
	if !addr.Exact {
		return nil, fallThrough(link.KindShadowsocks, "address is not host:port", nil)
	}
	return c.wrap(model.Outbound{
		Protocol: "shadowsocks",
		Settings: model.ShadowsocksSettings{
			Servers: []model.ShadowsocksServer{{
				Address:  addr.Host,
				Port:     c.port(addr.Port),
				Method:   method,
				Password: password,
			}},
		},
	}), nil
}

func (c *Converter) vless(v link.VLESS) (*model.RuntimeConfig, error) {
	if !v.Addr.Exact {
		return nil, fallThrough(link.KindVLESS, "address is not host:port", nil)
	}
	return c.wrap(model.Outbound{
		Protocol: "vless",
		Settings: model.VLESSSettings{
			Vnext: []model.VLESSServer{{
				Address: v.Addr.Host,
				Port:    c.port(v.Addr.Port),
				Users: []model.VLESSUser{{
					ID:         v.UUID,
					Flow:       lo.ValueOr(v.Query, "flow", c.d.VLESSFlow),
					Encryption: c.d.VLESSEncryption,
				}},
			}},
		},
		StreamSettings: &model.StreamSettings{
			Network:  c.d.VLESSNetwork,
			Security: lo.ValueOr(v.Query, "security", c.d.VLESSSecurity),
			TLSSettings: &model.TLSSettings{
				ServerName: lo.ValueOr(v.Query, "sni", c.d.VLESSSNI),
			},
		},
	}), nil
}

func (c *Converter) vmess(v link.VMess) (*model.RuntimeConfig, error) {
	doc, err := v.Decode()
	if err != nil {
		return nil, fallThrough(link.KindVMess, "payload is not a single base64 json value", err)
	}
	address, _ := doc.String("add")
	id, _ := doc.String("id")
	tls, _ := doc.String("tls")
	network, ok := doc.String("net")
	if !ok {
		network = c.d.VMessNetwork
	}
	port := c.d.FallbackPort
	if p, ok := doc.Port(); ok {
		port = int(p)
	}
	return c.wrap(model.Outbound{
		Protocol: "vmess",
		Settings: model.VMessSettings{
			Vnext: []model.VMessServer{{
				Address: address,
				Port:    port,
				Users:   []model.VMessUser{{ID: id, AlterID: 0}},
			}},
		},
		StreamSettings: &model.StreamSettings{
			Network:  network,
			Security: lo.Ternary(tls == "tls", "tls", "none"),
		},
	}), nil
}

func (c *Converter) wrap(out model.Outbound) *model.RuntimeConfig {
	return &model.RuntimeConfig{
		Inbounds: []model.Inbound{{
			Port:     c.d.InboundPort,
			Protocol: c.d.InboundProtocol,
			Settings: model.InboundSettings{Auth: c.d.InboundAuth},
		}},
		Outbounds: []model.Outbound{out},
	}
}

func (c *Converter) port(raw string) int {
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return c.d.FallbackPort
	}
	return int(n)
}

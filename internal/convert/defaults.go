package convert

import "github.com/samber/lo"

// Defaults holds every literal the converter fills in when a link leaves a
// field out. Field names double as the keys of the "conversion" section of
// the config file.
type Defaults struct {
	InboundPort     int    `yaml:"inbound-port" json:"inbound_port"`
	InboundProtocol string `yaml:"inbound-protocol" json:"inbound_protocol"`
	InboundAuth     string `yaml:"inbound-auth" json:"inbound_auth"`

	// FallbackPort replaces a port that is missing or does not fit in 16 bits.
	FallbackPort int `yaml:"fallback-port" json:"fallback_port"`

	VLESSFlow       string `yaml:"vless-flow" json:"vless_flow"`
	VLESSSecurity   string `yaml:"vless-security" json:"vless_security"`
	VLESSSNI        string `yaml:"vless-sni" json:"vless_sni"`
	VLESSNetwork    string `yaml:"vless-network" json:"vless_network"`
	VLESSEncryption string `yaml:"vless-encryption" json:"vless_encryption"`

	VMessNetwork string `yaml:"vmess-network" json:"vmess_network"`
}

func StandardDefaults() Defaults {
	return Defaults{
		InboundPort:     1080,
		InboundProtocol: "socks",
		InboundAuth:     "noauth",
		FallbackPort:    443,
		VLESSFlow:       "xtls-rprx-vision",
		VLESSSecurity:   "reality",
		VLESSSNI:        "tesla.com",
		VLESSNetwork:    "tcp",
		VLESSEncryption: "none",
		VMessNetwork:    "tcp",
	}
}

// Merge returns d with every non-zero field of override applied.
func (d Defaults) Merge(override Defaults) Defaults {
	return Defaults{
		InboundPort:     lo.CoalesceOrEmpty(override.InboundPort, d.InboundPort),
		InboundProtocol: lo.CoalesceOrEmpty(override.InboundProtocol, d.InboundProtocol),
		InboundAuth:     lo.CoalesceOrEmpty(override.InboundAuth, d.InboundAuth),
		FallbackPort:    lo.CoalesceOrEmpty(override.FallbackPort, d.FallbackPort),
		VLESSFlow:       lo.CoalesceOrEmpty(override.VLESSFlow, d.VLESSFlow),
		VLESSSecurity:   lo.CoalesceOrEmpty(override.VLESSSecurity, d.VLESSSecurity),
		VLESSSNI:        lo.CoalesceOrEmpty(override.VLESSSNI, d.VLESSSNI),
		VLESSNetwork:    lo.CoalesceOrEmpty(override.VLESSNetwork, d.VLESSNetwork),
		VLESSEncryption: lo.CoalesceOrEmpty(override.VLESSEncryption, d.VLESSEncryption),
		VMessNetwork:    lo.CoalesceOrEmpty(override.VMessNetwork, d.VMessNetwork),
	}
}

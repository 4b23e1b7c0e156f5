package model

// RuntimeConfig is the document handed to the external proxy engine:
// exactly one local inbound and exactly one outbound.
type RuntimeConfig struct {
	Inbounds  []Inbound  `json:"inbounds"`
	Outbounds []Outbound `json:"outbounds"`
}

type Inbound struct {
	Port     int             `json:"port"`
	Protocol string          `json:"protocol"`
	Settings InboundSettings `json:"settings"`
}

type InboundSettings struct {
	Auth string `json:"auth"`
}

// Outbound describes the remote endpoint. Settings holds one of
// ShadowsocksSettings, VLESSSettings or VMessSettings.
type Outbound struct {
	Protocol       string          `json:"protocol"`
	Settings       any             `json:"settings"`
	StreamSettings *StreamSettings `json:"streamSettings,omitempty"`
}

type ShadowsocksSettings struct {
	Servers []ShadowsocksServer `json:"servers"`
}

type ShadowsocksServer struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Method   string `json:"method"`
	Password string `json:"password"`
}

type VLESSSettings struct {
	Vnext []VLESSServer `json:"vnext"`
}

type VLESSServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []VLESSUser `json:"users"`
}

type VLESSUser struct {
	ID         string `json:"id"`
	Flow       string `json:"flow"`
	Encryption string `json:"encryption"`
}

type VMessSettings struct {
	Vnext []VMessServer `json:"vnext"`
}

type VMessServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []VMessUser `json:"users"`
}

type VMessUser struct {
	ID      string `json:"id"`
	AlterID int    `json:"alterId"`
}

type StreamSettings struct {
	Network     string       `json:"network"`
	Security    string       `json:"security"`
	TLSSettings *TLSSettings `json:"tlsSettings,omitempty"`
}

type TLSSettings struct {
	ServerName string `json:"serverName"`
}

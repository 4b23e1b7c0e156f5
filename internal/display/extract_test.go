package display

import (
	"encoding/base64"
	"testing"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

func vmessLink(payload string) string {
	return "vmess://" + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  model.Display
	}{
		{
			name:  "ss",
			input: "ss://YWVzLTI1Ni1nY206cGFzcw==@example.com:8443#MyNode",
			want:  model.Display{Name: "MyNode", Server: "example.com"},
		},
		{
			name:  "ss without fragment",
			input: "ss://YWVzLTI1Ni1nY206cGFzcw==@example.com:8443",
			want:  model.Display{Name: DefaultShadowsocksName, Server: "example.com"},
		},
		{
			name:  "ss percent encoded name",
			input: "ss://abc@h:1#%E9%A6%99%E6%B8%AF%2001",
			want:  model.Display{Name: "香港 01", Server: "h"},
		},
		{
			name:  "ss bad escape kept literally",
			input: "ss://abc@h:1#bad%zz",
			want:  model.Display{Name: "bad%zz", Server: "h"},
		},
		{
			name:  "ss literal percent",
			input: "ss://abc@h:1#50%OFF",
			want:  model.Display{Name: "50%OFF", Server: "h"},
		},
		{
			name:  "ss invalid utf8 yields empty name",
			input: "ss://abc@h:1#%ff",
			want:  model.Display{Name: "", Server: "h"},
		},
		{
			name:  "ss name containing hash",
			input: "ss://YWVzLTI1Ni1nY206cGFzcw==@example.com:8443#Node#1",
			want:  model.Display{Name: "1", Server: "example.com"},
		},
		{
			name:  "ss @ only before last hash",
			input: "ss://abc#x@h:1#n",
			want:  model.Display{Name: "n", Server: "h"},
		},
		{
			name:  "ss @ only before first hash",
			input: "ss://abc@h:1#x@y#n",
			want:  Fallback(),
		},
		{
			name:  "ss server without port",
			input: "ss://abc@host-only",
			want:  model.Display{Name: DefaultShadowsocksName, Server: "host-only"},
		},
		{
			name:  "ss broken @ split",
			input: "ss://no-at-sign#x",
			want:  Fallback(),
		},
		{
			name:  "vless",
			input: "vless://11111111-1111-1111-1111-111111111111@host:443?flow=xtls-rprx-vision&sni=example.org#Node1",
			want:  model.Display{Name: "Node1", Server: "host"},
		},
		{
			name:  "vless default name",
			input: "vless://u@host:443?security=tls",
			want:  model.Display{Name: DefaultVLESSName, Server: "host"},
		},
		{
			name:  "trojan",
			input: "trojan://secret@t.example:443?sni=x#T%201",
			want:  model.Display{Name: "T 1", Server: "t.example"},
		},
		{
			name:  "vless trailing percent",
			input: "vless://u@h:1#100%",
			want:  model.Display{Name: "100%", Server: "h"},
		},
		{
			name:  "trojan default name",
			input: "trojan://secret@t.example:443",
			want:  model.Display{Name: DefaultTrojanName, Server: "t.example"},
		},
		{
			name:  "vmess",
			input: vmessLink(`{"add":"h","port":80,"id":"u","net":"ws","tls":"tls","ps":"VM"}`),
			want:  model.Display{Name: "VM", Server: "h"},
		},
		{
			name:  "vmess defaults",
			input: vmessLink(`{"port":80}`),
			want:  model.Display{Name: DefaultVMessName, Server: UnknownServer},
		},
		{
			name:  "vmess non string fields",
			input: vmessLink(`{"ps":1,"add":["h"]}`),
			want:  model.Display{Name: DefaultVMessName, Server: UnknownServer},
		},
		{
			name:  "vmess array payload",
			input: vmessLink(`[1]`),
			want:  model.Display{Name: DefaultVMessName, Server: UnknownServer},
		},
		{
			name:  "vmess null payload",
			input: vmessLink(`null`),
			want:  model.Display{Name: DefaultVMessName, Server: UnknownServer},
		},
		{
			name:  "vmess trailing data",
			input: vmessLink(`{"add":"h","ps":"VM"} x`),
			want:  Fallback(),
		},
		{
			name:  "vmess bad base64",
			input: "vmess://%%%",
			want:  Fallback(),
		},
		{
			name:  "vmess not json",
			input: vmessLink("hello"),
			want:  Fallback(),
		},
		{
			name:  "json ps",
			input: `{"ps":"P","name":"N","outbounds":[{"settings":{"vnext":[{"address":"a.example"}]}}]}`,
			want:  model.Display{Name: "P", Server: "a.example"},
		},
		{
			name:  "json name",
			input: `{"name":"N"}`,
			want:  model.Display{Name: "N", Server: UnknownServer},
		},
		{
			name:  "json non string ps shadows name",
			input: `{"ps":3,"name":"N"}`,
			want:  model.Display{Name: DefaultJSONName, Server: UnknownServer},
		},
		{
			name:  "json partial path",
			input: `{"outbounds":[{"settings":{"vnext":[]}}]}`,
			want:  model.Display{Name: DefaultJSONName, Server: UnknownServer},
		},
		{
			name:  "json shadowsocks outbound has no vnext",
			input: `{"outbounds":[{"protocol":"shadowsocks","settings":{"servers":[{"address":"s"}]}}]}`,
			want:  model.Display{Name: DefaultJSONName, Server: UnknownServer},
		},
		{
			name:  "json unparseable",
			input: "{not json",
			want:  model.Display{Name: DefaultJSONName, Server: UnknownServer},
		},
		{
			name:  "unknown scheme",
			input: "not-a-known-scheme",
			want:  Fallback(),
		},
		{
			name:  "empty",
			input: "",
			want:  Fallback(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.input)
			if got != tt.want {
				t.Fatalf("got=%+v, want=%+v", got, tt.want)
			}
		})
	}
}

func TestFallbackValues(t *testing.T) {
	fb := Fallback()
	if fb.Name != "Custom Config" || fb.Server != "Unknown" {
		t.Fatalf("fallback=%+v", fb)
	}
}

func TestDig(t *testing.T) {
	doc := map[string]any{
		"a": []any{map[string]any{"b": "c"}},
	}
	if v, ok := dig(doc, "a", 0, "b"); !ok || v != "c" {
		t.Fatalf("dig=%v ok=%v, want c", v, ok)
	}
	if _, ok := dig(doc, "a", 1, "b"); ok {
		t.Fatalf("expected miss for out of range index")
	}
	if _, ok := dig(doc, "a", "b"); ok {
		t.Fatalf("expected miss for string step on array")
	}
}

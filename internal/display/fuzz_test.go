package display

import (
	"testing"

	"github.com/John-Robertt/v2ray-mvp/internal/link"
	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

func FuzzExtract(f *testing.F) {
	seed := []string{
		"",
		"{",
		"[1]",
		`{"ps":"x","outbounds":[{"settings":{"vnext":[{"address":"h"}]}}]}`,
		"ss://YWVzLTI1Ni1nY206cGFzcw==@example.com:8443#MyNode",
		"ss://abc@h:1#x@y#n",
		"vless://u@h:1?a=b#%",
		"vmess://eyJhZGQiOiJoIn0=",
		"trojan://p@h:1#%E4%BD%A0",
		"vmess://",
	}
	for _, s := range seed {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		d := Extract(input)
		if again := Extract(input); again != d {
			t.Fatalf("Extract(%q) = %+v then %+v", input, d, again)
		}

		l, err := link.Parse(input)
		if err != nil {
			if d != Fallback() {
				t.Fatalf("Extract(%q) = %+v, want fallback for parse error %v", input, d, err)
			}
			return
		}
		switch v := l.(type) {
		case link.JSON:
			if _, err := v.Document(); err != nil {
				want := model.Display{Name: DefaultJSONName, Server: UnknownServer}
				if d != want {
					t.Fatalf("Extract(%q) = %+v, want %+v", input, d, want)
				}
			}
		case link.VMess:
			if _, err := v.Decode(); err != nil && d != Fallback() {
				t.Fatalf("Extract(%q) = %+v, want fallback for %v", input, d, err)
			}
		case link.Shadowsocks:
			server, ok := v.Server()
			if !ok {
				if d != Fallback() {
					t.Fatalf("Extract(%q) = %+v, want fallback", input, d)
				}
				return
			}
			checkURI(t, input, d, v.Fragment, server, DefaultShadowsocksName)
		case link.VLESS:
			checkURI(t, input, d, v.Fragment, v.Addr.Host, DefaultVLESSName)
		case link.Trojan:
			checkURI(t, input, d, v.Fragment, v.Addr.Host, DefaultTrojanName)
		}
	})
}

func checkURI(t *testing.T, input string, d model.Display, frag link.Fragment, server, defaultName string) {
	t.Helper()
	if d.Server != server {
		t.Fatalf("Extract(%q).Server = %q, want %q", input, d.Server, server)
	}
	want := defaultName
	if frag.Present {
		want = frag.Decode()
	}
	if d.Name != want {
		t.Fatalf("Extract(%q).Name = %q, want %q", input, d.Name, want)
	}
}

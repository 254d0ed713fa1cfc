package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.10 ", ""})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	if len(proxies) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(proxies))
	}
	if !proxies.contains("10.1.2.3") || !proxies.contains("192.0.2.10") || proxies.contains("192.0.2.11") {
		t.Fatalf("unexpected membership for %v", proxies)
	}

	if _, err := ParseTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for invalid entry")
	}
}

func TestRealIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}

	tests := []struct {
		name       string
		trusted    TrustedProxies
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{"no trusted proxies", nil, "192.0.2.1:1234", "198.51.100.9", "", "192.0.2.1"},
		{"untrusted peer", proxies, "192.0.2.1:1234", "198.51.100.9", "", "192.0.2.1"},
		{"trusted peer", proxies, "10.0.0.5:1234", "198.51.100.9", "", "198.51.100.9"},
		{"spoofed leftmost hop", proxies, "10.0.0.5:1234", "1.2.3.4, 198.51.100.9, 10.0.0.7", "", "198.51.100.9"},
		{"real ip header", proxies, "10.0.0.5:1234", "", "198.51.100.20", "198.51.100.20"},
		{"garbage header", proxies, "10.0.0.5:1234", "nonsense", "", "10.0.0.5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			handler := RealIP(tc.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = clientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Fatalf("expected client %q, got %q", tc.want, got)
			}
		})
	}
}

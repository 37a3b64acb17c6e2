package audit

import (
	"net/http/httptest"
	"testing"
)

func TestWithRequestNetworkFields(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		wantIP     string
	}{
		{name: "forwarded chain", forwarded: "10.1.2.3, 172.16.0.9", remoteAddr: "127.0.0.1:9000", wantIP: "10.1.2.3"},
		{name: "real ip", realIP: " 10.9.8.7 ", remoteAddr: "127.0.0.1:9000", wantIP: "10.9.8.7"},
		{name: "peer address", remoteAddr: "192.168.4.20:51234", wantIP: "192.168.4.20"},
		{name: "peer without port", remoteAddr: "192.168.4.20", wantIP: "192.168.4.20"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/v1/stock/transactions", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			r.Header.Set("User-Agent", "pos-terminal/2.4")

			entry := Entry{Action: "stock.commit"}.WithRequest(r)
			if entry.IP != tc.wantIP {
				t.Fatalf("ip = %q, want %q", entry.IP, tc.wantIP)
			}
			if entry.UserAgent != "pos-terminal/2.4" {
				t.Fatalf("user agent = %q", entry.UserAgent)
			}
		})
	}
}

package security

import (
	"errors"
	"net"
	"testing"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://hh.ru/vacancy/1", false},
		{"public ip", "http://93.184.216.34/", false},
		{"ftp scheme", "ftp://example.com/file", true},
		{"no host", "https:///path", true},
		{"localhost", "http://localhost:8080/", true},
		{"localhost subdomain", "http://api.localhost/", true},
		{"loopback", "http://127.0.0.1/", true},
		{"rfc1918", "http://10.1.2.3/", true},
		{"172 range", "http://172.20.0.1/", true},
		{"172 outside range", "http://172.32.0.1/", false},
		{"metadata", "http://169.254.169.254/latest/meta-data", true},
		{"gcp metadata", "http://metadata.google.internal/", true},
		{"ipv6 loopback", "http://[::1]/", true},
		{"ipv6 ula", "http://[fd00::1]/", true},
		{"cgnat", "http://100.64.1.1/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PublicURL(tt.url, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("PublicURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestPublicURL_Resolver(t *testing.T) {
	resolve := func(host string) ([]net.IP, error) {
		if host == "internal.example.com" {
			return []net.IP{net.ParseIP("10.0.0.5")}, nil
		}
		if host == "broken.example.com" {
			return nil, errors.New("no such host")
		}
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}

	if _, err := PublicURL("https://internal.example.com/job", resolve); !errors.Is(err, ErrNonPublicURL) {
		t.Errorf("expected ErrNonPublicURL, got %v", err)
	}
	if _, err := PublicURL("https://jobs.example.com/job", resolve); err != nil {
		t.Errorf("public host rejected: %v", err)
	}
	if _, err := PublicURL("https://broken.example.com/job", resolve); err != nil {
		t.Errorf("resolution failure should not reject: %v", err)
	}
}

func TestIsPrivateIP_Nil(t *testing.T) {
	if !IsPrivateIP(nil) {
		t.Error("nil IP must count as private")
	}
}

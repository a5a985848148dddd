package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitTLS(t *testing.T) {
	tests := []struct {
		name      string
		cert, key string
		enabled   bool
	}{
		{"no env vars", "", "", false},
		{"only cert", "/path/to/cert.pem", "", false},
		{"only key", "", "/path/to/key.pem", false},
		{"both", "/path/to/cert.pem", "/path/to/key.pem", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOCKBOX_TLS_CERT", tt.cert)
			t.Setenv("LOCKBOX_TLS_KEY", tt.key)
			SetTLSConfigForTest(nil)

			InitTLS()

			if IsTLSEnabled() != tt.enabled {
				t.Errorf("IsTLSEnabled() = %v, want %v", IsTLSEnabled(), tt.enabled)
			}
			if tt.enabled && GetTLSConfig().CertFile != tt.cert {
				t.Errorf("expected cert %q, got %q", tt.cert, GetTLSConfig().CertFile)
			}
		})
	}
	SetTLSConfigForTest(nil)
}

func TestLoadTLSConfig_Disabled(t *testing.T) {
	SetTLSConfigForTest(nil)
	cfg, err := LoadTLSConfig()
	if err != nil || cfg != nil {
		t.Errorf("expected nil, nil when disabled, got %v, %v", cfg, err)
	}
}

func TestLoadTLSConfig_MissingFiles(t *testing.T) {
	SetTLSConfigForTest(&TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"})
	defer SetTLSConfigForTest(nil)

	if _, err := LoadTLSConfig(); err == nil {
		t.Error("expected error for missing key pair")
	}
}

func TestLoadTLSConfig_ValidPair(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir)

	SetTLSConfigForTest(&TLSConfig{CertFile: certFile, KeyFile: keyFile})
	defer SetTLSConfigForTest(nil)

	cfg, err := LoadTLSConfig()
	if err != nil {
		t.Fatalf("LoadTLSConfig: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(cfg.Certificates))
	}
	if cfg.MinVersion < 0x0303 {
		t.Errorf("expected TLS 1.2 minimum, got %#x", cfg.MinVersion)
	}
}

func writeSelfSigned(t *testing.T, dir string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "lockbox.local"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"lockbox.local"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

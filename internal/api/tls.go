package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSConfig holds certificate paths for serving HTTPS.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

var tlsConfig *TLSConfig

// InitTLS reads LOCKBOX_TLS_CERT and LOCKBOX_TLS_KEY. Both must be set.
// Kiosk tablets usually talk plain HTTP on the box's own network, so TLS is off by default.
func InitTLS() {
	tlsConfig = nil
	certFile := os.Getenv("LOCKBOX_TLS_CERT")
	keyFile := os.Getenv("LOCKBOX_TLS_KEY")
	if certFile != "" && keyFile != "" {
		tlsConfig = &TLSConfig{CertFile: certFile, KeyFile: keyFile}
	}
}

// IsTLSEnabled returns true if TLS is configured.
func IsTLSEnabled() bool {
	return tlsConfig != nil && tlsConfig.CertFile != "" && tlsConfig.KeyFile != ""
}

// GetTLSConfig returns the current TLS configuration (may be nil).
func GetTLSConfig() *TLSConfig {
	return tlsConfig
}

// LoadTLSConfig builds a tls.Config from the configured key pair.
// Returns nil, nil when TLS is disabled.
func LoadTLSConfig() (*tls.Config, error) {
	if !IsTLSEnabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetTLSConfigForTest allows tests to set TLS config directly.
func SetTLSConfigForTest(cfg *TLSConfig) {
	tlsConfig = cfg
}

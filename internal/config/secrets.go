package config

import (
	"fmt"
	"os"
	"strings"
)

// Secrets holds credentials that never live in lockbox.yaml.
type Secrets struct {
	MQTTPassword  string
	AdminUser     string
	AdminPassword string
}

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, reads the secret from that file path.
// Otherwise falls back to the value of envName.
// Returns empty string if neither is set.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(envName), nil
}

// LoadSecrets resolves every LOCKBOX_* secret. The first unreadable file aborts.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	targets := []struct {
		env string
		dst *string
	}{
		{"LOCKBOX_MQTT_PASS", &s.MQTTPassword},
		{"LOCKBOX_ADMIN_USER", &s.AdminUser},
		{"LOCKBOX_ADMIN_PASS", &s.AdminPassword},
	}
	for _, t := range targets {
		v, err := ResolveSecret(t.env)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}
	return &s, nil
}

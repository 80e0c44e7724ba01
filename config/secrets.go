package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Secrets is a flattened secrets file. Nested sections become dotted
// paths, so
//
//	stripe:
//	  SECRET_KEY: sk_test_...
//
// is stored as "stripe.SECRET_KEY".
type Secrets map[string]string

// LoadSecretsFile reads a YAML secrets file.
func LoadSecretsFile(path string) (Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	return ParseSecrets(data)
}

// ParseSecrets parses YAML secrets content.
func ParseSecrets(data []byte) (Secrets, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}

	secrets := make(Secrets)
	flatten("", raw, secrets)
	return secrets, nil
}

func flatten(prefix string, node map[string]interface{}, out Secrets) {
	for k, v := range node {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		switch value := v.(type) {
		case map[string]interface{}:
			flatten(path, value, out)
		case nil:
		default:
			out[path] = fmt.Sprint(value)
		}
	}
}

// Lookup exposes the secrets as a configuration source. A key is found by
// its own name first, then by its section paths.
func (s Secrets) Lookup() Lookup {
	return func(name string, secretPaths []string) (string, bool) {
		if v, ok := s[name]; ok && v != "" {
			return v, true
		}
		for _, path := range secretPaths {
			if v, ok := s[path]; ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
}

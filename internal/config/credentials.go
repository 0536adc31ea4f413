// Package config: YAML credentials file loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leadpilot/leadpilot/internal/domain"
)

// credentialsFile is the on-disk shape of CREDENTIALS_FILE:
//
//	providers:
//	  openrouter:
//	    - secret: sk-or-...
//	      owner: growth-team
//	      metadata:
//	        tier: free
type credentialsFile struct {
	Providers map[string][]credentialEntry `yaml:"providers"`
}

type credentialEntry struct {
	Secret   string            `yaml:"secret"`
	Owner    string            `yaml:"owner"`
	Metadata map[string]string `yaml:"metadata"`
}

// LoadCredentialsFile parses a YAML credentials file. Unknown provider names
// are rejected so a typo does not silently drop keys.
func LoadCredentialsFile(path string) (map[domain.Provider][]domain.Credential, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadCredentialsFile: %w", err)
	}
	var f credentialsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("op=config.LoadCredentialsFile: parse: %w", err)
	}
	out := make(map[domain.Provider][]domain.Credential)
	for name, entries := range f.Providers {
		p := domain.Provider(name)
		if !p.Valid() {
			return nil, fmt.Errorf("op=config.LoadCredentialsFile: unknown provider %q: %w", name, domain.ErrInvalidArgument)
		}
		for _, e := range entries {
			if e.Secret == "" {
				continue
			}
			out[p] = append(out[p], domain.Credential{
				Secret:   e.Secret,
				OwnerID:  e.Owner,
				Metadata: e.Metadata,
			})
		}
	}
	return out, nil
}

// Credentials merges env keys with the optional credentials file.
func (c Config) Credentials() (map[domain.Provider][]domain.Credential, error) {
	merged := c.EnvCredentials()
	if c.CredentialsFile == "" {
		return merged, nil
	}
	fromFile, err := LoadCredentialsFile(c.CredentialsFile)
	if err != nil {
		return nil, err
	}
	for p, creds := range fromFile {
		merged[p] = append(merged[p], creds...)
	}
	return merged, nil
}

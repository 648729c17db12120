package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is a declarative bootstrap of roles and permissions for a tenant.
type Seed struct {
	Tenant      string      `yaml:"tenant"`
	Roles       []SeedEntry `yaml:"roles"`
	Permissions []SeedEntry `yaml:"permissions"`
}

// SeedEntry is one entity in a seed file.
type SeedEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SeedResult reports what a seed application did.
type SeedResult struct {
	Created int
	Skipped int // already existed
}

// LoadSeed parses a YAML seed document.
func LoadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if seed.Tenant == "" {
		return nil, fmt.Errorf("seed: tenant is required")
	}
	return &seed, nil
}

// LoadSeedFile parses a YAML seed file from disk.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// ApplySeed creates every entity named by the seed. Entities that already
// exist are skipped, so re-applying a seed is safe.
func (s *Store) ApplySeed(ctx context.Context, seed *Seed) (*SeedResult, error) {
	res := &SeedResult{}
	for _, r := range seed.Roles {
		_, err := s.CreateRole(ctx, seed.Tenant, r.Name, r.Description)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, ErrAlreadyExists):
			res.Skipped++
		default:
			return res, fmt.Errorf("seed role %q: %w", r.Name, err)
		}
	}
	for _, p := range seed.Permissions {
		_, err := s.CreatePermission(ctx, seed.Tenant, p.Name, p.Description)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, ErrAlreadyExists):
			res.Skipped++
		default:
			return res, fmt.Errorf("seed permission %q: %w", p.Name, err)
		}
	}
	return res, nil
}

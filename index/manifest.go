package index

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest within an index directory.
const ManifestFile = "manifest.yaml"

// PartType identifies the reader of a part file.
type PartType string

// Supported part types.
const (
	PartLengths       PartType = "lengths"
	PartLegacyLengths PartType = "legacy-lengths"
	PartIndicator     PartType = "indicator"
	PartPrior         PartType = "prior"
	PartPostings      PartType = "postings"
)

func (t PartType) isValid() bool {
	switch t {
	case PartLengths, PartLegacyLengths, PartIndicator, PartPrior, PartPostings:
		return true
	}
	return false
}

var errBadManifest = errors.New("index: bad manifest")

// Manifest describes the parts of an index directory.
type Manifest struct {
	Reader ReaderConfig `yaml:"reader"`
	Parts  []PartConfig `yaml:"parts"`
}

// ReaderConfig holds table reader settings shared by all parts.
type ReaderConfig struct {
	BlockCacheSize int `yaml:"blockCacheSize"`
}

// PartConfig describes a single part.
type PartConfig struct {
	Name string   `yaml:"name"`
	Type PartType `yaml:"type"`
	File string   `yaml:"file"`
	// Default is the value reported for documents without an entry,
	// only used by indicator and prior parts.
	Default string `yaml:"default"`
}

// LoadManifest reads a manifest file and applies environment overrides.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: reading manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest parses a YAML manifest, defaults are applied before and
// environment overrides after parsing.
func ParseManifest(data []byte) (*Manifest, error) {
	m := defaultManifest()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadManifest, err)
	}
	applyEnvOverrides(m)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the manifest for errors.
func (m *Manifest) Validate() error {
	if m.Reader.BlockCacheSize < 0 {
		return fmt.Errorf("%w: negative block cache size %d", errBadManifest, m.Reader.BlockCacheSize)
	}

	seen := make(map[string]struct{}, len(m.Parts))
	for i, p := range m.Parts {
		if p.Name == "" {
			return fmt.Errorf("%w: part #%d has no name", errBadManifest, i+1)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("%w: duplicate part %q", errBadManifest, p.Name)
		}
		seen[p.Name] = struct{}{}

		if !p.Type.isValid() {
			return fmt.Errorf("%w: part %q has unknown type %q", errBadManifest, p.Name, p.Type)
		}
		if p.File == "" {
			return fmt.Errorf("%w: part %q has no file", errBadManifest, p.Name)
		}
		if _, err := p.indicatorDefault(); err != nil {
			return err
		}
		if _, err := p.priorDefault(); err != nil {
			return err
		}
	}
	return nil
}

func (p PartConfig) indicatorDefault() (bool, error) {
	if p.Type != PartIndicator || p.Default == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(p.Default)
	if err != nil {
		return false, fmt.Errorf("%w: part %q has bad default %q", errBadManifest, p.Name, p.Default)
	}
	return v, nil
}

func (p PartConfig) priorDefault() (float64, error) {
	if p.Type != PartPrior || p.Default == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(p.Default, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: part %q has bad default %q", errBadManifest, p.Name, p.Default)
	}
	return v, nil
}

func defaultManifest() *Manifest {
	return &Manifest{
		Reader: ReaderConfig{
			BlockCacheSize: 64,
		},
	}
}

func applyEnvOverrides(m *Manifest) {
	if v := os.Getenv("SNINDEX_BLOCK_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.Reader.BlockCacheSize = n
		}
	}
}

package ldaptest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File describes a Builder in YAML.
type File struct {
	BaseDNs         []string         `yaml:"baseDNs"`
	Listen          []int            `yaml:"listen"`
	LDIF            []string         `yaml:"ldif,omitempty"`
	Resources       []string         `yaml:"resources,omitempty"`
	BindCredentials []BindCredential `yaml:"bindCredentials,omitempty"`
}

// BindCredential is an additional DN/password pair accepted by simple binds.
type BindCredential struct {
	DN       string `yaml:"dn"`
	Password string `yaml:"password"`
}

// Read a YAML fixture description and return a Builder configured from it.
//
// Relative ldif paths are taken relative to the directory of the YAML file;
// resources are searched in that directory after DefaultResourceRoot.
// Seed files from ldif come before those from resources.
func LoadFile(path string) (*Builder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse fixture file %s: %w", ErrConfiguration, path, err)
	}
	return f.Builder(filepath.Dir(path))
}

// Returns a Builder configured from f, resolving relative paths against dir.
func (f *File) Builder(dir string) (*Builder, error) {
	b := NewBuilder(f.BaseDNs...)
	for _, port := range f.Listen {
		b.Listen(port)
	}
	for _, p := range f.LDIF {
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		b.File(p)
	}
	b.ResourceRoot(dir)
	for _, name := range f.Resources {
		b.Resource(name)
	}
	for _, c := range f.BindCredentials {
		b.BindCredentials(c.DN, c.Password)
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

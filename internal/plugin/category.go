package plugin

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigItem describes one entry of a configuration category. String-typed
// flags mirror the host's configuration store.
type ConfigItem struct {
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type" yaml:"type"`
	Default     string `json:"default" yaml:"default"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Mandatory   string `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
	ReadOnly    string `json:"readonly,omitempty" yaml:"readonly,omitempty"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Category is a named set of configuration items.
type Category map[string]ConfigItem

// Clone returns a deep copy of the category.
func (c Category) Clone() Category {
	if c == nil {
		return nil
	}
	out := make(Category, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Value returns the effective value of key: the configured value, or the
// item's default when no value has been set.
func (c Category) Value(key string) (string, bool) {
	item, ok := c[key]
	if !ok {
		return "", false
	}
	if item.Value != "" {
		return item.Value, true
	}
	if item.Default != "" {
		return item.Default, true
	}
	return "", false
}

// Merge returns a copy of c with the given values applied. Unknown keys,
// writes to read-only items and blank values for mandatory items are
// rejected.
func (c Category) Merge(values map[string]string) (Category, error) {
	out := c.Clone()
	if out == nil {
		out = Category{}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		item, ok := out[key]
		if !ok {
			return nil, fmt.Errorf("unknown config item %q", key)
		}
		if item.ReadOnly == "true" {
			return nil, fmt.Errorf("config item %q is read-only", key)
		}
		if item.Mandatory == "true" && strings.TrimSpace(values[key]) == "" {
			return nil, fmt.Errorf("config item %q is mandatory", key)
		}
		item.Value = values[key]
		out[key] = item
	}
	return out, nil
}

// Equal reports whether both categories hold the same items.
func (c Category) Equal(other Category) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		o, ok := other[k]
		if !ok || o != v {
			return false
		}
	}
	return true
}

// LoadCategory reads a YAML category file and layers it on top of base. Items
// present in base keep their schema; the file may only supply values for them
// or add new items.
func LoadCategory(path string, base Category) (Category, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file Category
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse category %s: %w", path, err)
	}

	out := base.Clone()
	if out == nil {
		out = Category{}
	}
	for key, item := range file {
		existing, ok := out[key]
		if !ok {
			out[key] = item
			continue
		}
		if item.Value != "" {
			existing.Value = item.Value
		}
		out[key] = existing
	}
	return out, nil
}

package inventory

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Host represents one machine in the inventory.
type Host struct {
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"` // Optional SSH key path
}

// Group is a named set of hosts sharing variables.
type Group struct {
	Vars  map[string]string `yaml:"vars,omitempty"`
	Hosts []Host            `yaml:"hosts"`
}

// Inventory holds the host groups available to a run.
type Inventory struct {
	Groups map[string]Group `yaml:"groups"`
}

// Load reads and parses an inventory file.
func Load(fs afero.Fs, path string) (*Inventory, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read inventory")
	}
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, errors.Wrap(err, "failed to parse inventory")
	}
	return &inv, nil
}

// Select resolves a host-group reference to the hosts it names and the
// group's variables. A selector that matches no group is treated as a
// literal host name.
func (inv *Inventory) Select(selector string) ([]Host, map[string]string) {
	if inv != nil {
		if g, ok := inv.Groups[selector]; ok {
			return g.Hosts, g.Vars
		}
	}
	return []Host{{Name: selector}}, nil
}

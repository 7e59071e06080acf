// Package catalog holds the read-only registry of downloadable model
// descriptors and the device-fit queries over it. Adding a model is a data
// change (edit the catalog file), not a behavioral one.
package catalog

import (
	"fmt"
	"regexp"
	"sort"

	"edgellm/pkg/types"
)

var checksumRe = regexp.MustCompile(`^sha256:[0-9a-fA-F]{64}$`)

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	models []types.ModelDescriptor
	byID   map[string]types.ModelDescriptor
}

// New builds a catalog from descriptors, validating ids and checksum formats.
func New(models []types.ModelDescriptor) (*Catalog, error) {
	c := &Catalog{
		models: make([]types.ModelDescriptor, len(models)),
		byID:   make(map[string]types.ModelDescriptor, len(models)),
	}
	copy(c.models, models)
	for _, m := range c.models {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog entry %q: empty id", m.Name)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate id", m.ID)
		}
		if m.URL == "" {
			return nil, fmt.Errorf("catalog entry %q: empty url", m.ID)
		}
		if m.SizeMB <= 0 {
			return nil, fmt.Errorf("catalog entry %q: size_mb must be positive", m.ID)
		}
		if !validChecksum(m.Checksum) {
			return nil, fmt.Errorf("catalog entry %q: malformed checksum %q", m.ID, m.Checksum)
		}
		if m.HasAux() && !validChecksum(m.AuxChecksum) {
			return nil, fmt.Errorf("catalog entry %q: malformed aux checksum %q", m.ID, m.AuxChecksum)
		}
		c.byID[m.ID] = m
	}
	return c, nil
}

// Default returns the catalog of built-in descriptors.
func Default() *Catalog {
	c, err := New(builtin())
	if err != nil {
		// builtin() is compile-time data; a validation failure is a bug.
		panic(err)
	}
	return c
}

func validChecksum(s string) bool {
	return s == types.ChecksumNone || checksumRe.MatchString(s)
}

// List returns all descriptors as a copy.
func (c *Catalog) List() []types.ModelDescriptor {
	out := make([]types.ModelDescriptor, len(c.models))
	copy(out, c.models)
	return out
}

// Get looks up a descriptor by id. Absence is not an error.
func (c *Catalog) Get(id string) (types.ModelDescriptor, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Compatible returns every descriptor whose memory floor fits the device,
// largest first.
func (c *Catalog) Compatible(memoryMB int64) []types.ModelDescriptor {
	var out []types.ModelDescriptor
	for _, m := range c.models {
		if m.MinMemoryMB <= memoryMB {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinMemoryMB > out[j].MinMemoryMB
	})
	return out
}

// Recommended returns the best-fit descriptor for the given memory: the
// compatible model with the highest memory floor. ok is false when nothing
// fits.
func (c *Catalog) Recommended(memoryMB int64) (types.ModelDescriptor, bool) {
	fits := c.Compatible(memoryMB)
	if len(fits) == 0 {
		return types.ModelDescriptor{}, false
	}
	return fits[0], true
}

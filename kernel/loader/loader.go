// Package loader provides the executable images the kernel can exec.
package loader

import "sort"

// Loader resolves an application name to its ELF image.
type Loader interface {
	// Load returns the ELF image registered under name.
	Load(name string) ([]byte, bool)

	// Names returns the registered application names in sorted order.
	Names() []string
}

// Table is an in-memory Loader.
type Table map[string][]byte

// Load implements Loader.
func (t Table) Load(name string) ([]byte, bool) {
	image, ok := t[name]
	return image, ok
}

// Names implements Loader.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

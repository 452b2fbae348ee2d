// Package catalog discovers the full set of repositories owned by a
// user, organisation or workspace on a git hosting provider.
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrAuthentication indicates the provider rejected the given credentials
	ErrAuthentication = errors.New("provider rejected credentials")

	// ErrNetwork indicates the provider could not be reached
	ErrNetwork = errors.New("provider unreachable")
)

// CloneFlavor selects which clone url is requested from the provider
type CloneFlavor string

const (
	FlavorHTTPS CloneFlavor = "https"
	FlavorSSH   CloneFlavor = "ssh"
)

// Entry is a single discovered repository
type Entry struct {
	// Name of the repository, unique within a catalog
	Name string
	// CloneURL is the credential-free clone url of the requested flavor
	CloneURL string
}

// Catalog is an ordered name to clone-url mapping discovered in one run.
// Entries keep provider listing order, re-added names keep their original
// position and the last seen url wins.
type Catalog struct {
	names []string
	urls  map[string]string
}

// New returns an empty catalog
func New() *Catalog {
	return &Catalog{urls: make(map[string]string)}
}

// Add records given repository, replacing the clone url if name was
// already seen
func (c *Catalog) Add(name, cloneURL string) {
	if _, ok := c.urls[name]; !ok {
		c.names = append(c.names, name)
	}
	c.urls[name] = cloneURL
}

// Entries returns all repositories in insertion order
func (c *Catalog) Entries() []Entry {
	entries := make([]Entry, 0, len(c.names))
	for _, name := range c.names {
		entries = append(entries, Entry{Name: name, CloneURL: c.urls[name]})
	}
	return entries
}

// Len returns the number of unique repositories in the catalog
func (c *Catalog) Len() int {
	return len(c.names)
}

// Provider lists all repositories of one workspace/org/user on a specific
// hosting provider, following pagination transparently
type Provider interface {
	ListRepositories(ctx context.Context) (*Catalog, error)
}

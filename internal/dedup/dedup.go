// Package dedup shares numerically identical auxiliary data blocks between
// modifiers. A Cache is owned by exactly one conversion; it is never global.
package dedup

import (
	"fmt"

	"github.com/roach88/stanhf/internal/ir"
)

// Cache maps content hashes to the name of the first registrant.
type Cache struct {
	owners map[string]string
	order  []string
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{owners: make(map[string]string)}
}

// Claim registers name as a holder of value under domain. It returns the
// owning name (the first name registered for identical content) and whether
// the caller is that owner.
func (c *Cache) Claim(domain string, value ir.Value, name string) (owner string, first bool, err error) {
	key, err := ir.Hash(domain, value)
	if err != nil {
		return "", false, fmt.Errorf("dedup %s: %w", name, err)
	}
	if owner, ok := c.owners[key]; ok {
		return owner, owner == name, nil
	}
	c.owners[key] = name
	c.order = append(c.order, key)
	return name, true, nil
}

// Len returns the number of distinct blocks registered.
func (c *Cache) Len() int {
	return len(c.order)
}

// Package source provides the configuration sources merged by the loader
package source

import (
	"sort"

	"live-core/internal/config/schema"
	coreerrors "live-core/internal/core/errors"
)

// Source writes the values it knows about into a config tree, leaving
// everything else untouched.
type Source interface {
	Name() string
	Priority() int
	LoadInto(cfg *schema.Root) error
}

// Precedence, lowest first: defaults, YAML files, .env files, process environment.
const (
	PriorityDefaults = 1
	PriorityYAML     = 2
	PriorityDotEnv   = 3
	PriorityEnv      = 4
)

// Chain is an ordered set of sources
type Chain []Source

// Sorted returns a copy ordered by ascending priority; sources with equal
// priority keep their insertion order.
func (c Chain) Sorted() Chain {
	out := append(Chain(nil), c...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

// Apply loads every source into cfg so that higher priorities win
func (c Chain) Apply(cfg *schema.Root) error {
	for _, s := range c.Sorted() {
		if err := s.LoadInto(cfg); err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeInvalidConfig, "failed to load configuration from source %s", s.Name())
		}
	}
	return nil
}

// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runner defines the pluggable extractor contract. A runner
// produces a finite, non-restartable stream of raw records for a dataset's
// opaque config; the platform stays ignorant of how pages are fetched.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/item"
)

var ErrUnknownExtractor = errors.New("unknown extractor")

// Stats are opaque counters a run reports back; they are merged into the
// job's stats last-write-wins per key.
type Stats map[string]any

// Options carries the per-run collaboration hooks.
type Options struct {
	// QuickCheck limits the run to the cheapest probe of the source (for
	// the feed runner: the first page only).
	QuickCheck bool

	// Progress reports best-effort completion in percent with interim
	// stats. May be nil.
	Progress func(ctx context.Context, percent int, stats Stats)

	// Canceled is the cooperative cancellation checkpoint: runners call it
	// between units of work and stop emitting when it returns true. May be
	// nil. The platform guarantees only that the job's status reflects a
	// cancel request, not that work stops within any bound.
	Canceled func(ctx context.Context) bool
}

// Runner executes one extraction for a dataset. emit is called once per
// observed record, in stream order; returning an error from emit aborts
// the run. Run returns final stats for the job.
type Runner interface {
	Run(ctx context.Context, d *dataset.Dataset, opts Options, emit func(item.RawRecord) error) (Stats, error)
}

// Registry maps dataset extractor names to Runner implementations.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register binds name to r, replacing any previous binding.
func (reg *Registry) Register(name string, r Runner) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runners[name] = r
}

// Lookup resolves an extractor name.
func (reg *Registry) Lookup(name string) (Runner, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.runners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}
	return r, nil
}

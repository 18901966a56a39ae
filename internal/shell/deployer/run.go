package deployer

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
	"github.com/artpar/deployer/internal/core/deployment"
	"github.com/artpar/deployer/internal/shell/journal"
	"github.com/artpar/deployer/internal/shell/registry"
)

// =============================================================================
// Slots
// =============================================================================

// Slot tracks one logical name through a run. The artifact may differ from
// the name when a substitute is uploaded in its place.
type Slot struct {
	Name     string
	Artifact *artifact.Artifact

	mu      sync.Mutex
	state   deployment.State
	address abi.Address
}

// State returns the slot's current state.
func (s *Slot) State() deployment.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address returns the public address once the slot is uploaded or skipped.
func (s *Slot) Address() (abi.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, !abi.IsZeroAddress(s.address)
}

// RequireAddress fails with artifact.ErrNotYetUploaded when the slot has
// no address yet.
func (s *Slot) RequireAddress() (abi.Address, error) {
	if addr, ok := s.Address(); ok {
		return addr, nil
	}
	return abi.ZeroAddress, artifact.NewArtifactError("resolve", s.Name, artifact.ErrNotYetUploaded)
}

// advance moves the slot to next, recording addr when it is set.
func (s *Slot) advance(next deployment.State, addr abi.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := deployment.CheckTransition(s.Name, s.state, next); err != nil {
		return err
	}
	if !abi.IsZeroAddress(addr) {
		if !abi.IsZeroAddress(s.address) && s.address != addr {
			return artifact.NewArtifactError("advance", s.Name, artifact.ErrAddressAlreadySet)
		}
		s.address = addr
	}
	s.state = next
	return nil
}

// =============================================================================
// Run Context
// =============================================================================

// run is the state of one Deploy call.
type run struct {
	id        string
	networkID string
	block     uint64
	plan      deployment.Plan

	// existing is set when the registry was supplied rather than uploaded.
	existing bool

	registry *registry.Client
	slots    map[string]*Slot
	universe *abi.Address

	mu       sync.Mutex
	uploaded []string
	skipped  []string
}

func (r *run) slot(name string) (*Slot, error) {
	s, ok := r.slots[name]
	if !ok {
		return nil, artifact.NewArtifactError("resolve", name, artifact.ErrNotYetUploaded)
	}
	return s, nil
}

func (r *run) registryAddress() abi.Address {
	if r.registry == nil {
		return abi.ZeroAddress
	}
	return r.registry.Address()
}

func (r *run) noteUploaded(name string) {
	r.mu.Lock()
	r.uploaded = append(r.uploaded, name)
	r.mu.Unlock()
}

func (r *run) noteSkipped(name string) {
	r.mu.Lock()
	r.skipped = append(r.skipped, name)
	r.mu.Unlock()
}

// resolve looks up the address of a logical name for the manifest.
func (r *run) resolve(name string) (abi.Address, bool) {
	s, ok := r.slots[name]
	if !ok {
		return abi.ZeroAddress, false
	}
	return s.Address()
}

// record logs a decision and writes it to the journal.
func (o *Orchestrator) record(ctx context.Context, r *run, stage, name, key, action string, addr abi.Address, hash abi.Hash, reason string) {
	o.journalDecisions(ctx, o.decision(r, stage, name, key, action, addr, hash, reason))
}

// decision logs a decision and builds its journal entry.
func (o *Orchestrator) decision(r *run, stage, name, key, action string, addr abi.Address, hash abi.Hash, reason string) *journal.Decision {
	attrs := []any{"stage", stage, "artifact", name, "action", action}
	if key != "" {
		attrs = append(attrs, "key", key)
	}
	if !abi.IsZeroAddress(addr) {
		attrs = append(attrs, "address", addr.Hex())
	}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	o.logger.Info("decision", attrs...)

	d := &journal.Decision{
		RunID:    r.id,
		Stage:    stage,
		Artifact: name,
		Key:      key,
		Action:   action,
		Reason:   reason,
	}
	if !abi.IsZeroAddress(addr) {
		d.Address = addr.Hex()
	}
	if !abi.IsZeroHash(hash) {
		d.ContentHash = hash.Hex()
	}
	return d
}

// journalDecisions writes decisions in one journal transaction. Journal
// failures are logged and do not fail the run.
func (o *Orchestrator) journalDecisions(ctx context.Context, decisions ...*journal.Decision) {
	if err := o.journal.RecordDecisions(ctx, decisions...); err != nil {
		o.logger.Warn("failed to journal decisions", "run_id", decisions[0].RunID, "artifact", decisions[0].Artifact, "count", len(decisions), "error", err)
	}
}

func describe(item deployment.WorkItem) string {
	if item.Artifact != item.Name {
		return fmt.Sprintf("%s (as %s)", item.Name, item.Artifact)
	}
	return item.Name
}

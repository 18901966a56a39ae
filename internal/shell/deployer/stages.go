package deployer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/deployment"
	"github.com/artpar/deployer/internal/shell/contracts"
	"github.com/artpar/deployer/internal/shell/registry"
	"github.com/artpar/deployer/internal/shell/tracing"
)

// Decision actions recorded in the journal.
const (
	ActionUploaded    = "uploaded"
	ActionReused      = "reused"
	ActionSkipped     = "skipped"
	ActionRegistered  = "registered"
	ActionInitialized = "initialized"
	ActionWhitelisted = "whitelisted"
	ActionResynced    = "resynced"
	ActionCreated     = "created"
)

// =============================================================================
// Upload Stage
// =============================================================================

// uploadStage walks the plan's dependency batches. Items in one batch run
// concurrently; a failure does not cancel its siblings, and the first error
// is returned once the batch has drained.
func (o *Orchestrator) uploadStage(ctx context.Context, r *run) error {
	// Fail before the first upload when no revision can be resolved.
	// Registrations read the marker again and are served from the source's
	// cache.
	if _, err := o.provenance.Marker(ctx); err != nil {
		return err
	}

	batches, err := deployment.Batches(r.plan.Items)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		var g errgroup.Group
		g.SetLimit(o.cfg.MaxConcurrency)
		for _, item := range batch {
			item := item
			g.Go(func() error {
				return o.uploadItem(ctx, r, item)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) uploadItem(ctx context.Context, r *run, item deployment.WorkItem) (err error) {
	ctx, span := tracing.StartUpload(ctx, o.tracer, item.Name)
	span.SetAttributes(attribute.String(tracing.AttrKey, item.LookupKey()))
	defer func() { tracing.End(span, err) }()

	var stage string
	switch item.Kind {
	case deployment.KindRegistry:
		stage, err = StageRegistry, o.uploadRegistry(ctx, r, item)
	case deployment.KindRootLog:
		stage, err = StageRootLog, o.uploadRootLog(ctx, r, item)
	case deployment.KindDelegated:
		stage, err = StageUpload, o.uploadDelegated(ctx, r, item)
	default:
		stage, err = StageUpload, o.uploadPlain(ctx, r, item)
	}
	if err != nil {
		return NewStageError(stage, item.Name, err)
	}

	s, _ := r.slot(item.Name)
	if addr, ok := s.Address(); ok {
		span.SetAttributes(attribute.String(tracing.AttrAddress, addr.Hex()))
	}
	return nil
}

// uploadRegistry reuses the configured registry or uploads a fresh one, then
// checks that the sending account owns it.
func (o *Orchestrator) uploadRegistry(ctx context.Context, r *run, item deployment.WorkItem) error {
	s, err := r.slot(item.Name)
	if err != nil {
		return err
	}

	var addr abi.Address
	next, action := deployment.StateUploaded, ActionUploaded
	if o.cfg.RegistryAddress != nil {
		addr = *o.cfg.RegistryAddress
		next, action = deployment.StateSkipped, ActionReused
	} else {
		if addr, err = o.builder.DeployArtifact(ctx, s.Artifact); err != nil {
			return err
		}
	}

	client := registry.NewClient(o.builder, addr)
	if err := client.VerifyOwner(ctx, o.cfg.From); err != nil {
		return err
	}
	if err := s.advance(next, addr); err != nil {
		return err
	}
	if err := s.Artifact.SetAddress(addr); err != nil {
		return err
	}
	r.registry = client
	o.noteOutcome(r, item.Name, next)
	o.record(ctx, r, StageRegistry, item.Name, "", action, addr, s.Artifact.ContentHash(), "")
	return nil
}

// uploadRootLog uploads the root/log artifact unless an identical one is
// registered, points it at the registry, and registers it.
func (o *Orchestrator) uploadRootLog(ctx context.Context, r *run, item deployment.WorkItem) error {
	s, err := r.slot(item.Name)
	if err != nil {
		return err
	}
	key, err := registry.Key(item.Name)
	if err != nil {
		return err
	}
	hash := s.Artifact.ContentHash()

	addr, decision, err := o.reuse(ctx, r, item, key, hash)
	if err != nil {
		return err
	}
	if decision.Skip {
		if err := o.skip(ctx, r, StageRootLog, s, item, addr, hash, decision.Reason); err != nil {
			return err
		}
	} else {
		if addr, err = o.builder.DeployArtifact(ctx, s.Artifact); err != nil {
			return err
		}
		if err := s.advance(deployment.StateUploaded, addr); err != nil {
			return err
		}
		o.record(ctx, r, StageRootLog, item.Name, item.Name, ActionUploaded, addr, hash, decision.Reason)
	}

	root := contracts.NewRootLog(o.builder, addr, item.Name)
	if _, err := root.EnsureController(ctx, r.registryAddress()); err != nil {
		return err
	}

	if decision.Skip {
		return nil
	}
	if err := o.register(ctx, r, key, addr, hash); err != nil {
		return err
	}
	return o.registered(ctx, r, StageRootLog, s, item, key, addr, hash)
}

// uploadPlain uploads and registers one ordinary artifact.
func (o *Orchestrator) uploadPlain(ctx context.Context, r *run, item deployment.WorkItem) error {
	s, err := r.slot(item.Name)
	if err != nil {
		return err
	}
	key, err := registry.Key(item.Name)
	if err != nil {
		return err
	}
	hash := s.Artifact.ContentHash()

	addr, decision, err := o.reuse(ctx, r, item, key, hash)
	if err != nil {
		return err
	}
	if decision.Skip {
		return o.skip(ctx, r, StageUpload, s, item, addr, hash, decision.Reason)
	}

	o.logger.Info("uploading", "artifact", describe(item), "reason", decision.Reason)
	if addr, err = o.builder.DeployArtifact(ctx, s.Artifact); err != nil {
		return err
	}
	if err := s.advance(deployment.StateUploaded, addr); err != nil {
		return err
	}
	o.record(ctx, r, StageUpload, item.Name, item.Name, ActionUploaded, addr, hash, decision.Reason)

	if err := o.register(ctx, r, key, addr, hash); err != nil {
		return err
	}
	return o.registered(ctx, r, StageUpload, s, item, key, addr, hash)
}

// uploadDelegated uploads the implementation, registers it under the target
// key, then fronts it with a fresh proxy registered under the plain name.
func (o *Orchestrator) uploadDelegated(ctx context.Context, r *run, item deployment.WorkItem) error {
	s, err := r.slot(item.Name)
	if err != nil {
		return err
	}
	targetKey, err := registry.TargetKey(item.Name)
	if err != nil {
		return err
	}
	key, err := registry.Key(item.Name)
	if err != nil {
		return err
	}
	targetHash := s.Artifact.ContentHash()

	addr, decision, err := o.reuse(ctx, r, item, targetKey, targetHash)
	if err != nil {
		return err
	}
	if decision.Skip {
		return o.skip(ctx, r, StageUpload, s, item, addr, targetHash, decision.Reason)
	}

	o.logger.Info("uploading", "artifact", describe(item), "delegated", true, "reason", decision.Reason)
	targetAddr, err := o.builder.DeployArtifact(ctx, s.Artifact)
	if err != nil {
		return err
	}
	targetName := registry.KeyName(targetKey)
	uploaded := o.decision(r, StageUpload, item.Name, targetName, ActionUploaded, targetAddr, targetHash, decision.Reason)
	if err := o.register(ctx, r, targetKey, targetAddr, targetHash); err != nil {
		o.journalDecisions(ctx, uploaded)
		return err
	}
	// The target's upload and registration are journaled together.
	o.journalDecisions(ctx, uploaded,
		o.decision(r, StageUpload, item.Name, targetName, ActionRegistered, targetAddr, targetHash, ""))

	proxy, err := o.set.Get(r.plan.Proxy)
	if err != nil {
		return err
	}
	proxyAddr, err := o.builder.DeployArtifact(ctx, proxy, r.registryAddress().Hex(), abi.Bytes32Hex(targetKey))
	if err != nil {
		return err
	}
	if err := s.advance(deployment.StateUploaded, proxyAddr); err != nil {
		return err
	}
	proxyHash := proxy.ContentHash()
	o.record(ctx, r, StageUpload, item.Name, item.Name, ActionUploaded, proxyAddr, proxyHash, "proxy for "+targetName)

	if err := o.register(ctx, r, key, proxyAddr, proxyHash); err != nil {
		return err
	}
	return o.registered(ctx, r, StageUpload, s, item, key, proxyAddr, proxyHash)
}

// reuse runs the idempotency check for key. On a skip the address comes
// from the plain name's registration; a skip without one uploads anyway.
func (o *Orchestrator) reuse(ctx context.Context, r *run, item deployment.WorkItem, key [32]byte, hash abi.Hash) (abi.Address, deployment.UploadDecision, error) {
	if !r.existing {
		return abi.ZeroAddress, deployment.DecideUpload(false, abi.Hash{}, hash), nil
	}

	details, err := r.registry.GetRegisteredDetails(ctx, key)
	if err != nil {
		return abi.ZeroAddress, deployment.UploadDecision{}, err
	}
	decision := deployment.DecideUpload(true, details.ContentHash, hash)
	if !decision.Skip {
		return abi.ZeroAddress, decision, nil
	}

	plainKey, err := registry.Key(item.Name)
	if err != nil {
		return abi.ZeroAddress, deployment.UploadDecision{}, err
	}
	if plainKey != key {
		if details, err = r.registry.GetRegisteredDetails(ctx, plainKey); err != nil {
			return abi.ZeroAddress, deployment.UploadDecision{}, err
		}
	}
	if abi.IsZeroAddress(details.Address) {
		return abi.ZeroAddress, deployment.UploadDecision{Reason: "registered without an address"}, nil
	}
	return details.Address, decision, nil
}

// register records addr under key with the current source revision.
func (o *Orchestrator) register(ctx context.Context, r *run, key [32]byte, addr abi.Address, hash abi.Hash) error {
	marker, err := o.provenance.Marker(ctx)
	if err != nil {
		return err
	}
	return r.registry.RegisterContract(ctx, key, addr, registry.Provenance(marker), hash)
}

func (o *Orchestrator) skip(ctx context.Context, r *run, stage string, s *Slot, item deployment.WorkItem, addr abi.Address, hash abi.Hash, reason string) error {
	if err := s.advance(deployment.StateSkipped, addr); err != nil {
		return err
	}
	if err := s.Artifact.SetAddress(addr); err != nil {
		return err
	}
	o.noteOutcome(r, item.Name, deployment.StateSkipped)
	o.record(ctx, r, stage, item.Name, item.LookupKey(), ActionSkipped, addr, hash, reason)
	return nil
}

func (o *Orchestrator) registered(ctx context.Context, r *run, stage string, s *Slot, item deployment.WorkItem, key [32]byte, addr abi.Address, hash abi.Hash) error {
	if err := s.advance(deployment.StateRegistered, abi.ZeroAddress); err != nil {
		return err
	}
	if err := s.Artifact.SetAddress(addr); err != nil {
		return err
	}
	o.noteOutcome(r, item.Name, deployment.StateUploaded)
	o.record(ctx, r, stage, item.Name, registry.KeyName(key), ActionRegistered, addr, hash, "")
	return nil
}

func (o *Orchestrator) noteOutcome(r *run, name string, state deployment.State) {
	if state == deployment.StateSkipped {
		r.noteSkipped(name)
		return
	}
	r.noteUploaded(name)
}

// =============================================================================
// Post-upload Passes
// =============================================================================

// initializeStage points every initialize-listed artifact at the registry.
func (o *Orchestrator) initializeStage(ctx context.Context, r *run) error {
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for _, name := range r.plan.InitializeNames {
		name := name
		g.Go(func() error {
			if err := o.initialize(ctx, r, name); err != nil {
				return NewStageError(StageInitialize, name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) initialize(ctx context.Context, r *run, name string) error {
	s, err := r.slot(name)
	if err != nil {
		return err
	}
	addr, err := s.RequireAddress()
	if err != nil {
		return err
	}
	sent, err := contracts.NewControlled(o.builder, addr, name).EnsureController(ctx, r.registryAddress())
	if err != nil {
		return err
	}
	if err := s.advance(deployment.StateInitialized, abi.ZeroAddress); err != nil {
		return err
	}
	reason := "controller already set"
	if sent {
		reason = "controller assigned"
	}
	o.record(ctx, r, StageInitialize, name, "", ActionInitialized, addr, abi.Hash{}, reason)
	return nil
}

// whitelistStage whitelists the listed artifacts, skipping those already
// on the list.
func (o *Orchestrator) whitelistStage(ctx context.Context, r *run) error {
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for _, name := range r.plan.WhitelistNames {
		name := name
		g.Go(func() error {
			if err := o.whitelist(ctx, r, name); err != nil {
				return NewStageError(StageWhitelist, name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) whitelist(ctx context.Context, r *run, name string) error {
	s, err := r.slot(name)
	if err != nil {
		return err
	}
	addr, err := s.RequireAddress()
	if err != nil {
		return err
	}

	listed, err := r.registry.IsWhitelisted(ctx, addr)
	if err != nil {
		return err
	}
	reason := "already whitelisted"
	if !listed {
		if err := r.registry.AddToWhitelist(ctx, addr, name); err != nil {
			return err
		}
		reason = ""
	}
	if err := s.advance(deployment.StateWhitelisted, abi.ZeroAddress); err != nil {
		return err
	}
	o.record(ctx, r, StageWhitelist, name, "", ActionWhitelisted, addr, abi.Hash{}, reason)
	return nil
}

// clockStage resets the controllable clock to its own reading.
func (o *Orchestrator) clockStage(ctx context.Context, r *run) error {
	s, err := r.slot(r.plan.ClockName)
	if err != nil {
		return err
	}
	addr, err := s.RequireAddress()
	if err != nil {
		return err
	}
	ts, err := contracts.NewClock(o.builder, addr, s.Artifact.Name).Resync(ctx)
	if err != nil {
		return err
	}
	o.record(ctx, r, StageClock, r.plan.ClockName, "", ActionResynced, addr, abi.Hash{}, "timestamp "+ts.String())
	return nil
}

// genesisStage dry-runs universe creation, then creates it and checks the
// reported type.
func (o *Orchestrator) genesisStage(ctx context.Context, r *run) error {
	token, err := o.genesisToken(r)
	if err != nil {
		return err
	}
	s, err := r.slot(r.plan.RootLog)
	if err != nil {
		return err
	}
	rootAddr, err := s.RequireAddress()
	if err != nil {
		return err
	}
	root := contracts.NewRootLog(o.builder, rootAddr, r.plan.RootLog)

	predicted, err := root.SimulateCreateUniverse(ctx, token)
	if err != nil {
		return err
	}
	if abi.IsZeroAddress(predicted) {
		return fmt.Errorf("%w: dry run returned no universe", ErrGenesisVerificationFailed)
	}
	if err := root.CreateUniverse(ctx, token); err != nil {
		return err
	}

	typeName, err := contracts.NewUniverse(o.builder, predicted).TypeName(ctx)
	if err != nil {
		return err
	}
	if typeName != deployment.NameUniverse {
		return fmt.Errorf("%w: %s reports type %q", ErrGenesisVerificationFailed, predicted.Hex(), typeName)
	}
	r.universe = &predicted
	o.record(ctx, r, StageGenesis, deployment.NameUniverse, "", ActionCreated, predicted, abi.Hash{}, "denomination "+token.Hex())
	return nil
}

func (o *Orchestrator) genesisToken(r *run) (abi.Address, error) {
	if o.cfg.GenesisDenominationToken != nil {
		return *o.cfg.GenesisDenominationToken, nil
	}
	s, err := r.slot(deployment.NameTestNetDenominationToken)
	if err != nil {
		return abi.ZeroAddress, err
	}
	return s.RequireAddress()
}

// manifestStage writes the block manifest, then the address manifest.
func (o *Orchestrator) manifestStage(ctx context.Context, r *run) error {
	if err := o.manifests.WriteBlockNumber(r.networkID, r.block); err != nil {
		return err
	}
	mapping, err := deployment.AddressMapping(r.plan, r.resolve, r.universe)
	if err != nil {
		return err
	}
	return o.manifests.WriteAddresses(r.networkID, mapping)
}

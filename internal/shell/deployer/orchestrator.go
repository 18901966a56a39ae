// Package deployer orchestrates a full deployment run: the registry, the
// root/log artifact, the bulk upload of every other artifact, controller
// wiring, whitelisting, the test clock, the genesis universe and the
// manifests.
package deployer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
	"github.com/artpar/deployer/internal/core/deployment"
	"github.com/artpar/deployer/internal/shell/journal"
	"github.com/artpar/deployer/internal/shell/provenance"
	"github.com/artpar/deployer/internal/shell/tracing"
	"github.com/artpar/deployer/internal/shell/transaction"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the per-run settings.
type Config struct {
	NetworkName string
	From        abi.Address
	GasPrice    uint64

	// RegistryAddress reuses an existing registry instead of uploading one.
	// Skip checks only apply when it is set.
	RegistryAddress *abi.Address

	UseNormalTime         bool
	CreateGenesisUniverse bool
	IsProduction          bool

	// GenesisDenominationToken overrides the uploaded test token.
	GenesisDenominationToken *abi.Address

	LibraryPrefix  string
	MaxConcurrency int

	// Paths shown in the run banner.
	ContractInputPath string
	AddressOutputPath string
	BlockOutputPath   string
}

// ProvenanceSource yields the source-revision marker.
type ProvenanceSource interface {
	Marker(ctx context.Context) (provenance.Marker, error)
}

// ManifestWriter persists the two manifests.
type ManifestWriter interface {
	WriteAddresses(networkID string, mapping map[string]string) error
	WriteBlockNumber(networkID string, block uint64) error
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Transport  transaction.Transport
	Chain      transaction.Chain
	Provenance ProvenanceSource
	Manifests  ManifestWriter

	// Optional.
	Journal journal.Recorder
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Result summarises a completed run.
type Result struct {
	RunID     string
	NetworkID string
	Block     uint64
	Registry  abi.Address
	Addresses map[string]abi.Address
	Universe  *abi.Address
	Uploaded  []string
	Skipped   []string
	Excluded  []deployment.Exclusion
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs deployments of one artifact set.
type Orchestrator struct {
	cfg      Config
	set      *artifact.Set
	policies deployment.PolicyTable

	builder    *transaction.Builder
	chain      transaction.Chain
	provenance ProvenanceSource
	manifests  ManifestWriter
	journal    journal.Recorder
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config, set *artifact.Set, policies deployment.PolicyTable, deps Dependencies) (*Orchestrator, error) {
	if set == nil || deps.Transport == nil || deps.Chain == nil || deps.Provenance == nil || deps.Manifests == nil {
		return nil, fmt.Errorf("%w: artifact set, transport, chain, provenance and manifests are required", ErrInvalidConfig)
	}
	if abi.IsZeroAddress(cfg.From) {
		return nil, fmt.Errorf("%w: sending account is required", ErrInvalidConfig)
	}
	if policies == nil {
		policies = deployment.DefaultPolicies()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	var recorder journal.Recorder = journal.NewNoOpRecorder()
	if deps.Journal != nil {
		recorder = deps.Journal
	}

	return &Orchestrator{
		cfg:        cfg,
		set:        set,
		policies:   policies,
		builder:    transaction.NewBuilder(deps.Transport, transaction.Config{From: cfg.From, GasPrice: cfg.GasPrice}, logger),
		chain:      deps.Chain,
		provenance: deps.Provenance,
		manifests:  deps.Manifests,
		journal:    recorder,
		tracer:     tracer,
		logger:     logger.With("component", "deployer"),
	}, nil
}

// Deploy performs one run. Uploaded addresses are recorded on the artifact
// set, so a set is deployed at most once.
func (o *Orchestrator) Deploy(ctx context.Context) (result *Result, err error) {
	o.logger.Info("deploying",
		"network_name", o.cfg.NetworkName,
		"compiled_contracts", o.cfg.ContractInputPath,
		"address_manifest", o.cfg.AddressOutputPath,
		"block_manifest", o.cfg.BlockOutputPath,
	)
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, tracing.SpanRun)
	defer func() { tracing.End(span, err) }()

	r, err := o.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String(tracing.AttrRunID, r.id),
		attribute.String(tracing.AttrNetwork, r.networkID),
	)
	defer func() {
		if ferr := o.journal.FinishRun(context.WithoutCancel(ctx), r.id, r.registryAddress().Hex(), err); ferr != nil {
			o.logger.Warn("failed to journal run result", "run_id", r.id, "error", ferr)
		}
	}()

	always := func(*run) bool { return true }
	// when is evaluated after the preceding stages ran; the plan is only
	// known once planStage has finished.
	stages := []struct {
		name string
		fn   func(context.Context, *run) error
		when func(*run) bool
	}{
		{StagePlan, o.planStage, always},
		{StageUpload, o.uploadStage, always},
		{StageInitialize, o.initializeStage, always},
		{StageWhitelist, o.whitelistStage, always},
		{StageClock, o.clockStage, func(r *run) bool { return r.plan.TestClock }},
		{StageGenesis, o.genesisStage, func(*run) bool { return o.cfg.CreateGenesisUniverse }},
		{StageManifest, o.manifestStage, always},
	}
	for _, stage := range stages {
		if !stage.when(r) {
			continue
		}
		if err := o.runStage(ctx, r, stage.name, stage.fn); err != nil {
			o.logger.Error("deployment failed", "run_id", r.id, "stage", stage.name, "error", err)
			return nil, err
		}
	}

	result = &Result{
		RunID:     r.id,
		NetworkID: r.networkID,
		Block:     r.block,
		Registry:  r.registryAddress(),
		Addresses: make(map[string]abi.Address, len(r.slots)),
		Universe:  r.universe,
		Uploaded:  r.uploaded,
		Skipped:   r.skipped,
		Excluded:  r.plan.Excluded,
	}
	for name, s := range r.slots {
		if addr, ok := s.Address(); ok {
			result.Addresses[name] = addr
		}
	}

	o.logger.Info("deployment complete",
		"run_id", r.id,
		"registry", result.Registry.Hex(),
		"uploaded", len(result.Uploaded),
		"skipped", len(result.Skipped),
		"duration", time.Since(start),
	)
	return result, nil
}

// runStage wraps one stage in a span and start/finish logs.
func (o *Orchestrator) runStage(ctx context.Context, r *run, name string, fn func(context.Context, *run) error) (err error) {
	ctx, span := tracing.StartStage(ctx, o.tracer, name)
	defer func() { tracing.End(span, err) }()

	o.logger.Debug("stage started", "run_id", r.id, "stage", name)
	if err := fn(ctx, r); err != nil {
		return NewStageError(name, "", err)
	}
	o.logger.Debug("stage finished", "run_id", r.id, "stage", name)
	return nil
}

// snapshot reads the starting block before anything is uploaded and opens
// the journal entry.
func (o *Orchestrator) snapshot(ctx context.Context) (*run, error) {
	ctx, span := tracing.StartStage(ctx, o.tracer, StageSnapshot)
	var err error
	defer func() { tracing.End(span, err) }()

	block, err := o.chain.BlockNumber(ctx)
	if err != nil {
		err = NewStageError(StageSnapshot, "", fmt.Errorf("%w: block number: %w", transaction.ErrTransportFailure, err))
		return nil, err
	}
	networkID, err := o.chain.NetworkID(ctx)
	if err != nil {
		err = NewStageError(StageSnapshot, "", fmt.Errorf("%w: network id: %w", transaction.ErrTransportFailure, err))
		return nil, err
	}

	entry := journal.NewRun(networkID, o.cfg.NetworkName, block)
	if jerr := o.journal.CreateRun(ctx, entry); jerr != nil {
		o.logger.Warn("failed to journal run start", "error", jerr)
	}
	o.logger.Info("run started", "run_id", entry.ID, "network", networkID, "block", block)

	return &run{
		id:        entry.ID,
		networkID: networkID,
		block:     block,
		existing:  o.cfg.RegistryAddress != nil,
		slots:     make(map[string]*Slot),
	}, nil
}

// planStage computes the work list and the slots.
func (o *Orchestrator) planStage(_ context.Context, r *run) error {
	plan, err := deployment.PlanWork(o.set, o.policies, deployment.Options{
		UseNormalTime: o.cfg.UseNormalTime,
		IsProduction:  o.cfg.IsProduction,
		LibraryPrefix: o.cfg.LibraryPrefix,
	})
	if err != nil {
		return err
	}
	for _, ex := range plan.Excluded {
		o.logger.Info("excluded", "artifact", ex.Name, "reason", ex.Reason)
	}

	for _, item := range plan.Items {
		a, err := o.set.Get(item.Artifact)
		if err != nil {
			return err
		}
		r.slots[item.Name] = &Slot{Name: item.Name, Artifact: a, state: deployment.StatePending}
	}
	r.plan = plan
	return nil
}

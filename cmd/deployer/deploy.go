package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/deployment"
	"github.com/artpar/deployer/internal/shell/artifacts"
	"github.com/artpar/deployer/internal/shell/deployer"
	"github.com/artpar/deployer/internal/shell/journal"
	"github.com/artpar/deployer/internal/shell/manifest"
	"github.com/artpar/deployer/internal/shell/provenance"
	"github.com/artpar/deployer/internal/shell/rpc"
	"github.com/artpar/deployer/internal/shell/tracing"
)

var deployFlags = map[string]string{
	"endpoint":        "network.endpoint",
	"network-name":    "network.network_name",
	"from":            "network.from",
	"contracts":       "deployer.contract_input_path",
	"addresses":       "deployer.address_output_path",
	"blocks":          "deployer.block_output_path",
	"controller":      "deployer.controller_address",
	"policies":        "deployer.policy_path",
	"normal-time":     "deployer.use_normal_time",
	"production":      "deployer.is_production",
	"genesis":         "deployer.create_genesis_universe",
	"max-concurrency": "deployer.max_concurrency",
	"provenance":      "deployer.provenance.override",
	"log-level":       "log.level",
	"journal":         "journal.enabled",
}

func newDeployCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload, register and wire the compiled contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*configPath, bindFlags(cmd, deployFlags))
			if err != nil {
				return withExitCode(ExitConfigError, err)
			}
			logger := SetupLogger(cfg, cmd.ErrOrStderr())
			logger.Info("starting deployer", "version", Version, "config", *configPath)

			result, err := runDeploy(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	f := cmd.Flags()
	f.String("endpoint", "", "JSON-RPC endpoint of the node")
	f.String("network-name", "", "network name shown in logs and the journal")
	f.String("from", "", "sending account (unlocked on the node)")
	f.String("contracts", "", "compiled contracts file")
	f.String("addresses", "", "address manifest path")
	f.String("blocks", "", "upload block number manifest path")
	f.String("controller", "", "reuse the registry at this address")
	f.String("policies", "", "YAML policy table (default: built-in table)")
	f.Bool("normal-time", false, "upload the real clock instead of the controllable one")
	f.Bool("production", false, "skip test-only artifacts")
	f.Bool("genesis", true, "create and verify the genesis universe")
	f.Int("max-concurrency", 0, "maximum concurrent uploads")
	f.String("provenance", "", "source revision to record instead of asking git or npm")
	f.String("log-level", "", "debug, info, warn or error")
	f.Bool("journal", true, "record the run in the deployment journal")
	return cmd
}

// runDeploy wires the shell components together and performs one run.
func runDeploy(ctx context.Context, cfg *Config, logger *slog.Logger) (*deployer.Result, error) {
	dc, err := orchestratorConfig(cfg)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}

	set, err := artifacts.LoadFile(cfg.Deployer.ContractInputPath, logger)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	policies, err := loadPolicies(cfg.Deployer.PolicyPath)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}

	var recorder journal.Recorder = journal.NewNoOpRecorder()
	if cfg.Journal.Enabled {
		j, err := openJournal(cfg.Journal.DSN)
		if err != nil {
			return nil, withExitCode(ExitJournalError, err)
		}
		defer j.Close()
		recorder = j
	}

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	node, err := rpc.Dial(ctx, rpc.Config{
		Endpoint:            cfg.Network.Endpoint,
		Timeout:             cfg.Network.Timeout,
		PollInterval:        cfg.Network.PollInterval,
		ConfirmationTimeout: cfg.Network.ConfirmationTimeout,
	}, logger)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	defer node.Close()

	o, err := deployer.New(dc, set, policies, deployer.Dependencies{
		Transport: node,
		Chain:     node,
		Provenance: provenance.NewSource(provenance.Config{
			Override: cfg.Deployer.Provenance.Override,
			Dir:      cfg.Deployer.Provenance.Dir,
		}, provenance.ExecRunner, logger),
		Manifests: manifest.NewWriter(cfg.Deployer.AddressOutputPath, cfg.Deployer.BlockOutputPath, logger),
		Journal:   recorder,
		Tracer:    tp.Tracer(),
		Logger:    logger,
	})
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}

	result, err := o.Deploy(ctx)
	if err != nil {
		return nil, withExitCode(ExitDeployError, err)
	}
	return result, nil
}

// orchestratorConfig validates the addresses in cfg.
func orchestratorConfig(cfg *Config) (deployer.Config, error) {
	dc := deployer.Config{
		NetworkName:           cfg.Network.NetworkName,
		GasPrice:              cfg.Network.GasPrice,
		UseNormalTime:         cfg.Deployer.UseNormalTime,
		CreateGenesisUniverse: cfg.Deployer.CreateGenesisUniverse,
		IsProduction:          cfg.Deployer.IsProduction,
		LibraryPrefix:         cfg.Deployer.LibraryPrefix,
		MaxConcurrency:        cfg.Deployer.MaxConcurrency,
		ContractInputPath:     cfg.Deployer.ContractInputPath,
		AddressOutputPath:     cfg.Deployer.AddressOutputPath,
		BlockOutputPath:       cfg.Deployer.BlockOutputPath,
	}

	if cfg.Network.From == "" {
		return dc, fmt.Errorf("%w: network.from is required", deployer.ErrInvalidConfig)
	}
	from, err := abi.ParseAddress(cfg.Network.From)
	if err != nil {
		return dc, fmt.Errorf("%w: network.from: %w", deployer.ErrInvalidConfig, err)
	}
	dc.From = from

	if dc.RegistryAddress, err = optionalAddress("deployer.controller_address", cfg.Deployer.ControllerAddress); err != nil {
		return dc, err
	}
	if dc.GenesisDenominationToken, err = optionalAddress("deployer.genesis_denomination_token_address", cfg.Deployer.GenesisDenominationTokenAddress); err != nil {
		return dc, err
	}
	return dc, nil
}

func optionalAddress(key, value string) (*abi.Address, error) {
	if value == "" {
		return nil, nil
	}
	addr, err := abi.ParseAddress(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", deployer.ErrInvalidConfig, key, err)
	}
	return &addr, nil
}

// loadPolicies reads the policy table at path, or returns the built-in
// table when path is empty.
func loadPolicies(path string) (deployment.PolicyTable, error) {
	if path == "" {
		return deployment.DefaultPolicies(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy table: %w", err)
	}
	return deployment.ParsePolicies(data)
}

// openJournal opens the journal, creating the parent directory of a file
// DSN.
func openJournal(dsn string) (*journal.SQLiteJournal, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	return journal.NewSQLiteJournal(dsn)
}

func printResult(w io.Writer, result *deployer.Result) error {
	names := make([]string, 0, len(result.Addresses))
	for name := range result.Addresses {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "run %s on network %s (block %d)\n", result.RunID, result.NetworkID, result.Block)
	fmt.Fprintf(w, "registry %s\n", result.Registry.Hex())
	for _, name := range names {
		fmt.Fprintf(w, "  %-28s %s\n", name, result.Addresses[name].Hex())
	}
	if result.Universe != nil {
		fmt.Fprintf(w, "  %-28s %s\n", deployment.NameUniverse, result.Universe.Hex())
	}
	_, err := fmt.Fprintf(w, "uploaded %d, skipped %d\n", len(result.Uploaded), len(result.Skipped))
	return err
}

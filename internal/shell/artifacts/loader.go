// Package artifacts loads compiled artifacts from compiler output JSON.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
)

var (
	// ErrInvalidOutput is returned when the compiler output is malformed.
	ErrInvalidOutput = errors.New("invalid compiler output")
)

// compilerOutput is the subset of the compiler's standard JSON output the
// loader reads.
type compilerOutput struct {
	Contracts map[string]map[string]struct {
		ABI abi.Interface `json:"abi"`
		EVM struct {
			Bytecode struct {
				Object string `json:"object"`
			} `json:"bytecode"`
		} `json:"evm"`
	} `json:"contracts"`
}

// LoadFile reads compiler output from path.
func LoadFile(path string, logger *slog.Logger) (*artifact.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compiled contracts: %w", err)
	}
	return Load(data, logger)
}

// Load parses compiler output. Artifacts are ordered by source path, then
// by name. Artifacts without bytecode (interfaces, abstract contracts) are
// skipped.
func Load(data []byte, logger *slog.Logger) (*artifact.Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "artifact_loader")

	var out compilerOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if out.Contracts == nil {
		return nil, fmt.Errorf("%w: no contracts section", ErrInvalidOutput)
	}

	paths := make([]string, 0, len(out.Contracts))
	for path := range out.Contracts {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var loaded []*artifact.Artifact
	for _, path := range paths {
		byName := out.Contracts[path]
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			c := byName[name]
			object := strings.TrimPrefix(c.EVM.Bytecode.Object, "0x")
			if object == "" {
				logger.Debug("skipping artifact without bytecode", "artifact", name, "path", path)
				continue
			}
			bytecode, err := hexutil.Decode("0x" + object)
			if err != nil {
				return nil, fmt.Errorf("%w: bytecode of %s: %v", ErrInvalidOutput, name, err)
			}
			loaded = append(loaded, artifact.New(name, path, c.ABI, bytecode))
		}
	}

	set, err := artifact.NewSet(loaded)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded compiled artifacts", "count", set.Len())
	return set, nil
}

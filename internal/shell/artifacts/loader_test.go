package artifacts

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `{
  "contracts": {
    "trading/ShareToken.sol": {
      "ShareToken": {"abi": [], "evm": {"bytecode": {"object": "6080"}}}
    },
    "Controller.sol": {
      "Controller": {"abi": [{"type": "function", "name": "owner", "inputs": [], "outputs": [{"name": "", "type": "address"}]}], "evm": {"bytecode": {"object": "0x6060"}}}
    },
    "libraries/Delegator.sol": {
      "Delegator": {"abi": [{"type": "constructor", "inputs": [{"name": "_controller", "type": "address"}, {"name": "_key", "type": "bytes32"}]}], "evm": {"bytecode": {"object": "60ff"}}},
      "DelegationTarget": {"abi": [], "evm": {"bytecode": {"object": "60aa"}}}
    },
    "reporting/IUniverse.sol": {
      "IUniverse": {"abi": [], "evm": {"bytecode": {"object": ""}}}
    }
  }
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_OrdersByPathThenName(t *testing.T) {
	set, err := Load([]byte(sampleOutput), testLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"Controller", "DelegationTarget", "Delegator", "ShareToken"}, set.Names())
}

func TestLoad_SkipsArtifactsWithoutBytecode(t *testing.T) {
	set, err := Load([]byte(sampleOutput), testLogger())
	require.NoError(t, err)

	_, err = set.Get("IUniverse")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestLoad_DecodesBytecodeAndABI(t *testing.T) {
	set, err := Load([]byte(sampleOutput), testLogger())
	require.NoError(t, err)

	controller, err := set.Get("Controller")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x60}, controller.Bytecode)
	assert.Equal(t, "Controller.sol", controller.SourcePath)
	require.Contains(t, controller.ABI.Methods, "owner")
	assert.False(t, abi.HasConstructor(controller.ABI))

	delegator, err := set.Get("Delegator")
	require.NoError(t, err)
	assert.Equal(t, "libraries/Delegator.sol", delegator.SourcePath)
	assert.Equal(t, []string{"address", "bytes32"}, abi.ConstructorTypes(delegator.ABI))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "{"},
		{name: "no contracts", input: `{"sources": {}}`},
		{name: "bad bytecode", input: `{"contracts": {"A.sol": {"A": {"abi": [], "evm": {"bytecode": {"object": "zz"}}}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.input), testLogger())
			assert.ErrorIs(t, err, ErrInvalidOutput)
		})
	}
}

func TestLoad_DuplicateNamesAcrossFiles(t *testing.T) {
	input := `{"contracts": {
		"a/Map.sol": {"Map": {"abi": [], "evm": {"bytecode": {"object": "60"}}}},
		"b/Map.sol": {"Map": {"abi": [], "evm": {"bytecode": {"object": "61"}}}}
	}}`
	_, err := Load([]byte(input), testLogger())
	assert.ErrorIs(t, err, artifact.ErrDuplicateArtifact)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleOutput), 0o644))

	set, err := LoadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

package deployment

import (
	"testing"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
	"github.com/stretchr/testify/require"
)

// suiteSet returns the standard contract suite with placeholder bytecode.
func suiteSet(t *testing.T, extra ...*artifact.Artifact) *artifact.Set {
	t.Helper()
	artifacts := []*artifact.Artifact{
		artifact.New(NameController, "Controller.sol", abi.Interface{}, []byte{0x01}),
		artifact.New(NameAugurLite, "AugurLite.sol", abi.Interface{}, []byte{0x02}),
		artifact.New(NameDelegator, "libraries/Delegator.sol", abi.Interface{}, []byte{0x03}),
		artifact.New(NameMap, "libraries/collections/Map.sol", abi.Interface{}, []byte{0x04}),
		artifact.New("SafeMathUint256", "libraries/math/SafeMathUint256.sol", abi.Interface{}, []byte{0x05}),
		artifact.New(NameTime, "Time.sol", abi.Interface{}, []byte{0x06}),
		artifact.New(NameTimeControlled, "TimeControlled.sol", abi.Interface{}, []byte{0x07}),
		artifact.New(NameTestNetDenominationToken, "TestNetDenominationToken.sol", abi.Interface{}, []byte{0x08}),
		artifact.New(NameCompleteSets, "trading/CompleteSets.sol", abi.Interface{}, []byte{0x09}),
		artifact.New(NameClaimTradingProceeds, "trading/ClaimTradingProceeds.sol", abi.Interface{}, []byte{0x0a}),
		artifact.New(NameShareToken, "tokens/ShareToken.sol", abi.Interface{}, []byte{0x0b}),
		artifact.New("Universe", "reporting/Universe.sol", abi.Interface{}, []byte{0x0c}),
	}
	set, err := artifact.NewSet(append(artifacts, extra...))
	require.NoError(t, err)
	return set
}

func itemNames(items []WorkItem) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return names
}

func exclusionReasons(plan Plan) map[string]string {
	out := make(map[string]string, len(plan.Excluded))
	for _, e := range plan.Excluded {
		out[e.Name] = e.Reason
	}
	return out
}

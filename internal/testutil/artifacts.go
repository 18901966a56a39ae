package testutil

import (
	"testing"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
)

// ProxyABI is the interface of the proxy helper.
var ProxyABI = abi.MustParseInterface(`[{
	"type": "constructor",
	"inputs": [
		{"name": "controller", "type": "address"},
		{"name": "key", "type": "bytes32"}
	]
}]`)

// ArtifactSpec describes one fake compiled artifact.
type ArtifactSpec struct {
	Name       string
	SourcePath string
	Revision   string
}

// SuiteSpecs is the standard compiled set: registry, root/log, proxy
// helper, both clocks, the delegated test token, one shared library, one
// static library, the trading artifacts and an interface.
func SuiteSpecs() []ArtifactSpec {
	return []ArtifactSpec{
		{Name: "AugurLite", SourcePath: "AugurLite.sol"},
		{Name: "ClaimTradingProceeds", SourcePath: "trading/ClaimTradingProceeds.sol"},
		{Name: "CompleteSets", SourcePath: "trading/CompleteSets.sol"},
		{Name: "Controller", SourcePath: "Controller.sol"},
		{Name: "IUniverse", SourcePath: "reporting/IUniverse.sol"},
		{Name: "Delegator", SourcePath: "libraries/Delegator.sol"},
		{Name: "Map", SourcePath: "libraries/collections/Map.sol"},
		{Name: "SafeMath", SourcePath: "libraries/math/SafeMath.sol"},
		{Name: "ShareToken", SourcePath: "trading/ShareToken.sol"},
		{Name: "TestNetDenominationToken", SourcePath: "TestNetDenominationToken.sol"},
		{Name: "Time", SourcePath: "Time.sol"},
		{Name: "TimeControlled", SourcePath: "TimeControlled.sol"},
	}
}

// NewSet builds an artifact set from specs. Every artifact gets fake
// bytecode for the ledger; an empty revision means "v1".
func NewSet(t testing.TB, specs []ArtifactSpec) *artifact.Set {
	t.Helper()
	artifacts := make([]*artifact.Artifact, 0, len(specs))
	for _, s := range specs {
		revision := s.Revision
		if revision == "" {
			revision = "v1"
		}
		var iface abi.Interface
		if s.Name == "Delegator" {
			iface = ProxyABI
		}
		artifacts = append(artifacts, artifact.New(s.Name, s.SourcePath, iface, Bytecode(s.Name, revision)))
	}
	set, err := artifact.NewSet(artifacts)
	if err != nil {
		t.Fatalf("build artifact set: %v", err)
	}
	return set
}

// WithRevision returns specs with name moved to revision.
func WithRevision(specs []ArtifactSpec, name, revision string) []ArtifactSpec {
	out := append([]ArtifactSpec(nil), specs...)
	for i := range out {
		if out[i].Name == name {
			out[i].Revision = revision
		}
	}
	return out
}

package deployment

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
)

// =============================================================================
// Manifest Functions
// =============================================================================

// Indentation of the two manifest files.
const (
	AddressManifestIndent = " "
	BlockManifestIndent   = "  "
)

// AddressMapping builds the "name -> address" mapping for the address
// manifest from the plan's manifest names. Every listed name must resolve
// to an address; universe is added when a root domain object was created.
func AddressMapping(plan Plan, resolve func(name string) (abi.Address, bool), universe *abi.Address) (map[string]string, error) {
	mapping := make(map[string]string, len(plan.ManifestNames)+1)
	for _, name := range plan.ManifestNames {
		addr, ok := resolve(name)
		if !ok {
			return nil, artifact.NewArtifactError("manifest", name, artifact.ErrNotYetUploaded)
		}
		mapping[name] = addr.Hex()
	}
	if universe != nil {
		mapping[NameUniverse] = universe.Hex()
	}
	return mapping, nil
}

// MergeAddressManifest replaces the networkID entry of an existing address
// manifest and keeps every other network's entry. existing may be empty.
//
// Example:
//
//	out, _ := MergeAddressManifest([]byte(`{"1":{"Controller":"0x01"}}`), "3", mapping)
//	// {"1": {...}, "3": {...}} indented with a single space
func MergeAddressManifest(existing []byte, networkID string, mapping map[string]string) ([]byte, error) {
	value, err := json.Marshal(mapping)
	if err != nil {
		return nil, err
	}
	return mergeNetworkEntry(existing, networkID, value, AddressManifestIndent)
}

// MergeBlockManifest records the starting block height for networkID and
// keeps every other network's entry. Two-space indentation.
func MergeBlockManifest(existing []byte, networkID string, blockNumber uint64) ([]byte, error) {
	return mergeNetworkEntry(existing, networkID, []byte(strconv.FormatUint(blockNumber, 10)), BlockManifestIndent)
}

// mergeNetworkEntry is a read-modify-write over the whole top-level object.
// Other networks' values are carried as raw JSON so their content is
// unchanged.
func mergeNetworkEntry(existing []byte, networkID string, value json.RawMessage, indent string) ([]byte, error) {
	doc := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(existing)) > 0 {
		if err := json.Unmarshal(existing, &doc); err != nil {
			return nil, NewPlanError("manifest", err.Error(), ErrInvalidManifest)
		}
		if doc == nil {
			doc = make(map[string]json.RawMessage)
		}
	}
	doc[networkID] = value
	return json.MarshalIndent(doc, "", indent)
}

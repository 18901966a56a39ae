package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Policy Table Tests
// =============================================================================

func TestDefaultPolicies_Valid(t *testing.T) {
	table := DefaultPolicies()
	require.NoError(t, table.Validate())

	assert.Equal(t, NameController, table.NameFor(RoleRegistry))
	assert.Equal(t, NameAugurLite, table.NameFor(RoleRootLog))
	assert.Equal(t, NameDelegator, table.NameFor(RoleProxy))
	assert.Equal(t, NameTime, table.NameFor(RoleClock))
	assert.Equal(t, NameTimeControlled, table.NameFor(RoleTestClock))
	assert.Equal(t, "", PolicyTable{}.NameFor(RoleRegistry))
}

func TestParsePolicies(t *testing.T) {
	data := []byte(`
Registry: {role: registry, manifest: true}
Events: {role: root_log}
Proxy: {role: proxy}
Token: {delegated: true, test_only: true}
Market: {initialize: true, whitelist: true, manifest: true}
`)
	table, err := ParsePolicies(data)
	require.NoError(t, err)

	assert.Equal(t, "Registry", table.NameFor(RoleRegistry))
	assert.True(t, table.Lookup("Token").Delegated)
	assert.True(t, table.Lookup("Market").Whitelist)
	assert.Equal(t, Policy{}, table.Lookup("Unknown"))
}

func TestParsePolicies_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"bad yaml", "[[[", ErrInvalidPolicy},
		{"missing registry", "Events: {role: root_log}\nProxy: {role: proxy}", ErrMissingRole},
		{"two registries", "A: {role: registry}\nB: {role: registry}\nE: {role: root_log}\nP: {role: proxy}", ErrInvalidPolicy},
		{"unknown role", "A: {role: registry}\nE: {role: root_log}\nP: {role: proxy}\nX: {role: oracle}", ErrInvalidPolicy},
		{"delegated registry", "A: {role: registry, delegated: true}\nE: {role: root_log}\nP: {role: proxy}", ErrInvalidPolicy},
		{"initialized proxy", "A: {role: registry}\nE: {role: root_log}\nP: {role: proxy, initialize: true}", ErrInvalidPolicy},
		{"whitelisted test clock", "A: {role: registry}\nE: {role: root_log}\nP: {role: proxy}\nT: {role: test_clock, whitelist: true}", ErrInvalidPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicies([]byte(tt.data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPolicyTable_YAMLRoundTripIsSorted(t *testing.T) {
	out, err := yaml.Marshal(DefaultPolicies())
	require.NoError(t, err)

	parsed, err := ParsePolicies(out)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicies(), parsed)

	assert.Regexp(t, `(?s)^AugurLite:.*ClaimTradingProceeds:.*Controller:`, string(out))
}

package deployment

import (
	"testing"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// State Machine Tests
// =============================================================================

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from  State
		to    State
		valid bool
	}{
		{StatePending, StateUploaded, true},
		{StatePending, StateSkipped, true},
		{StateUploaded, StateRegistered, true},
		{StateRegistered, StateInitialized, true},
		{StateRegistered, StateWhitelisted, true},
		{StateSkipped, StateInitialized, true},
		{StateSkipped, StateWhitelisted, true},
		{StateInitialized, StateWhitelisted, true},

		{StatePending, StateRegistered, false},
		{StateUploaded, StateSkipped, false},
		{StateSkipped, StateUploaded, false},
		{StateRegistered, StateSkipped, false},
		{StateWhitelisted, StateInitialized, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidTransition(tt.from, tt.to))
			err := CheckTransition("Token", tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

// =============================================================================
// DecideUpload Tests
// =============================================================================

func TestDecideUpload(t *testing.T) {
	hashA := abi.Hash{1}
	hashB := abi.Hash{2}

	tests := []struct {
		name       string
		existing   bool
		registered abi.Hash
		candidate  abi.Hash
		skip       bool
		reason     string
	}{
		{"fresh registry never skips", false, hashA, hashA, false, "fresh registry"},
		{"never registered", true, abi.Hash{}, hashA, false, "never registered"},
		{"hash changed", true, hashA, hashB, false, "content hash changed"},
		{"hash unchanged", true, hashA, hashA, true, "content hash unchanged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecideUpload(tt.existing, tt.registered, tt.candidate)
			assert.Equal(t, tt.skip, d.Skip)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

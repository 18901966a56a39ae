package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
	"github.com/artpar/deployer/internal/shell/transaction"
	"github.com/artpar/deployer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = abi.MustParseAddress("0x00000000000000000000000000000000000000d0")
	stranger = abi.MustParseAddress("0x00000000000000000000000000000000000000e0")
)

// setupRegistry installs a registry owned by owner and returns a client
// that sends as from.
func setupRegistry(t *testing.T, from abi.Address) (*Client, *testutil.Ledger) {
	t.Helper()
	ledger := testutil.NewLedger("4")
	addr, err := ledger.Install(owner, testutil.Bytecode("Controller", "v1"))
	require.NoError(t, err)

	builder := transaction.NewBuilder(ledger, transaction.Config{From: from}, nil)
	return NewClient(builder, addr), ledger
}

func TestKey(t *testing.T) {
	key, err := Key("Controller")
	require.NoError(t, err)
	assert.Equal(t, "Controller", KeyName(key))
	assert.Equal(t, byte(0), key[len("Controller")])

	target, err := TargetKey("TestNetDenominationToken")
	require.NoError(t, err)
	assert.Equal(t, "TestNetDenominationTokenTarget", KeyName(target))

	_, err = Key(strings.Repeat("x", 33))
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, err, abi.ErrNameTooLong)
}

func TestGetRegisteredDetails_NeverRegistered(t *testing.T) {
	c, _ := setupRegistry(t, owner)
	key, err := Key("ShareToken")
	require.NoError(t, err)

	d, err := c.GetRegisteredDetails(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestRegisterContract_RoundTrip(t *testing.T) {
	c, ledger := setupRegistry(t, owner)
	ctx := context.Background()

	key, err := Key("ShareToken")
	require.NoError(t, err)
	target := abi.MustParseAddress("0x00000000000000000000000000000000000000a1")
	provenance := Provenance{0xde, 0xad}
	hash := artifact.ContentHash([]byte{0x60, 0x80})

	require.NoError(t, c.RegisterContract(ctx, key, target, provenance, hash))

	d, err := c.GetRegisteredDetails(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, target, d.Address)
	assert.Equal(t, provenance, d.Provenance)
	assert.Equal(t, hash, d.ContentHash)

	stored, ok := ledger.Registered(c.Address(), "ShareToken")
	require.True(t, ok)
	assert.Equal(t, target, stored.Address)
}

func TestRegisterContract_RejectedForNonOwner(t *testing.T) {
	c, _ := setupRegistry(t, stranger)
	key, err := Key("ShareToken")
	require.NoError(t, err)

	err = c.RegisterContract(context.Background(), key, stranger, Provenance{}, abi.Hash{})
	assert.ErrorIs(t, err, ErrRegistrationRejected)
	assert.ErrorIs(t, err, transaction.ErrTransportFailure)

	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "ShareToken", regErr.Key)
}

func TestWhitelist(t *testing.T) {
	c, _ := setupRegistry(t, owner)
	ctx := context.Background()
	addr := abi.MustParseAddress("0x00000000000000000000000000000000000000a2")

	ok, err := c.IsWhitelisted(ctx, addr)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.AddToWhitelist(ctx, addr, "CompleteSets"))

	ok, err = c.IsWhitelisted(ctx, addr)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyOwner(t *testing.T) {
	tests := []struct {
		name    string
		caller  abi.Address
		wantErr error
	}{
		{name: "owner", caller: owner},
		{name: "stranger", caller: stranger, wantErr: ErrOwnershipMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupRegistry(t, tt.caller)

			got, err := c.GetOwner(context.Background())
			require.NoError(t, err)
			assert.Equal(t, owner, got)

			err = c.VerifyOwner(context.Background(), tt.caller)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

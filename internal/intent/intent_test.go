package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseOnCompletedRequiresExactCompletion(t *testing.T) {
	for _, status := range []RemoteStatus{RemoteClaimed, RemotePreconfirmed, RemoteFilled} {
		assert.False(t, CloseOnCompleted.SatisfiedBy(status), "status %s must not satisfy completed", status)
	}
	assert.True(t, CloseOnCompleted.SatisfiedBy(RemoteCompleted))
}

func TestCloseOnClaimedAcceptsAnyProgress(t *testing.T) {
	for _, status := range []RemoteStatus{RemoteClaimed, RemotePreconfirmed, RemoteFilled, RemoteCompleted} {
		assert.True(t, CloseOnClaimed.SatisfiedBy(status), "status %s must satisfy claimed", status)
	}
	assert.False(t, CloseOnClaimed.SatisfiedBy(RemotePending))
}

func TestTerminalStatusesNeverSatisfyThresholds(t *testing.T) {
	for _, c := range []CloseOn{CloseOnClaimed, CloseOnPreconfirmed, CloseOnFilled, CloseOnCompleted} {
		assert.False(t, c.SatisfiedBy(RemoteFailed))
		assert.False(t, c.SatisfiedBy(RemoteExpired))
	}
}

func TestUnknownStatusRanksBelowEverything(t *testing.T) {
	assert.False(t, CloseOnClaimed.SatisfiedBy(RemoteStatus("SETTLING")))
}

func TestTerminal(t *testing.T) {
	assert.True(t, RemoteCompleted.Terminal())
	assert.True(t, RemoteFailed.Terminal())
	assert.True(t, RemoteExpired.Terminal())
	assert.False(t, RemoteFilled.Terminal())
	assert.False(t, RemotePending.Terminal())
}

func TestNormalizeCallDefaultsAndCasing(t *testing.T) {
	got := NormalizeCall(Call{To: "0xAbCd000000000000000000000000000000001111"})
	assert.Equal(t, "0xabcd000000000000000000000000000000001111", got.To)
	assert.Equal(t, "0x", got.Data)
	assert.Equal(t, "0", got.Value)

	got = NormalizeCall(Call{To: "0x1", Data: "0xDEADBEEF", Value: "2"})
	assert.Equal(t, "0xdeadbeef", got.Data)
	assert.Equal(t, "2", got.Value)
}

func TestValidateCalls(t *testing.T) {
	err := ValidateCalls(nil)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidOptions, CodeOf(err))

	err = ValidateCalls([]Call{{To: "not-an-address"}})
	require.Error(t, err)

	err = ValidateCalls([]Call{{To: "0x1111111111111111111111111111111111111111"}})
	assert.NoError(t, err)
}

func TestValidCloseOn(t *testing.T) {
	assert.True(t, ValidCloseOn(""))
	assert.True(t, ValidCloseOn(CloseOnFilled))
	assert.False(t, ValidCloseOn(CloseOn("instant")))
}

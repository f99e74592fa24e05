package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	require.Equal(t, ModeTest, CurrentMode())

	t.Setenv(TestModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
	require.Equal(t, ModeServe, CurrentMode())
}

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-cms/odyssey-cms/internal/app"
	_ "github.com/odyssey-cms/odyssey-cms/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}

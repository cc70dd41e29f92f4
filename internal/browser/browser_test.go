package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTrimFlag(t *testing.T) {
	assert.Equal(t, "disable-gpu", trimFlag("--disable-gpu"))
	assert.Equal(t, "disable-gpu", trimFlag("disable-gpu"))
	assert.Equal(t, "", trimFlag("--"))
}

func TestCombineContext_SecondaryCancelPropagates(t *testing.T) {
	parent := context.Background()
	secondary, cancelSecondary := context.WithCancel(context.Background())

	combined, cancel := combineContext(parent, secondary)
	defer cancel()

	cancelSecondary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not cancelled after secondary cancel")
	}
}

func TestCombineContext_ParentCancelPropagates(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	combined, cancel := combineContext(parent, context.Background())
	defer cancel()

	cancelParent()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not cancelled after parent cancel")
	}
}

func TestLaunch_MissingExecutableFailsFast(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a process")
	}
	ctx, cancel := context.WithTimeout(context.Background(), launchProbeTimeout)
	defer cancel()

	_, err := Launch(ctx, Config{Headless: true, ExecutablePath: "/nonexistent/chromium"}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunch)
}

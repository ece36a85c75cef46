package agenticrealm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/logging"
	"github.com/d-andres/AgenticRealm/provider/rule"
	"github.com/d-andres/AgenticRealm/scenario"
)

func newTestRealm(t *testing.T) *Realm {
	t.Helper()
	realm, err := New(func(o *Options) {
		o.TickInterval = 20 * time.Millisecond
		o.DispatchTimeout = 100 * time.Millisecond
		o.Seed = 1
		o.Logger = logging.NewLogger(&logging.Config{Level: logging.LogLevelError, Output: io.Discard})
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = realm.Shutdown(context.Background()) })

	ctx := context.Background()
	require.NoError(t, realm.RegisterProvider(ctx, rule.New("gen-rules", core.RoleScenarioGenerator, func(o *rule.Options) { o.Seed = 42 })))
	require.NoError(t, realm.RegisterProvider(ctx, rule.New("npc-rules", core.RoleNPCAdmin, func(o *rule.Options) { o.Seed = 42 })))
	return realm
}

func TestRealm_EndToEnd(t *testing.T) {
	realm := newTestRealm(t)
	ctx := context.Background()

	health := realm.PoolHealth()
	assert.Equal(t, 1, health[core.RoleScenarioGenerator].Connected)
	assert.Equal(t, 1, health[core.RoleNPCAdmin].Connected)

	id, err := realm.CreateInstance(ctx, "market_square")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		status, err := realm.InstanceStatus(id)
		return err == nil && status == scenario.StatusActive
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, realm.GenerationFailure(id))

	require.NoError(t, realm.JoinInstance(ctx, id, "player-1"))

	outcome, err := realm.SubmitAction(id, "player-1", scenario.ActionObserve, map[string]any{"radius": 500})
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	snap, err := realm.WorldSnapshot(id)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Stores)
	assert.NotEmpty(t, snap.NPCs)
	assert.NotEmpty(t, snap.TargetItemID)

	require.NoError(t, realm.StopInstance(ctx, id))
	status, err := realm.InstanceStatus(id)
	require.NoError(t, err)
	assert.Equal(t, scenario.StatusStopped, status)
}

func TestRealm_DispatchBypassesEngine(t *testing.T) {
	realm := newTestRealm(t)
	resp := realm.Dispatch(context.Background(), core.RoleNPCAdmin, "npc_idle", map[string]any{
		"world_width": 800.0, "world_height": 600.0,
	})
	require.True(t, resp.Success)
	assert.NotEmpty(t, resp.Result["mood"])
}

func TestRealm_UnknownTemplate(t *testing.T) {
	realm := newTestRealm(t)
	_, err := realm.CreateInstance(context.Background(), "no_such_template")
	assert.Error(t, err)
}

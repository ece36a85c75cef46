package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/internal/testutil"
)

func TestPool_RoundRobinFairness(t *testing.T) {
	p := New()
	ctx := context.Background()

	provs := []*testutil.ScriptedProvider{
		testutil.NewScripted("p1", core.RoleNPCAdmin, map[string]any{"ok": true}),
		testutil.NewScripted("p2", core.RoleNPCAdmin, map[string]any{"ok": true}),
		testutil.NewScripted("p3", core.RoleNPCAdmin, map[string]any{"ok": true}),
	}
	for _, prov := range provs {
		require.NoError(t, p.Register(ctx, prov))
	}

	// k consecutive requests visit each of k providers exactly once before
	// any repeats, across multiple rounds.
	for round := 0; round < 4; round++ {
		for i := 0; i < len(provs); i++ {
			resp := p.Request(ctx, core.RoleNPCAdmin, "npc_idle", nil)
			assert.True(t, resp.Success)
		}
		for _, prov := range provs {
			assert.Equal(t, round+1, prov.Calls(), "provider %s after round %d", prov.Name(), round)
		}
	}
	assert.Equal(t, uint64(12), p.RequestCount())
}

func TestPool_RequestWithoutProviderIsStructuredFailure(t *testing.T) {
	p := New()
	resp := p.Request(context.Background(), core.RoleJudge, "score", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "no_provider", resp.Result["error"])
	assert.Equal(t, core.RoleJudge, resp.Role)
}

func TestPool_RegisterRejectsDuplicateNames(t *testing.T) {
	p := New()
	ctx := context.Background()
	require.NoError(t, p.Register(ctx, testutil.NewScripted("dup", core.RoleNPCAdmin, nil)))
	err := p.Register(ctx, testutil.NewScripted("dup", core.RoleNPCAdmin, nil))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

// gatedConnectProvider signals when Connect is entered and then waits for the
// gate, so a test can hold two registrations between the duplicate check and
// the append.
type gatedConnectProvider struct {
	*testutil.ScriptedProvider
	entered chan<- struct{}
	gate    <-chan struct{}
}

func (p *gatedConnectProvider) Connect(ctx context.Context) error {
	p.entered <- struct{}{}
	<-p.gate
	return p.ScriptedProvider.Connect(ctx)
}

func TestPool_ConcurrentRegisterSameNameAdmitsOne(t *testing.T) {
	p := New()
	entered := make(chan struct{}, 2)
	gate := make(chan struct{})

	provs := []*gatedConnectProvider{
		{ScriptedProvider: testutil.NewScripted("dup", core.RoleNPCAdmin, nil), entered: entered, gate: gate},
		{ScriptedProvider: testutil.NewScripted("dup", core.RoleNPCAdmin, nil), entered: entered, gate: gate},
	}
	errs := make(chan error, len(provs))
	for _, prov := range provs {
		go func() { errs <- p.Register(context.Background(), prov) }()
	}

	// Both registrations are past the duplicate check and inside Connect;
	// releasing the gate makes them race to the append.
	<-entered
	<-entered
	close(gate)

	failures := 0
	for range provs {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, ErrDuplicateName)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of the racing registrations may land")
	assert.Equal(t, 1, p.Health()[core.RoleNPCAdmin].Registered)

	connected := 0
	for _, prov := range provs {
		if prov.Connected() {
			connected++
		}
	}
	assert.Equal(t, 1, connected, "the loser is disconnected again")
}

func TestPool_RegisterFailsWhenConnectFails(t *testing.T) {
	p := New()
	bad := testutil.NewScripted("bad", core.RoleNPCAdmin, nil)
	bad.FailConnect = errors.New("no upstream")

	err := p.Register(context.Background(), bad)
	require.Error(t, err)

	// The provider must not be left in the rotation.
	resp := p.Request(context.Background(), core.RoleNPCAdmin, "npc_idle", nil)
	assert.Equal(t, "no_provider", resp.Result["error"])
}

func TestPool_BroadcastCollectsFailuresToo(t *testing.T) {
	p := New()
	ctx := context.Background()
	require.NoError(t, p.Register(ctx, testutil.NewScripted("ok1", core.RoleGameMaster, map[string]any{"v": 1})))
	require.NoError(t, p.Register(ctx, testutil.FailingProvider("boom", core.RoleGameMaster)))
	require.NoError(t, p.Register(ctx, testutil.NewScripted("ok2", core.RoleGameMaster, map[string]any{"v": 2})))

	responses := p.Broadcast(ctx, core.RoleGameMaster, "narrate", nil)
	require.Len(t, responses, 3, "one failing provider must not shrink the result set")

	success := 0
	for _, resp := range responses {
		if resp.Success {
			success++
		}
	}
	assert.Equal(t, 2, success)
}

func TestPool_UnregisterRemovesFromRotation(t *testing.T) {
	p := New()
	ctx := context.Background()
	a := testutil.NewScripted("a", core.RoleNPCAdmin, nil)
	b := testutil.NewScripted("b", core.RoleNPCAdmin, nil)
	require.NoError(t, p.Register(ctx, a))
	require.NoError(t, p.Register(ctx, b))

	require.NoError(t, p.Unregister(ctx, "a"))
	assert.False(t, a.Connected(), "unregister disconnects the provider")

	for i := 0; i < 3; i++ {
		p.Request(ctx, core.RoleNPCAdmin, "npc_idle", nil)
	}
	assert.Zero(t, a.Calls())
	assert.Equal(t, 3, b.Calls())
}

func TestPool_HealthCounts(t *testing.T) {
	p := New()
	ctx := context.Background()
	require.NoError(t, p.Register(ctx, testutil.NewScripted("h1", core.RoleNPCAdmin, nil)))
	h2 := testutil.NewScripted("h2", core.RoleNPCAdmin, nil)
	require.NoError(t, p.Register(ctx, h2))
	require.NoError(t, h2.Disconnect(ctx))

	health := p.Health()
	assert.Equal(t, 2, health[core.RoleNPCAdmin].Registered)
	assert.Equal(t, 1, health[core.RoleNPCAdmin].Connected)
}

func TestPool_ShutdownDisconnectsAndEmpties(t *testing.T) {
	p := New()
	ctx := context.Background()
	prov := testutil.NewScripted("s1", core.RoleNPCAdmin, nil)
	require.NoError(t, p.Register(ctx, prov))

	p.Shutdown(ctx)
	assert.False(t, prov.Connected())
	resp := p.Request(ctx, core.RoleNPCAdmin, "npc_idle", nil)
	assert.Equal(t, "no_provider", resp.Result["error"])
}

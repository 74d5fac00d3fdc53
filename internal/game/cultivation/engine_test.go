package cultivation

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/cultivation/internal/data"
	"github.com/udisondev/cultivation/internal/model"
)

func TestEngine_CascadesThroughFreeRealms(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(1, 1), 0)

	// 100 + 200 + 400: ровно три свободных прорыва, на (1,4) опыта уже нет.
	res, err := e.svc.GrantExperience(ctx, ch.ID, 700)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Advanced)
	assert.Equal(t, model.Pos(1, 1), res.From)
	assert.Equal(t, model.Pos(1, 4), res.FinalRealm)
	assert.Empty(t, res.BlockedByGate)
	assert.False(t, res.Died)

	got, ok := e.character(ch.ID)
	require.True(t, ok)
	assert.Equal(t, model.Pos(1, 4), got.Realm)
	assert.Equal(t, uint64(0), got.Experience)
	assert.Zero(t, e.rng.draws)
}

func TestEngine_FoundationGatePassesWithItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(1, 4), 800, stack(data.ItemFoundationPill, 2))

	res, err := e.svc.AttemptBreakthrough(ctx, ch.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, model.Pos(2, 1), res.FinalRealm)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].Success)
	assert.Nil(t, res.Records[0].Roll, "item-gated gate never rolls")
	assert.Nil(t, res.Records[0].Snapshot)

	got, _ := e.character(ch.ID)
	assert.Equal(t, model.Pos(2, 1), got.Realm)
	assert.Equal(t, uint64(0), got.Experience, "experience reduced by exactly the (1,4) cost")
	assert.Equal(t, int64(1), e.inventory(ch.ID)[data.ItemFoundationPill])
	assert.Zero(t, e.rng.draws)
}

func TestEngine_FoundationGateBlocksWithoutItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(1, 4), 800, stack(data.ItemLightningWard, 1))

	for range 3 {
		res, err := e.svc.AttemptBreakthrough(ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Advanced)
		assert.Equal(t, model.GateFoundation, res.BlockedByGate)
		assert.Empty(t, res.Records)
	}

	got, _ := e.character(ch.ID)
	assert.Equal(t, ch, got, "blocked gate never changes the character")
	assert.Equal(t, map[int32]int64{data.ItemLightningWard: 1}, e.inventory(ch.ID))
	assert.Empty(t, e.records())
	assert.Zero(t, e.rng.draws)
}

func TestEngine_BlockedGateKeepsPartialProgressAndExcessExperience(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(1, 2), 0)

	res, err := e.svc.GrantExperience(ctx, ch.ID, 200+400+5000)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Advanced)
	assert.Equal(t, model.Pos(1, 4), res.FinalRealm)
	assert.Equal(t, model.GateFoundation, res.BlockedByGate)

	got, _ := e.character(ch.ID)
	assert.Equal(t, uint64(5000), got.Experience, "excess experience is banked on the character")
}

func TestEngine_CrossesGateAndContinues(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(1, 1), 0, stack(data.ItemFoundationPill, 1))

	// (1,1)→(1,2)→(1,3)→(1,4) свободно, врата основания, затем (2,1)→(2,2).
	res, err := e.svc.GrantExperience(ctx, ch.ID, 100+200+400+800+1500+7)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Advanced)
	assert.Equal(t, model.Pos(2, 2), res.FinalRealm)
	assert.Empty(t, res.BlockedByGate)

	got, _ := e.character(ch.ID)
	assert.Equal(t, uint64(7), got.Experience)
	assert.Empty(t, e.inventory(ch.ID))
}

func TestEngine_StatsFromFinalRealmOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(1, 1), 0)

	_, err := e.svc.GrantExperience(ctx, ch.ID, 700)
	require.NoError(t, err)

	got, _ := e.character(ch.ID)
	final, _ := e.ladder.Find(model.Pos(1, 4))
	assert.Equal(t, got.BaseStats.Add(final.Bonuses), got.Stats)
}

func TestEngine_StopsAtLadderEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(6, 3), 0)

	res, err := e.svc.GrantExperience(ctx, ch.ID, 1_000_000_000)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, model.Pos(6, 4), res.FinalRealm)
	assert.Empty(t, res.BlockedByGate)

	got, _ := e.character(ch.ID)
	assert.Equal(t, uint64(1_000_000_000-2_000_000), got.Experience)
}

func TestEngine_MissingRealmAbortsWithPartialProgress(t *testing.T) {
	var levels []model.RealmLevel
	for _, l := range data.DefaultRealmLevels() {
		if l.Position == model.Pos(2, 3) {
			continue
		}
		levels = append(levels, l)
	}
	e := newEnvWith(t, levels, data.DefaultTribulationPolicies())
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(2, 1), 0)

	res, err := e.svc.GrantExperience(ctx, ch.ID, 1_000_000)
	require.NoError(t, err, "integrity problems are logged, not returned")

	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, model.Pos(2, 2), res.FinalRealm)

	got, _ := e.character(ch.ID)
	assert.Equal(t, model.Pos(2, 2), got.Realm)
	assert.Equal(t, uint64(1_000_000-1500), got.Experience)
}

func TestEngine_DeathGateKillsCharacter(t *testing.T) {
	e := newEnv(t, 0.9)
	ctx := context.Background()
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(2, 4), 6000, coreFormationItems()...)

	res, err := e.svc.AttemptBreakthrough(ctx, ch.ID)
	require.NoError(t, err)

	assert.True(t, res.Died)
	assert.Equal(t, 0, res.Advanced)
	assert.Equal(t, model.Pos(2, 4), res.FinalRealm)
	require.Len(t, res.Records, 1)
	require.NotNil(t, res.Records[0].Snapshot)

	_, alive := e.character(ch.ID)
	assert.False(t, alive)
	assert.Zero(t, e.ownedRows(ch.ID))
	assert.Equal(t, 1, e.rng.draws)
	assert.Contains(t, e.notifier.broadcastEvents(), EventTribulationDeath)
}

func TestEngine_FreeAdvancesThenDeathSnapshotsGateRealmStats(t *testing.T) {
	e := newEnv(t, 0.9)
	ctx := context.Background()
	// 1500 + 2500 + 4000 доводят до (2,4), остаток 6000 ровно на испытание.
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(2, 1), 14000, coreFormationItems()...)
	gate, _ := e.ladder.Find(model.Pos(2, 4))
	want := ch.BaseStats.Add(gate.Bonuses)

	res, err := e.svc.AttemptBreakthrough(ctx, ch.ID)
	require.NoError(t, err)
	require.True(t, res.Died)
	assert.Equal(t, model.Pos(2, 4), res.FinalRealm)
	require.Len(t, res.Records, 1)
	snap := res.Records[0].Snapshot
	require.NotNil(t, snap)
	assert.Equal(t, model.Pos(2, 4), snap.Character.Realm)
	assert.Equal(t, uint64(6000), snap.Character.Experience)
	assert.Equal(t, want, snap.Character.Stats)

	rb, err := e.svc.AdminRollback(ctx, res.Records[0].ID, "gm-alice")
	require.NoError(t, err)
	restored, ok := e.character(rb.NewCharacterID)
	require.True(t, ok)
	assert.Equal(t, model.Pos(2, 4), restored.Realm)
	assert.Equal(t, want, restored.Stats)
}

func TestEngine_ZeroAdvanceIsNotAnError(t *testing.T) {
	e := newEnv(t)
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(3, 2), 10)

	res, err := e.svc.AttemptBreakthrough(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Advanced)
	assert.Equal(t, model.Pos(3, 2), res.FinalRealm)
	assert.Empty(t, res.Records)
}

func TestEngine_UnknownCharacter(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.GrantExperience(context.Background(), 404, 10)
	assert.ErrorIs(t, err, ErrCharacterNotFound)
}

// Позиция персонажа никогда не уменьшается, пока он жив.
func TestEngine_MonotonicProgression(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	rolls := make([]float64, 64)
	for i := range rolls {
		rolls[i] = rng.Float64()
	}
	e := newEnv(t, rolls...)
	ctx := context.Background()

	inv := append(coreFormationItems(), stack(data.ItemFoundationPill, 1),
		stack(data.ItemNascentSoulPill, 1), stack(data.ItemHeartDemonIncense, 2))
	ch := e.addCharacter(t, 1, "Han Li", model.Pos(1, 1), 0, inv...)

	prev := ch.Realm
	for range 200 {
		res, err := e.svc.GrantExperience(ctx, ch.ID, uint64(rng.IntN(5_000)))
		if err != nil {
			require.ErrorIs(t, err, ErrCharacterNotFound)
			break
		}
		if res.Died {
			break
		}
		assert.GreaterOrEqual(t, res.FinalRealm.Compare(prev), 0, "%s after %s", res.FinalRealm, prev)
		prev = res.FinalRealm
	}
}

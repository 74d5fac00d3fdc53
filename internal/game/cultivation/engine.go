package cultivation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/cultivation/internal/model"
)

// BreakthroughResult — итог одного прохода движка прорывов.
type BreakthroughResult struct {
	From       model.RealmPosition
	Advanced   int
	FinalRealm model.RealmPosition
	// BlockedByGate is the gate ID that stopped the loop, or "".
	BlockedByGate string
	Died          bool
	// Records holds every tribulation record written during the pass.
	Records []*model.TribulationRecord
}

// Engine превращает накопленный опыт в прорывы по лестнице царств.
type Engine struct {
	ladder   *model.RealmLadder
	policies *model.TribulationPolicies
	gate     *Gate
}

// NewEngine creates a breakthrough engine.
func NewEngine(ladder *model.RealmLadder, policies *model.TribulationPolicies, gate *Gate) *Engine {
	return &Engine{ladder: ladder, policies: policies, gate: gate}
}

// AttemptBreakthroughs advances ch as far as its experience allows in one pass.
//
// The loop stops when experience runs short, at the end of the ladder, on a
// blocked gate, or on death. Experience left over after a stop stays on the
// character. The caller saves the returned state unless result.Died is set.
func (e *Engine) AttemptBreakthroughs(ctx context.Context, tx Tx, ch model.Character) (model.Character, BreakthroughResult, error) {
	res := BreakthroughResult{From: ch.Realm, FinalRealm: ch.Realm}

loop:
	for {
		cur, ok := e.ladder.Find(ch.Realm)
		if !ok {
			slog.Error("realm missing from ladder, breakthrough aborted",
				"characterID", ch.ID, "realm", ch.Realm.String(), "advanced", res.Advanced)
			break
		}
		if ch.Experience < cur.RequiredExperience {
			break
		}

		nextPos := ch.Realm.Next()
		if e.ladder.Beyond(nextPos) {
			break
		}
		next, ok := e.ladder.Find(nextPos)
		if !ok {
			slog.Error("next realm missing from ladder, breakthrough aborted",
				"characterID", ch.ID, "realm", ch.Realm.String(), "next", nextPos.String(), "advanced", res.Advanced)
			break
		}

		if policy, gated := e.policies.At(ch.Realm); gated {
			if res.Advanced > 0 {
				// Гейт и снимок должны видеть характеристики царства, на котором стоит персонаж.
				ch.RecomputeStats(cur)
			}
			updated, gr, err := e.gate.Attempt(ctx, tx, ch, policy)
			if err != nil {
				if errors.Is(err, ErrRealmMissing) {
					slog.Error("tribulation aborted on ladder data", "characterID", ch.ID, "gate", policy.GateID, "err", err)
					break
				}
				return ch, res, fmt.Errorf("tribulation %s for character %d: %w", policy.GateID, ch.ID, err)
			}
			if gr.Record != nil {
				res.Records = append(res.Records, gr.Record)
			}

			switch gr.Outcome {
			case GatePassed:
				ch = updated
				res.Advanced++
				continue
			case GateDied:
				res.Died = true
				res.FinalRealm = ch.Realm
				return ch, res, nil
			default:
				res.BlockedByGate = policy.GateID
				break loop
			}
		}

		ch.Experience -= cur.RequiredExperience
		ch.Realm = next.Position
		res.Advanced++
	}

	res.FinalRealm = ch.Realm
	if res.Advanced > 0 {
		// Характеристики берутся только от итогового царства.
		if final, ok := e.ladder.Find(ch.Realm); ok {
			ch.RecomputeStats(final)
		}
		slog.Debug("breakthroughs applied",
			"characterID", ch.ID,
			"from", res.From.String(),
			"to", res.FinalRealm.String(),
			"advanced", res.Advanced)
	}
	return ch, res, nil
}

package config

import (
	"time"

	"github.com/udisondev/cultivation/internal/data"
	"github.com/udisondev/cultivation/internal/model"
)

// ProgressionConfig — настройки прогрессии: окно отката, стартовые характеристики, врата.
type ProgressionConfig struct {
	RollbackTimeLimit time.Duration `yaml:"rollback_time_limit" env:"ROLLBACK_TIME_LIMIT" validate:"gt=0"`
	BaseStats         StatsConfig   `yaml:"base_stats" envPrefix:"BASE_"`
	// Gates replace the default gate set entirely when present in the file.
	Gates []GateConfig `yaml:"gates" validate:"dive"`
}

// StatsConfig — базовые характеристики нового персонажа.
type StatsConfig struct {
	HP      int64 `yaml:"hp" env:"HP" validate:"gte=0"`
	MP      int64 `yaml:"mp" env:"MP" validate:"gte=0"`
	Attack  int64 `yaml:"attack" env:"ATTACK" validate:"gte=0"`
	Defense int64 `yaml:"defense" env:"DEFENSE" validate:"gte=0"`
}

// GateConfig описывает одни врата испытания.
type GateConfig struct {
	ID             string       `yaml:"id" validate:"required,max=32"`
	Name           string       `yaml:"name"`
	Tier           int32        `yaml:"tier" validate:"gte=1"`
	SubTier        int32        `yaml:"sub_tier" validate:"gte=1,lte=4"`
	Items          []ItemConfig `yaml:"items" validate:"dive"`
	SuccessRate    float64      `yaml:"success_rate" validate:"gte=0,lte=1"`
	ItemGated      bool         `yaml:"item_gated"`
	DeathOnFailure bool         `yaml:"death_on_failure"`
}

// ItemConfig — требуемая стопка предметов.
type ItemConfig struct {
	ID       int32 `yaml:"id" validate:"gt=0"`
	Quantity int64 `yaml:"quantity" validate:"gt=0"`
}

// DefaultProgression returns the stock three-gate setup.
func DefaultProgression() ProgressionConfig {
	policies := data.DefaultTribulationPolicies()
	gates := make([]GateConfig, 0, len(policies))
	for _, p := range policies {
		g := GateConfig{
			ID:             p.GateID,
			Name:           p.Name,
			Tier:           p.Required.Tier,
			SubTier:        p.Required.SubTier,
			SuccessRate:    p.SuccessRate,
			ItemGated:      p.ItemGated,
			DeathOnFailure: p.DeathOnFailure,
		}
		for _, it := range p.RequiredItems {
			g.Items = append(g.Items, ItemConfig{ID: it.ItemID, Quantity: it.Quantity})
		}
		gates = append(gates, g)
	}

	return ProgressionConfig{
		RollbackTimeLimit: 7 * 24 * time.Hour,
		BaseStats:         StatsConfig{HP: 100, MP: 50, Attack: 10, Defense: 5},
		Gates:             gates,
	}
}

// Policies builds the indexed tribulation policies.
func (p ProgressionConfig) Policies() (*model.TribulationPolicies, error) {
	out := make([]model.TribulationPolicy, 0, len(p.Gates))
	for _, g := range p.Gates {
		policy := model.TribulationPolicy{
			GateID:         g.ID,
			Name:           g.Name,
			Required:       model.Pos(g.Tier, g.SubTier),
			SuccessRate:    g.SuccessRate,
			ItemGated:      g.ItemGated,
			DeathOnFailure: g.DeathOnFailure,
		}
		for _, it := range g.Items {
			policy.RequiredItems = append(policy.RequiredItems, model.ItemStack{ItemID: it.ID, Quantity: it.Quantity})
		}
		out = append(out, policy)
	}
	return model.NewTribulationPolicies(out)
}

// Stats converts the configured base stats.
func (s StatsConfig) Stats() model.StatBonuses {
	return model.StatBonuses{HP: s.HP, MP: s.MP, Attack: s.Attack, Defense: s.Defense}
}

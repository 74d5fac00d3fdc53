package data

import "github.com/udisondev/cultivation/internal/model"

// Item IDs used by the default tribulation policies.
const (
	ItemFoundationPill    int32 = 2001 // Пилюля основания
	ItemGoldenCorePill    int32 = 2002
	ItemLightningWard     int32 = 2003 // Громоотводный талисман
	ItemNascentSoulPill   int32 = 2004
	ItemHeartDemonIncense int32 = 2005
)

type realmDef struct {
	tier       int32
	subTier    int32
	name       string
	required   uint64
	difficulty int32
	hp, mp     int64
	atk, def   int64
}

// realmDefs — лестница царств: 6 великих царств × 4 под-ступени.
// required — опыт, который нужно накопить на ступени, чтобы шагнуть на следующую.
var realmDefs = []realmDef{
	{1, 1, "Qi Refining, Early", 100, 1, 0, 0, 0, 0},
	{1, 2, "Qi Refining, Middle", 200, 1, 20, 10, 4, 2},
	{1, 3, "Qi Refining, Late", 400, 1, 45, 25, 9, 5},
	{1, 4, "Qi Refining, Peak", 800, 2, 75, 40, 15, 8},

	{2, 1, "Foundation Establishment, Early", 1_500, 3, 200, 120, 40, 22},
	{2, 2, "Foundation Establishment, Middle", 2_500, 3, 280, 170, 55, 30},
	{2, 3, "Foundation Establishment, Late", 4_000, 3, 370, 230, 72, 40},
	{2, 4, "Foundation Establishment, Peak", 6_000, 4, 470, 300, 92, 52},

	{3, 1, "Core Formation, Early", 10_000, 5, 1_000, 650, 200, 110},
	{3, 2, "Core Formation, Middle", 15_000, 5, 1_250, 800, 250, 140},
	{3, 3, "Core Formation, Late", 22_000, 5, 1_550, 980, 310, 175},
	{3, 4, "Core Formation, Peak", 32_000, 6, 1_900, 1_200, 380, 215},

	{4, 1, "Nascent Soul, Early", 50_000, 7, 4_000, 2_600, 800, 450},
	{4, 2, "Nascent Soul, Middle", 75_000, 7, 4_800, 3_100, 960, 540},
	{4, 3, "Nascent Soul, Late", 110_000, 7, 5_700, 3_700, 1_140, 640},
	{4, 4, "Nascent Soul, Peak", 160_000, 8, 6_800, 4_400, 1_360, 760},

	{5, 1, "Spirit Severing, Early", 240_000, 9, 12_000, 8_000, 2_400, 1_350},
	{5, 2, "Spirit Severing, Middle", 350_000, 9, 14_000, 9_300, 2_800, 1_580},
	{5, 3, "Spirit Severing, Late", 500_000, 9, 16_500, 11_000, 3_300, 1_850},
	{5, 4, "Spirit Severing, Peak", 720_000, 10, 19_500, 13_000, 3_900, 2_200},

	{6, 1, "Void Refining, Early", 1_000_000, 11, 32_000, 21_000, 6_400, 3_600},
	{6, 2, "Void Refining, Middle", 1_400_000, 11, 37_000, 24_500, 7_400, 4_150},
	{6, 3, "Void Refining, Late", 2_000_000, 11, 43_000, 28_500, 8_600, 4_800},
	{6, 4, "Void Refining, Peak", 3_000_000, 12, 50_000, 33_000, 10_000, 5_600},
}

// DefaultRealmLevels returns the seed rows for realm_levels.
func DefaultRealmLevels() []model.RealmLevel {
	levels := make([]model.RealmLevel, 0, len(realmDefs))
	for i, d := range realmDefs {
		levels = append(levels, model.RealmLevel{
			ID:                     int32(i + 1),
			Position:               model.Pos(d.tier, d.subTier),
			Name:                   d.name,
			RequiredExperience:     d.required,
			BreakthroughDifficulty: d.difficulty,
			Bonuses: model.StatBonuses{
				HP:      d.hp,
				MP:      d.mp,
				Attack:  d.atk,
				Defense: d.def,
			},
		})
	}
	return levels
}

// DefaultTribulationPolicies — три врата в порядке лестницы.
func DefaultTribulationPolicies() []model.TribulationPolicy {
	return []model.TribulationPolicy{
		{
			GateID:        model.GateFoundation,
			Name:          "Foundation Establishment",
			Required:      model.Pos(1, 4),
			RequiredItems: []model.ItemStack{{ItemID: ItemFoundationPill, Quantity: 1}},
			SuccessRate:   1,
			ItemGated:     true,
		},
		{
			GateID:   model.GateCoreFormation,
			Name:     "Core Formation Tribulation",
			Required: model.Pos(2, 4),
			RequiredItems: []model.ItemStack{
				{ItemID: ItemGoldenCorePill, Quantity: 1},
				{ItemID: ItemLightningWard, Quantity: 3},
			},
			SuccessRate:    0.70,
			DeathOnFailure: true,
		},
		{
			GateID:   model.GateNascentSoul,
			Name:     "Nascent Soul Tribulation",
			Required: model.Pos(3, 4),
			RequiredItems: []model.ItemStack{
				{ItemID: ItemNascentSoulPill, Quantity: 1},
				{ItemID: ItemHeartDemonIncense, Quantity: 2},
			},
			SuccessRate:    0.50,
			DeathOnFailure: true,
		},
	}
}

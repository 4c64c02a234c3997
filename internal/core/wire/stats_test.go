package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatsScenario(t *testing.T) {
	want := ItemStats{
		Bind:   ptr(BindBinds),
		Rarity: RarityUnique,
		Lvl:    ptr(int32(40)),
	}

	stats, err := ParseStats("binds;rarity=unique;lvl=40")
	require.NoError(t, err)
	assert.Equal(t, want, stats)

	withUnknown, err := ParseStats("binds;foo=bar;rarity=unique;lvl=40")
	require.NoError(t, err)
	assert.Equal(t, want, withUnknown)
}

func TestParseStatsDefaults(t *testing.T) {
	stats, err := ParseStats("")
	require.NoError(t, err)
	assert.Equal(t, RarityArtifact, stats.Rarity)
	assert.Nil(t, stats.Bind)
	assert.Nil(t, stats.Lvl)
	assert.False(t, stats.FromEvent)
}

func TestParseStatsMalformedKeepsGoing(t *testing.T) {
	stats, err := ParseStats("lvl=abc;amount=-3;soulbound;target_rarity=heroic;cursed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stat "lvl"`)
	assert.Contains(t, err.Error(), `stat "amount"`)

	assert.Nil(t, stats.Lvl)
	assert.Nil(t, stats.Amount)
	require.NotNil(t, stats.Bind)
	assert.Equal(t, BindSoulBound, *stats.Bind)
	require.NotNil(t, stats.TargetRarity)
	assert.Equal(t, TargetHeroic, *stats.TargetRarity)
	assert.True(t, stats.Cursed)
}

func TestParseStatsFlagsAndScalars(t *testing.T) {
	stats, err := ParseStats("amount=25;personal;artisan_worthless;bonus_reselect;bonus_not_selected;frost;enhancement_upgrade_lvl=3;permbound")
	require.NoError(t, err)

	require.NotNil(t, stats.Amount)
	assert.Equal(t, uint32(25), *stats.Amount)
	assert.True(t, stats.Personal)
	assert.True(t, stats.ArtisanWorthless)
	assert.True(t, stats.BonusReselect)
	assert.True(t, stats.BonusNotSelected)
	assert.Equal(t, DamageFrost, stats.DamageType)
	require.NotNil(t, stats.EnhancementUpgradeLvl)
	assert.Equal(t, uint8(3), *stats.EnhancementUpgradeLvl)
	assert.Equal(t, BindPermBound, *stats.Bind)
}

func TestParseStatsValueKeepsExtraEquals(t *testing.T) {
	stats, err := ParseStats("custom_teleport=5,10,12,Map=One")
	require.NoError(t, err)
	require.NotNil(t, stats.CustomTeleport)
	assert.Equal(t, "Map=One", stats.CustomTeleport.MapName)
}

func TestParseStatsCustomTeleport(t *testing.T) {
	t.Run("four fields", func(t *testing.T) {
		stats, err := ParseStats("custom_teleport=344,17,40,Ithan")
		require.NoError(t, err)
		assert.Equal(t, &Teleport{MapID: 344, X: 17, Y: 40, MapName: "Ithan"}, stats.CustomTeleport)
	})

	t.Run("overflow stays in map name", func(t *testing.T) {
		stats, err := ParseStats("custom_teleport=344,17,40,Dom, piętro 2;binds")
		require.NoError(t, err)
		require.NotNil(t, stats.CustomTeleport)
		assert.Equal(t, "Dom, piętro 2", stats.CustomTeleport.MapName)
		assert.Equal(t, BindBinds, *stats.Bind)
	})

	t.Run("too few fields", func(t *testing.T) {
		stats, err := ParseStats("custom_teleport=344,17;lvl=5")
		require.Error(t, err)
		assert.Nil(t, stats.CustomTeleport)
		assert.Equal(t, int32(5), *stats.Lvl)
	})

	t.Run("bad coordinate", func(t *testing.T) {
		stats, err := ParseStats("custom_teleport=344,300,40,Ithan")
		require.Error(t, err)
		assert.Nil(t, stats.CustomTeleport)
	})
}

func TestParseStatsUnknownRarity(t *testing.T) {
	stats, err := ParseStats("rarity=mythic;lvl=1")
	require.Error(t, err)
	assert.Equal(t, RarityArtifact, stats.Rarity)
	assert.Equal(t, int32(1), *stats.Lvl)
}

func TestParseStatsFromEvent(t *testing.T) {
	stats, err := ParseStats("opis=Pamiątka z okazji Halloween 2023;binds")
	require.NoError(t, err)
	assert.True(t, stats.FromEvent)
}

func TestItemStats(t *testing.T) {
	_, err := Item{}.Stats()
	require.ErrorIs(t, err, ErrNoStats)

	stat := "legendary;rarity=legendary"
	stats, err := Item{Stat: &stat}.Stats()
	require.NoError(t, err)
	assert.Equal(t, RarityLegendary, stats.Rarity)
}

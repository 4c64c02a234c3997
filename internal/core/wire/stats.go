package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type BindType uint8

const (
	BindBinds BindType = iota + 1
	BindSoulBound
	BindPermBound
)

type Rarity uint8

const (
	RarityArtifact Rarity = iota
	RarityCommon
	RarityUnique
	RarityHeroic
	RarityUpgraded
	RarityLegendary
)

var rarityNames = map[string]Rarity{
	"artifact":  RarityArtifact,
	"common":    RarityCommon,
	"unique":    RarityUnique,
	"heroic":    RarityHeroic,
	"upgraded":  RarityUpgraded,
	"legendary": RarityLegendary,
}

func (r Rarity) String() string {
	switch r {
	case RarityCommon:
		return "common"
	case RarityUnique:
		return "unique"
	case RarityHeroic:
		return "heroic"
	case RarityUpgraded:
		return "upgraded"
	case RarityLegendary:
		return "legendary"
	default:
		return "artifact"
	}
}

// TargetRarity restricts which items an upgrade can be used on. Artifact is
// never a target.
type TargetRarity uint8

const (
	TargetCommon TargetRarity = iota + 1
	TargetUnique
	TargetHeroic
	TargetUpgraded
	TargetLegendary
)

var targetRarityNames = map[string]TargetRarity{
	"common":    TargetCommon,
	"unique":    TargetUnique,
	"heroic":    TargetHeroic,
	"upgraded":  TargetUpgraded,
	"legendary": TargetLegendary,
}

type DamageType uint8

const (
	DamageUndefined DamageType = iota
	DamagePoison
	DamageWound
	DamageFire
	DamageFrost
	DamageLight
)

// Teleport is the custom_teleport tuple: map id, coordinates and map name.
type Teleport struct {
	MapID   int64
	X       uint8
	Y       uint8
	MapName string
}

// ItemStats is the parsed form of an item stat string such as
// "binds;rarity=unique;lvl=40".
type ItemStats struct {
	Amount                *uint32
	FromEvent             bool
	Cursed                bool
	BonusReselect         bool
	ArtisanWorthless      bool
	Personal              bool
	BonusNotSelected      bool
	TargetRarity          *TargetRarity
	CustomTeleport        *Teleport
	Bind                  *BindType
	Rarity                Rarity
	Lvl                   *int32
	EnhancementUpgradeLvl *uint8
	DamageType            DamageType
}

// seasonalEvents marks items handed out during in-game events. The names are
// matched verbatim anywhere in the stat string.
var seasonalEvents = [...]string{
	"Urodziny Margonem",
	"Wielkanoc",
	"Sabat Czarownic",
	"Noc Kupały",
	"Wakacje",
	"Halloween",
	"Gwiazdka",
	"Boże Narodzienie",
	"Event świąteczny",
	"Pamiątka z okazji",
	"One Night Casino",
	"Licytacja",
	"Swięto Plonów",
	"Pierwszy dzień wiosny",
	"Majówkowy Festyn",
	"Dzień Dziecka",
}

type statSetter func(s *ItemStats, value string) error

func flag(set func(*ItemStats)) statSetter {
	return func(s *ItemStats, _ string) error {
		set(s)
		return nil
	}
}

var statTable = map[string]statSetter{
	"bonus_reselect":     flag(func(s *ItemStats) { s.BonusReselect = true }),
	"binds":              flag(func(s *ItemStats) { s.Bind = ptr(BindBinds) }),
	"soulbound":          flag(func(s *ItemStats) { s.Bind = ptr(BindSoulBound) }),
	"permbound":          flag(func(s *ItemStats) { s.Bind = ptr(BindPermBound) }),
	"personal":           flag(func(s *ItemStats) { s.Personal = true }),
	"artisan_worthless":  flag(func(s *ItemStats) { s.ArtisanWorthless = true }),
	"cursed":             flag(func(s *ItemStats) { s.Cursed = true }),
	"bonus_not_selected": flag(func(s *ItemStats) { s.BonusNotSelected = true }),
	"poison":             flag(func(s *ItemStats) { s.DamageType = DamagePoison }),
	"wound":              flag(func(s *ItemStats) { s.DamageType = DamageWound }),
	"fire":               flag(func(s *ItemStats) { s.DamageType = DamageFire }),
	"frost":              flag(func(s *ItemStats) { s.DamageType = DamageFrost }),
	"light":              flag(func(s *ItemStats) { s.DamageType = DamageLight }),
	"target_rarity": func(s *ItemStats, v string) error {
		t, ok := targetRarityNames[v]
		if !ok {
			return fmt.Errorf("unknown target rarity %q", v)
		}
		s.TargetRarity = &t
		return nil
	},
	"rarity": func(s *ItemStats, v string) error {
		r, ok := rarityNames[v]
		if !ok {
			return fmt.Errorf("unknown rarity %q", v)
		}
		s.Rarity = r
		return nil
	},
	"amount": func(s *ItemStats, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		s.Amount = ptr(uint32(n))
		return nil
	},
	"lvl": func(s *ItemStats, v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return err
		}
		s.Lvl = ptr(int32(n))
		return nil
	},
	"enhancement_upgrade_lvl": func(s *ItemStats, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return err
		}
		s.EnhancementUpgradeLvl = ptr(uint8(n))
		return nil
	},
	"custom_teleport": func(s *ItemStats, v string) error {
		t, err := parseTeleport(v)
		if err != nil {
			return err
		}
		s.CustomTeleport = &t
		return nil
	},
}

// ParseStats scans the stat string once, splitting on ';' and then on the
// first '='. Unknown keys are ignored. A known key with a bad value leaves its
// attribute unset; the problems are joined into the returned error while the
// remaining keys are still applied.
func ParseStats(stat string) (ItemStats, error) {
	stats := ItemStats{}
	for _, event := range seasonalEvents {
		if strings.Contains(stat, event) {
			stats.FromEvent = true
			break
		}
	}

	var errs []error
	for _, pair := range strings.Split(stat, ";") {
		key, value, _ := strings.Cut(pair, "=")
		set, ok := statTable[key]
		if !ok {
			continue
		}
		if err := set(&stats, value); err != nil {
			errs = append(errs, fmt.Errorf("stat %q: %w", key, err))
		}
	}
	return stats, errors.Join(errs...)
}

// parseTeleport reads "<map_id>,<x>,<y>,<map name>". Anything after the third
// comma is the map name, commas included.
func parseTeleport(v string) (Teleport, error) {
	parts := strings.SplitN(v, ",", 4)
	if len(parts) != 4 {
		return Teleport{}, fmt.Errorf("teleport %q: want 4 fields, got %d", v, len(parts))
	}
	id, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return Teleport{}, fmt.Errorf("teleport map id: %w", err)
	}
	x, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Teleport{}, fmt.Errorf("teleport x: %w", err)
	}
	y, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return Teleport{}, fmt.Errorf("teleport y: %w", err)
	}
	return Teleport{MapID: id, X: uint8(x), Y: uint8(y), MapName: parts[3]}, nil
}

func ptr[T any](v T) *T {
	return &v
}

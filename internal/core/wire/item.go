package wire

// ItemClass is the numeric item class code, 1 through 32.
type ItemClass uint8

const (
	ItemClassOneHandWeapon ItemClass = iota + 1
	ItemClassTwoHandWeapon
	ItemClassOneAndHalfHandWeapon
	ItemClassDistanceWeapon
	ItemClassHelpWeapon
	ItemClassWandWeapon
	ItemClassOrbWeapon
	ItemClassArmor
	ItemClassHelmet
	ItemClassBoots
	ItemClassGloves
	ItemClassRing
	ItemClassNecklace
	ItemClassShield
	ItemClassNeutral
	ItemClassConsume
	ItemClassGold
	ItemClassKeys
	ItemClassQuest
	ItemClassRenewable
	ItemClassArrows
	ItemClassTalisman
	ItemClassBook
	ItemClassBag
	ItemClassBless
	ItemClassUpgrade
	ItemClassRecipe
	ItemClassCoinage
	ItemClassQuiver
	ItemClassOutfits
	ItemClassPets
	ItemClassTeleports
)

// Item is a partial item record. Each diff carries only the fields that
// changed, so every field is optional.
type Item struct {
	Cl   *ItemClass `json:"cl,omitempty"`
	Del  *uint8     `json:"del,omitempty"`
	Loc  *string    `json:"loc,omitempty"`
	Name *string    `json:"name,omitempty"`
	St   *uint8     `json:"st,omitempty"`
	Stat *string    `json:"stat,omitempty"`
	X    *uint16    `json:"x,omitempty"`
	Y    *uint16    `json:"y,omitempty"`
}

// Deleted reports whether the record marks the item as removed.
func (i Item) Deleted() bool {
	return i.Del != nil && *i.Del == 1
}

// Stats parses the stat string of the item.
func (i Item) Stats() (ItemStats, error) {
	if i.Stat == nil {
		return ItemStats{}, ErrNoStats
	}
	return ParseStats(*i.Stat)
}

// Merge overwrites every field of i that is present in incoming.
func (i *Item) Merge(incoming Item) {
	mergeField(&i.Cl, incoming.Cl)
	mergeField(&i.Del, incoming.Del)
	mergeField(&i.Loc, incoming.Loc)
	mergeField(&i.Name, incoming.Name)
	mergeField(&i.St, incoming.St)
	mergeField(&i.Stat, incoming.Stat)
	mergeField(&i.X, incoming.X)
	mergeField(&i.Y, incoming.Y)
}

func MergeItem(base, incoming Item) Item {
	base.Merge(incoming)
	return base
}

func (h *HeroData) Merge(incoming HeroData) {
	mergeField(&h.Back, incoming.Back)
	mergeField(&h.Account, incoming.Account)
	mergeField(&h.ID, incoming.ID)
	mergeField(&h.Lvl, incoming.Lvl)
	mergeField(&h.Nick, incoming.Nick)
	mergeField(&h.Stasis, incoming.Stasis)
	mergeField(&h.StasisIncomingSeconds, incoming.StasisIncomingSeconds)
	mergeField(&h.Vip, incoming.Vip)
	mergeField(&h.X, incoming.X)
	mergeField(&h.Y, incoming.Y)
}

func MergeHero(base, incoming HeroData) HeroData {
	base.Merge(incoming)
	return base
}

func (o *OtherData) Merge(incoming OtherData) {
	mergeField(&o.Account, incoming.Account)
	mergeField(&o.Action, incoming.Action)
	mergeField(&o.Del, incoming.Del)
	mergeField(&o.Clan, incoming.Clan)
	mergeField(&o.Lvl, incoming.Lvl)
	mergeField(&o.OpLvl, incoming.OpLvl)
	mergeField(&o.Nick, incoming.Nick)
	mergeField(&o.Prof, incoming.Prof)
	mergeField(&o.Relation, incoming.Relation)
	mergeField(&o.Stasis, incoming.Stasis)
	mergeField(&o.StasisIncomingSeconds, incoming.StasisIncomingSeconds)
	mergeField(&o.X, incoming.X)
	mergeField(&o.Y, incoming.Y)
	mergeField(&o.Wanted, incoming.Wanted)
}

func (o OtherData) Deleted() bool {
	return o.Del != nil && *o.Del == 1
}

func MergeOther(base, incoming OtherData) OtherData {
	base.Merge(incoming)
	return base
}

// mergeField copies src into dst when src is present. The value is copied so
// the merged record never aliases the incoming one.
func mergeField[T any](dst **T, src *T) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}

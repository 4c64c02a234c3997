package wire

import "fmt"

// Category identifies one top-level slice of remote state carried by a frame.
// The order of the constants is the dispatch order.
type Category uint8

const (
	CategoryArtisanship Category = iota
	CategoryAsk
	CategoryEmo
	CategoryEnhancement
	CategoryFriends
	CategoryHero
	CategoryItem
	CategoryLoot
	CategoryMembers
	CategoryOther
	CategoryTask
	CategorySettings
	CategoryWarn

	categoryCount
)

var categoryKeys = [categoryCount]string{
	CategoryArtisanship: "artisanship",
	CategoryAsk:         "ask",
	CategoryEmo:         "emo",
	CategoryEnhancement: "enhancement",
	CategoryFriends:     "friends",
	CategoryHero:        "h",
	CategoryItem:        "item",
	CategoryLoot:        "loot",
	CategoryMembers:     "members",
	CategoryOther:       "other",
	CategoryTask:        "t",
	CategorySettings:    "settings",
	CategoryWarn:        "w",
}

var categoryNames = [categoryCount]string{
	CategoryArtisanship: "artisanship",
	CategoryAsk:         "ask",
	CategoryEmo:         "emo",
	CategoryEnhancement: "enhancement",
	CategoryFriends:     "friends",
	CategoryHero:        "hero",
	CategoryItem:        "item",
	CategoryLoot:        "loot",
	CategoryMembers:     "members",
	CategoryOther:       "other",
	CategoryTask:        "task",
	CategorySettings:    "settings",
	CategoryWarn:        "warn",
}

var keyToCategory = func() map[string]Category {
	m := make(map[string]Category, categoryCount)
	for c := Category(0); c < categoryCount; c++ {
		m[categoryKeys[c]] = c
	}
	return m
}()

// Categories returns every category in dispatch order.
func Categories() []Category {
	out := make([]Category, categoryCount)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// Key returns the top-level wire key of the category.
func (c Category) Key() string {
	if !c.Valid() {
		return ""
	}
	return categoryKeys[c]
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", uint8(c))
	}
	return categoryNames[c]
}

func (c Category) Valid() bool {
	return c < categoryCount
}

// CategoryForKey maps a top-level wire key onto its category.
func CategoryForKey(key string) (Category, bool) {
	c, ok := keyToCategory[key]
	return c, ok
}

// ParseCategory accepts either the readable name ("hero") or the wire key ("h").
func ParseCategory(s string) (Category, error) {
	for c := Category(0); c < categoryCount; c++ {
		if categoryNames[c] == s || categoryKeys[c] == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Flag is a boolean carried on the wire as 0 or 1.
type Flag bool

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flag: %w", err)
	}
	*f = n != 0
	return nil
}

// IDMap is a map keyed by numeric entity id. The server sends [] for an empty
// map, which is accepted here.
type IDMap[V any] map[int64]V

func (m *IDMap[V]) UnmarshalJSON(b []byte) error {
	if isEmptyArray(b) {
		*m = IDMap[V]{}
		return nil
	}
	var inner map[int64]V
	if err := json.Unmarshal(b, &inner); err != nil {
		return err
	}
	*m = inner
	return nil
}

func isEmptyArray(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) < 2 || b[0] != '[' || b[len(b)-1] != ']' {
		return false
	}
	return len(bytes.TrimSpace(b[1:len(b)-1])) == 0
}

type Profession uint8

const (
	ProfessionWarrior Profession = iota
	ProfessionMage
	ProfessionPaladin
	ProfessionHunter
	ProfessionTracker
	ProfessionBladeDancer
)

var professionLetters = [...]string{"w", "m", "p", "h", "t", "b"}

func ParseProfession(s string) (Profession, error) {
	for i, l := range professionLetters {
		if l == s {
			return Profession(i), nil
		}
	}
	return 0, fmt.Errorf("unknown profession %q", s)
}

func (p Profession) String() string {
	if int(p) < len(professionLetters) {
		return professionLetters[p]
	}
	return strconv.Itoa(int(p))
}

func (p Profession) MarshalText() ([]byte, error) {
	if int(p) >= len(professionLetters) {
		return nil, fmt.Errorf("unknown profession %d", p)
	}
	return []byte(professionLetters[p]), nil
}

func (p *Profession) UnmarshalText(b []byte) error {
	v, err := ParseProfession(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type Relation uint8

const (
	RelationNone Relation = iota + 1
	RelationFriend
	RelationEnemy
	RelationClan
	RelationClanAlly
	RelationClanEnemy
	RelationFractionAlly
	RelationFractionEnemy
)

type LootWantState uint8

const (
	LootNotWant LootWantState = iota
	LootWant
	LootMustHave
)

type Artisanship struct {
	Open *string `json:"open,omitempty"`
}

type Ask struct {
	Q  *string `json:"q,omitempty"`
	M  *string `json:"m,omitempty"`
	Re *string `json:"re,omitempty"`
}

type Emotion struct {
	Name       string `json:"name"`
	SourceID   int64  `json:"source_id"`
	SourceType uint8  `json:"source_type"`
}

type UsagesPreview struct {
	Count *uint16 `json:"count,omitempty"`
	Limit *uint16 `json:"limit,omitempty"`
}

type EnhanceProgress struct {
	Current      *uint32 `json:"current,omitempty"`
	Max          *uint32 `json:"max,omitempty"`
	UpgradeLevel *uint8  `json:"upgradeLevel,omitempty"`
}

type EnhanceUpgradable struct{}

type Enhancement struct {
	UsagesPreview *UsagesPreview     `json:"usages_preview,omitempty"`
	ItemID        *int64             `json:"itemId,omitempty"`
	Progressing   *EnhanceProgress   `json:"progressing,omitempty"`
	Upgradable    *EnhanceUpgradable `json:"upgradable,omitempty"`
}

type HeroData struct {
	Back                  *Flag   `json:"back,omitempty"`
	Account               *int64  `json:"account,omitempty"`
	ID                    *int64  `json:"id,omitempty"`
	Lvl                   *uint16 `json:"lvl,omitempty"`
	Nick                  *string `json:"nick,omitempty"`
	Stasis                *Flag   `json:"stasis,omitempty"`
	StasisIncomingSeconds *uint8  `json:"stasis_incoming_seconds,omitempty"`
	Vip                   *string `json:"vip,omitempty"`
	X                     *uint8  `json:"x,omitempty"`
	Y                     *uint8  `json:"y,omitempty"`
}

type Loot struct {
	Init   *uint8               `json:"init,omitempty"`
	Source *string              `json:"source,omitempty"`
	States IDMap[LootWantState] `json:"states,omitempty"`
}

type Clan struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type OtherData struct {
	Account               *uint32     `json:"account,omitempty"`
	Action                *string     `json:"action,omitempty"`
	Del                   *uint8      `json:"del,omitempty"`
	Clan                  *Clan       `json:"clan,omitempty"`
	Lvl                   *uint16     `json:"lvl,omitempty"`
	OpLvl                 *uint16     `json:"oplvl,omitempty"`
	Nick                  *string     `json:"nick,omitempty"`
	Prof                  *Profession `json:"prof,omitempty"`
	Relation              *Relation   `json:"relation,omitempty"`
	Stasis                *Flag       `json:"stasis,omitempty"`
	StasisIncomingSeconds *uint8      `json:"stasis_incoming_seconds,omitempty"`
	X                     *uint8      `json:"x,omitempty"`
	Y                     *uint8      `json:"y,omitempty"`
	Wanted                *Flag       `json:"wanted,omitempty"`
}

// Setting ids the client knows how to toggle.
const (
	SettingClanLoginNotif   = 9
	SettingFriendLoginNotif = 15
)

const (
	SettingsActionInit       = "INIT"
	SettingsActionUpdateData = "UPDATE_DATA"
)

type SettingData struct {
	V *bool `json:"v,omitempty"`
}

type CharacterSettings struct {
	Action string                   `json:"action"`
	List   []map[string]SettingData `json:"list,omitempty"`
}

// Lookup returns the setting with the given id from the list.
func (s CharacterSettings) Lookup(id int) (SettingData, bool) {
	key := strconv.Itoa(id)
	for _, entry := range s.List {
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return SettingData{}, false
}

package wire

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// View is the read-only face of a Diff handed to handlers. Every getter
// returns a deep copy: writing to it, through pointer fields included,
// leaves the Diff untouched.
type View interface {
	Has(c Category) bool
	Present() []Category
	Extra(key string) (json.RawMessage, bool)

	Artisanship() (Artisanship, bool)
	Ask() (Ask, bool)
	Emo() ([]Emotion, bool)
	Enhancement() (Enhancement, bool)
	Friends() ([]Friend, bool)
	Hero() (HeroData, bool)
	Items() (map[int64]Item, bool)
	Loot() (Loot, bool)
	Members() ([]ClanMember, bool)
	Others() (map[int64]OtherData, bool)
	Task() (string, bool)
	Settings() (CharacterSettings, bool)
	Warn() (string, bool)
}

var _ View = (*Diff)(nil)

type baseline struct {
	sum     uint64
	encoded []byte
}

// Diff is one decoded frame. A category is present when the frame changed it.
// Interceptors mutate it through the setters and Remove; the raw frame and
// the encoding of every category as decoded are kept for Encode.
type Diff struct {
	artisanship Slot[Artisanship]
	ask         Slot[Ask]
	emo         Slot[[]Emotion]
	enhancement Slot[Enhancement]
	friends     Slot[FriendList]
	hero        Slot[HeroData]
	items       Slot[IDMap[Item]]
	loot        Slot[Loot]
	members     Slot[MemberList]
	others      Slot[IDMap[OtherData]]
	task        Slot[string]
	settings    Slot[CharacterSettings]
	warn        Slot[string]

	raw       map[string]json.RawMessage
	baselines map[Category]baseline
	frame     []byte
}

// NewDiff returns an empty diff with no backing frame.
func NewDiff() *Diff {
	return &Diff{
		raw:       make(map[string]json.RawMessage),
		baselines: make(map[Category]baseline),
	}
}

// Decode parses one frame. Each category is decoded all-or-nothing and the
// first failure aborts the whole frame. A null value counts as absent.
// Keys that are not categories are kept verbatim.
func Decode(frame []byte) (*Diff, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedFrame
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &DecodeError{Key: "", Err: errors.Join(ErrMalformedFrame, err)}
	}

	d := &Diff{
		raw:       raw,
		baselines: make(map[Category]baseline),
		frame:     frame,
	}
	for _, c := range Categories() {
		value, ok := raw[c.Key()]
		if !ok || isNull(value) {
			continue
		}
		s := d.slot(c)
		if err := s.decode(value); err != nil {
			return nil, &DecodeError{Key: c.Key(), Err: err}
		}
		encoded, err := s.encode()
		if err != nil {
			return nil, &DecodeError{Key: c.Key(), Err: err}
		}
		d.baselines[c] = baseline{sum: xxhash.Sum64(encoded), encoded: encoded}
	}
	return d, nil
}

func isNull(b []byte) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

// Frame returns the bytes the diff was decoded from.
func (d *Diff) Frame() []byte {
	return d.frame
}

func (d *Diff) slot(c Category) slotCodec {
	switch c {
	case CategoryArtisanship:
		return &d.artisanship
	case CategoryAsk:
		return &d.ask
	case CategoryEmo:
		return &d.emo
	case CategoryEnhancement:
		return &d.enhancement
	case CategoryFriends:
		return &d.friends
	case CategoryHero:
		return &d.hero
	case CategoryItem:
		return &d.items
	case CategoryLoot:
		return &d.loot
	case CategoryMembers:
		return &d.members
	case CategoryOther:
		return &d.others
	case CategoryTask:
		return &d.task
	case CategorySettings:
		return &d.settings
	case CategoryWarn:
		return &d.warn
	default:
		return nil
	}
}

func (d *Diff) Has(c Category) bool {
	s := d.slot(c)
	return s != nil && s.Present()
}

// Present lists the present categories in dispatch order.
func (d *Diff) Present() []Category {
	var out []Category
	for _, c := range Categories() {
		if d.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Remove suppresses a category. It will not be forwarded.
func (d *Diff) Remove(c Category) {
	if s := d.slot(c); s != nil {
		s.Clear()
	}
}

// Extra returns a non-category top-level value, such as "ev" or "chat".
func (d *Diff) Extra(key string) (json.RawMessage, bool) {
	if _, ok := CategoryForKey(key); ok {
		return nil, false
	}
	v, ok := d.raw[key]
	return v, ok
}

func (d *Diff) Artisanship() (Artisanship, bool) {
	v, ok := d.artisanship.Get()
	return v.clone(), ok
}
func (d *Diff) SetArtisanship(v Artisanship)     { d.artisanship.Set(v) }

func (d *Diff) Ask() (Ask, bool) {
	v, ok := d.ask.Get()
	return v.clone(), ok
}
func (d *Diff) SetAsk(v Ask)     { d.ask.Set(v) }

func (d *Diff) Emo() ([]Emotion, bool) {
	v, ok := d.emo.Get()
	return cloneSlice(v), ok
}
func (d *Diff) SetEmo(v []Emotion) { d.emo.Set(v) }

func (d *Diff) Enhancement() (Enhancement, bool) {
	v, ok := d.enhancement.Get()
	return v.clone(), ok
}
func (d *Diff) SetEnhancement(v Enhancement)     { d.enhancement.Set(v) }

func (d *Diff) Friends() ([]Friend, bool) {
	v, ok := d.friends.Get()
	return cloneSlice(v), ok
}
func (d *Diff) SetFriends(v []Friend) { d.friends.Set(v) }

func (d *Diff) Hero() (HeroData, bool) {
	v, ok := d.hero.Get()
	return MergeHero(HeroData{}, v), ok
}
func (d *Diff) SetHero(v HeroData)     { d.hero.Set(v) }

func (d *Diff) Items() (map[int64]Item, bool) {
	v, ok := d.items.Get()
	return cloneRecords(map[int64]Item(v), MergeItem), ok
}
func (d *Diff) SetItems(v map[int64]Item) { d.items.Set(v) }

func (d *Diff) Loot() (Loot, bool) {
	v, ok := d.loot.Get()
	return v.clone(), ok
}
func (d *Diff) SetLoot(v Loot)     { d.loot.Set(v) }

func (d *Diff) Members() ([]ClanMember, bool) {
	v, ok := d.members.Get()
	return cloneSlice(v), ok
}
func (d *Diff) SetMembers(v []ClanMember) { d.members.Set(v) }

func (d *Diff) Others() (map[int64]OtherData, bool) {
	v, ok := d.others.Get()
	return cloneRecords(map[int64]OtherData(v), MergeOther), ok
}
func (d *Diff) SetOthers(v map[int64]OtherData) { d.others.Set(v) }

func (d *Diff) Task() (string, bool) { return d.task.Get() }
func (d *Diff) SetTask(v string)     { d.task.Set(v) }

func (d *Diff) Settings() (CharacterSettings, bool) {
	v, ok := d.settings.Get()
	return v.clone(), ok
}
func (d *Diff) SetSettings(v CharacterSettings)     { d.settings.Set(v) }

func (d *Diff) Warn() (string, bool) { return d.warn.Get() }
func (d *Diff) SetWarn(v string)     { d.warn.Set(v) }

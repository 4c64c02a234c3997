package wire

import (
	"encoding/json"
	"strconv"
)

const (
	friendStride = 11
	memberStride = 11
)

// Friend is one entry of the friends list. On the wire every field is a JSON
// string, eleven per friend, with no separators between friends.
type Friend struct {
	ID           int64
	Nick         string
	OutfitPath   string
	Lvl          uint16
	OpLvl        uint16
	Prof         Profession
	MapName      string
	X            uint8
	Y            uint8
	OnlineStatus string
	LastOnline   uint64
}

func (f Friend) Online() bool {
	return f.OnlineStatus == "online"
}

// ClanMember is one entry of the clan member list. Numbers travel as JSON
// numbers here, unlike friends.
type ClanMember struct {
	ID         int64
	Nick       string
	Lvl        uint16
	OpLvl      uint16
	Prof       Profession
	MapName    string
	X          uint8
	Y          uint8
	ClanRankID uint8
	LastOnline uint64
	OutfitPath string
}

func (m ClanMember) Online() bool {
	return m.LastOnline == 0
}

func DecodeFriends(raw []byte) ([]Friend, error) {
	r, err := newFlatReader(raw, friendStride)
	if err != nil {
		return nil, err
	}
	friends := make([]Friend, 0, r.records())
	for r.more() {
		f := Friend{
			ID:           r.quotedInt(32),
			Nick:         r.string(),
			OutfitPath:   r.string(),
			Lvl:          uint16(r.quotedUint(16)),
			OpLvl:        uint16(r.quotedUint(16)),
			Prof:         r.profession(),
			MapName:      r.string(),
			X:            uint8(r.quotedUint(8)),
			Y:            uint8(r.quotedUint(8)),
			OnlineStatus: r.string(),
			LastOnline:   r.quotedUint(64),
		}
		if r.err != nil {
			return nil, r.err
		}
		friends = append(friends, f)
	}
	return friends, nil
}

func EncodeFriends(friends []Friend) ([]byte, error) {
	flat := make([]string, 0, len(friends)*friendStride)
	for _, f := range friends {
		flat = append(flat,
			strconv.FormatInt(f.ID, 10),
			f.Nick,
			f.OutfitPath,
			strconv.FormatUint(uint64(f.Lvl), 10),
			strconv.FormatUint(uint64(f.OpLvl), 10),
			f.Prof.String(),
			f.MapName,
			strconv.FormatUint(uint64(f.X), 10),
			strconv.FormatUint(uint64(f.Y), 10),
			f.OnlineStatus,
			strconv.FormatUint(f.LastOnline, 10),
		)
	}
	return json.Marshal(flat)
}

func DecodeMembers(raw []byte) ([]ClanMember, error) {
	r, err := newFlatReader(raw, memberStride)
	if err != nil {
		return nil, err
	}
	members := make([]ClanMember, 0, r.records())
	for r.more() {
		m := ClanMember{
			ID:         r.int(32),
			Nick:       r.string(),
			Lvl:        uint16(r.uint(16)),
			OpLvl:      uint16(r.uint(16)),
			Prof:       r.profession(),
			MapName:    r.string(),
			X:          uint8(r.uint(8)),
			Y:          uint8(r.uint(8)),
			ClanRankID: uint8(r.uint(8)),
			LastOnline: r.uint(64),
			OutfitPath: r.string(),
		}
		if r.err != nil {
			return nil, r.err
		}
		members = append(members, m)
	}
	return members, nil
}

func EncodeMembers(members []ClanMember) ([]byte, error) {
	flat := make([]any, 0, len(members)*memberStride)
	for _, m := range members {
		flat = append(flat,
			m.ID,
			m.Nick,
			m.Lvl,
			m.OpLvl,
			m.Prof.String(),
			m.MapName,
			m.X,
			m.Y,
			m.ClanRankID,
			m.LastOnline,
			m.OutfitPath,
		)
	}
	return json.Marshal(flat)
}

// FriendList and MemberList let the flat codecs sit behind encoding/json.
type (
	FriendList []Friend
	MemberList []ClanMember
)

func (l FriendList) MarshalJSON() ([]byte, error) {
	return EncodeFriends(l)
}

func (l *FriendList) UnmarshalJSON(b []byte) error {
	v, err := DecodeFriends(b)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (l MemberList) MarshalJSON() ([]byte, error) {
	return EncodeMembers(l)
}

func (l *MemberList) UnmarshalJSON(b []byte) error {
	v, err := DecodeMembers(b)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

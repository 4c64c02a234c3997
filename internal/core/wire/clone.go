package wire

import (
	"maps"
	"slices"
)

// The getters of Diff hand out copies that share no memory with the diff,
// so a handler writing through a field pointer cannot change what its
// siblings or the forwarded frame see.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (a Artisanship) clone() Artisanship {
	return Artisanship{Open: clonePtr(a.Open)}
}

func (a Ask) clone() Ask {
	return Ask{Q: clonePtr(a.Q), M: clonePtr(a.M), Re: clonePtr(a.Re)}
}

func (e Enhancement) clone() Enhancement {
	out := Enhancement{
		ItemID:     clonePtr(e.ItemID),
		Upgradable: clonePtr(e.Upgradable),
	}
	if e.UsagesPreview != nil {
		out.UsagesPreview = &UsagesPreview{
			Count: clonePtr(e.UsagesPreview.Count),
			Limit: clonePtr(e.UsagesPreview.Limit),
		}
	}
	if e.Progressing != nil {
		out.Progressing = &EnhanceProgress{
			Current:      clonePtr(e.Progressing.Current),
			Max:          clonePtr(e.Progressing.Max),
			UpgradeLevel: clonePtr(e.Progressing.UpgradeLevel),
		}
	}
	return out
}

func (l Loot) clone() Loot {
	return Loot{
		Init:   clonePtr(l.Init),
		Source: clonePtr(l.Source),
		States: maps.Clone(l.States),
	}
}

func (s CharacterSettings) clone() CharacterSettings {
	out := CharacterSettings{Action: s.Action}
	if s.List != nil {
		out.List = make([]map[string]SettingData, len(s.List))
		for i, entry := range s.List {
			cp := make(map[string]SettingData, len(entry))
			for k, v := range entry {
				cp[k] = SettingData{V: clonePtr(v.V)}
			}
			out.List[i] = cp
		}
	}
	return out
}

// cloneRecords copies m and every record in it with merge, which never
// aliases the incoming record.
func cloneRecords[V any](m map[int64]V, merge func(base, incoming V) V) map[int64]V {
	if m == nil {
		return nil
	}
	out := make(map[int64]V, len(m))
	var zero V
	for id, v := range m {
		out[id] = merge(zero, v)
	}
	return out
}

func cloneSlice[S ~[]E, E any](s S) []E {
	return slices.Clone([]E(s))
}

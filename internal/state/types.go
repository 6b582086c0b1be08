package state

import (
	"github.com/evanofslack/dh-dyn-update/internal/address"
)

// AddressState is the stored form of one previously observed address.
type AddressState struct {
	Address  string `json:"address"`
	LastSeen int64  `json:"lastSeen"`
}

// Changes lists, per family, whether the current observation differs from
// the previous one.
type Changes struct {
	Changed   []address.Family
	Unchanged []address.Family
}

func (c Changes) IsEmpty() bool {
	return len(c.Changed) == 0
}

// Compare reports which families of current differ from previous. A family
// present in current but absent from previous counts as changed. Families
// only present in previous are ignored.
func Compare(current, previous address.Set) Changes {
	var changes Changes
	for _, cur := range current {
		prev, ok := previous.Lookup(cur.Family())
		if ok && prev.Equal(cur) {
			changes.Unchanged = append(changes.Unchanged, cur.Family())
			continue
		}
		changes.Changed = append(changes.Changed, cur.Family())
	}
	return changes
}

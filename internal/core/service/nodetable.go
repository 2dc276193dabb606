package service

import (
	"fmt"
	"sort"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
)

// NodeTable maps gateway slots to configured device identities.
type NodeTable struct {
	bySlot map[uint8]domain.DeviceProfile
}

func NewNodeTable(profiles []domain.DeviceProfile) *NodeTable {
	t := &NodeTable{bySlot: make(map[uint8]domain.DeviceProfile, len(profiles))}
	for _, p := range profiles {
		t.bySlot[p.Slot] = p
	}
	return t
}

// Resolve returns the profile configured for slot, or a placeholder keyed
// by the slot number when the slot is unmapped.
func (t *NodeTable) Resolve(slot uint8) domain.DeviceProfile {
	if p, ok := t.bySlot[slot]; ok {
		if p.Address == "" {
			p.Address = slotAddress(slot)
		}
		if p.Name == "" {
			p.Name = p.Address
		}
		return p
	}
	addr := slotAddress(slot)
	return domain.DeviceProfile{Address: addr, Name: addr, Slot: slot}
}

func (t *NodeTable) Profiles() []domain.DeviceProfile {
	out := make([]domain.DeviceProfile, 0, len(t.bySlot))
	for _, p := range t.bySlot {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func slotAddress(slot uint8) string {
	return fmt.Sprintf("slot_%d", slot)
}

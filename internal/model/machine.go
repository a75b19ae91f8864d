package model

import (
	"time"

	"vending-panel-backend/internal/parse"
)

// MachineInfo is the telemetry record a device agent keeps at machines/{mid}/info.
type MachineInfo struct {
	LastSeen     string  `json:"last_seen"`
	Temperature  float64 `json:"temperature"`
	Location     string  `json:"location"`
	OnlineStatus bool    `json:"online_status"`
}

// Slot is one dispensing compartment of a machine.
type Slot struct {
	ID          string `json:"id"`
	Price       int    `json:"price"`
	Enabled     bool   `json:"enabled"`
	ProductName string `json:"product_name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	LastRestock string `json:"last_restock,omitempty"`
}

// Slots maps slot id to slot.
type Slots map[string]Slot

// Restock is the product record written when an operator refills a slot.
// An empty ImageURL leaves the stored photo untouched.
type Restock struct {
	ProductName string
	Price       int
	ImageURL    string
	At          time.Time
}

// OpenGateCommand asks the machine to unlock one compartment.
type OpenGateCommand struct {
	SlotID    string  `json:"open_gate"`
	Timestamp float64 `json:"timestamp"`
}

// Sorted returns the slots with numeric ids first in numeric order,
// followed by the rest in lexical order.
func (s Slots) Sorted() []Slot {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	parse.SortSlotIDs(ids)

	out := make([]Slot, 0, len(ids))
	for _, id := range ids {
		out = append(out, s[id])
	}
	return out
}

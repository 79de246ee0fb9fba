package models

type Location struct {
	LocationID string   `json:"location_id"`
	Name       string   `json:"name"`
	Fee        int      `json:"fee"`
	Days       []string `json:"days,omitempty"`
	Slots      []Slot   `json:"slots,omitempty"`
}

type Slot struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	MaxOPD int    `json:"max_opd"`
}

// MaxOPD returns the capacity of the location's primary slot.
// Zero means the slot is uncapped.
func (l Location) MaxOPD() int {
	if len(l.Slots) == 0 {
		return 0
	}
	return l.Slots[0].MaxOPD
}

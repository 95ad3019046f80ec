package core

import (
	"time"

	"github.com/dkeye/Jam/internal/domain"
)

const (
	heatmapPreviewVoters = 3
	heatmapBaseIntensity = 0.3
)

// HeatCell is one hour of a day as the scheduler grid renders it.
type HeatCell struct {
	Slot      domain.Slot       `json:"slot"`
	Count     int               `json:"count"`
	Voters    []domain.Nickname `json:"voters"`
	More      int               `json:"more"`
	Selected  bool              `json:"selected"`
	Perfect   bool              `json:"perfect"`
	Intensity float64           `json:"intensity"`
}

// DayHeatmap returns the 24 hourly cells of day's calendar date in loc.
func DayHeatmap(s Snapshot, sel Selection, roster domain.Roster, day time.Time, loc *time.Location) []HeatCell {
	if loc != nil {
		day = day.In(loc)
	}
	cells := make([]HeatCell, 0, 24)
	for hour := 0; hour < 24; hour++ {
		slot := domain.Slot{Year: day.Year(), Month: day.Month(), Day: day.Day(), Hour: hour}
		voters := s.Voters(slot)
		cell := HeatCell{
			Slot:      slot,
			Count:     len(voters),
			Voters:    voters,
			Selected:  sel.Contains(slot),
			Perfect:   roster.Size() >= 2 && len(voters) == roster.Size(),
			Intensity: heatmapBaseIntensity,
		}
		if cell.Voters == nil {
			cell.Voters = []domain.Nickname{}
		}
		if len(voters) > heatmapPreviewVoters {
			cell.Voters = voters[:heatmapPreviewVoters]
			cell.More = len(voters) - heatmapPreviewVoters
		}
		if cell.Count > 0 && roster.Size() > 0 {
			cell.Intensity += float64(cell.Count) / float64(roster.Size()) * (1 - heatmapBaseIntensity)
		}
		cells = append(cells, cell)
	}
	return cells
}

package services

import (
	"encoding/json"
	"sort"

	"gorm.io/datatypes"

	"marketplace-server/models"
)

// CompactInstance is the shared listing row for both physical and virtual
// instances: the minimum an availability calendar needs to render one day.
type CompactInstance struct {
	ExperienceID   uint           `json:"experienceID"`
	TripTitle      string         `json:"tripTitle"`
	Date           string         `json:"date"` // calendar-date key, "2006-01-02"
	Status         string         `json:"status"`
	BookedCount    int            `json:"bookedCount"`
	AvailableCount *int           `json:"availableCount"`
	Location       datatypes.JSON `json:"location"`
	Images         []string       `json:"images"`
}

// Reconcile merges physically persisted instances with virtually expanded
// ones. For any (experience, date) present in both sets the physical row wins;
// a manual edit or cancellation permanently overrides the projection for that
// date. Pure function, no I/O.
//
// Output is ordered ascending by date, ties broken by experience id.
func Reconcile(physical, virtual []CompactInstance) []CompactInstance {
	type key struct {
		experienceID uint
		date         string
	}

	taken := make(map[key]bool, len(physical))
	merged := make([]CompactInstance, 0, len(physical)+len(virtual))
	for _, inst := range physical {
		taken[key{inst.ExperienceID, inst.Date}] = true
		merged = append(merged, inst)
	}
	for _, inst := range virtual {
		if taken[key{inst.ExperienceID, inst.Date}] {
			continue
		}
		merged = append(merged, inst)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date < merged[j].Date
		}
		return merged[i].ExperienceID < merged[j].ExperienceID
	})
	return merged
}

// CompactFromInstance shapes a physical instance row into the listing form.
func CompactFromInstance(inst *models.ExperienceInstance) CompactInstance {
	images := decodeImages(inst.Snapshot.Images)
	return CompactInstance{
		ExperienceID:   inst.ExperienceID,
		TripTitle:      inst.Snapshot.TripTitle,
		Date:           inst.Date.Format(DateKeyLayout),
		Status:         inst.Status,
		BookedCount:    inst.BookedCount,
		AvailableCount: inst.AvailableCount,
		Location:       inst.Snapshot.Location,
		Images:         images,
	}
}

// CompactFromTemplate shapes a virtual occurrence of a template for one date.
// Virtual instances always read as scheduled with zero bookings.
func CompactFromTemplate(exp *models.Experience, dateKey string) CompactInstance {
	return CompactInstance{
		ExperienceID:   exp.ID,
		TripTitle:      exp.TripTitle,
		Date:           dateKey,
		Status:         models.InstanceStatusScheduled,
		BookedCount:    0,
		AvailableCount: exp.AvailableCount,
		Location:       exp.Location,
		Images:         exp.ImageList(),
	}
}

func decodeImages(raw datatypes.JSON) []string {
	images := []string{}
	if raw != nil {
		_ = json.Unmarshal(raw, &images)
	}
	return images
}

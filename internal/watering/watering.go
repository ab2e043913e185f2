// Package watering computes when a plant needs water next from its light and
// soil conditions.
package watering

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/digkill/PlantDoctor/internal/models"
)

const (
	LightDirect       = "Direct sunlight"
	LightBright       = "Bright indirect"
	LightLow          = "Low light"
	SoilVeryWet       = "Very wet"
	SoilSoggy         = "Soggy/waterlogged"
	SoilSlightlyMoist = "Slightly moist"

	Day = 24 * time.Hour

	defaultDays = 7
	wetSoilDays = 3
)

var lightDays = map[string]int{
	LightDirect: 3,
	LightBright: 5,
	LightLow:    10,
}

// IntervalDays is the number of days between waterings for the given
// conditions. Unknown light conditions use a week.
func IntervalDays(light, soil string) int {
	days, ok := lightDays[light]
	if !ok {
		days = defaultDays
	}
	if soil == SoilVeryWet || soil == SoilSoggy {
		days += wetSoilDays
	}
	return days
}

func Interval(light, soil string) time.Duration {
	return time.Duration(IntervalDays(light, soil)) * Day
}

// Next is the instant the plant should be watered again.
func Next(light, soil string, now time.Time) time.Time {
	return now.Add(Interval(light, soil))
}

// Schedule returns a fresh schedule for a plant watered at now.
func Schedule(light, soil string, now time.Time) models.WateringSchedule {
	return models.WateringSchedule{LastWatered: now, NextWatering: Next(light, soil, now)}
}

// AfterWatering recomputes the schedule when the owner waters the plant. Soil
// is not asked again, so it is assumed slightly moist.
func AfterWatering(light string, now time.Time) models.WateringSchedule {
	return Schedule(light, SoilSlightlyMoist, now)
}

// OverdueDays is ceil((next-now)/day). Zero means water today and negative
// values count the days the plant is overdue.
func OverdueDays(next, now time.Time) int {
	return int(math.Ceil(float64(next.Sub(now)) / float64(Day)))
}

// Status is the short label shown next to a plant.
func Status(next, now time.Time) string {
	days := OverdueDays(next, now)
	switch {
	case days < 0:
		return fmt.Sprintf("Overdue %dd", -days)
	case days == 0:
		return "Water today"
	case days == 1:
		return "Tomorrow"
	default:
		return fmt.Sprintf("In %dd", days)
	}
}

// Alert is one plant in the home-screen watering alert list.
type Alert struct {
	PlantID     int64  `json:"plantId"`
	Name        string `json:"name"`
	OverdueDays int    `json:"overdueDays"`
	Status      string `json:"status"`
}

// Overdue lists plants whose next watering day has already passed, most
// overdue first. Plants due today are not included.
func Overdue(plants []models.PlantRecord, now time.Time) []Alert {
	alerts := make([]Alert, 0)
	for _, p := range plants {
		if p.WateringSchedule.NextWatering.IsZero() {
			continue
		}
		days := OverdueDays(p.WateringSchedule.NextWatering, now)
		if days >= 0 {
			continue
		}
		alerts = append(alerts, Alert{
			PlantID:     p.ID,
			Name:        p.Name,
			OverdueDays: days,
			Status:      Status(p.WateringSchedule.NextWatering, now),
		})
	}
	slices.SortStableFunc(alerts, func(a, b Alert) int {
		return cmp.Compare(a.OverdueDays, b.OverdueDays)
	})
	return alerts
}

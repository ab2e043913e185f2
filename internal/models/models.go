package models

import (
	"slices"
	"time"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of the three accepted confidence levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	IsPremium    bool      `json:"isPremium"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UsageStats is the stored per-user diagnosis counter. The count it carries is
// only meaningful for the calendar month of LastReset.
type UsageStats struct {
	DiagnosesThisMonth int       `json:"diagnosesThisMonth"`
	LastReset          time.Time `json:"lastReset"`
}

type Questionnaire struct {
	LastWatered    string   `json:"lastWatered"`
	RecentChanges  string   `json:"recentChanges"`
	SoilCondition  string   `json:"soilCondition"`
	LightCondition string   `json:"lightCondition"`
	Symptoms       []string `json:"symptoms"`
}

type Diagnosis struct {
	PrimaryDiagnosis string     `json:"primaryDiagnosis"`
	Confidence       Confidence `json:"confidence"`
	Explanation      string     `json:"explanation"`
	Causes           []string   `json:"causes"`
	Treatment        []string   `json:"treatment"`
	Timeline         string     `json:"timeline"`
	Prevention       []string   `json:"prevention"`
}

type ProgressPhoto struct {
	Image string    `json:"image"`
	Date  time.Time `json:"date"`
	Notes string    `json:"notes"`
}

type WateringSchedule struct {
	LastWatered  time.Time `json:"lastWatered"`
	NextWatering time.Time `json:"nextWatering"`
}

type PlantRecord struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	Questionnaire    Questionnaire    `json:"questionnaire"`
	Diagnosis        Diagnosis        `json:"diagnosis"`
	ProgressPhotos   []ProgressPhoto  `json:"progressPhotos"`
	WateringSchedule WateringSchedule `json:"wateringSchedule"`
	DateAdded        time.Time        `json:"dateAdded"`
	Version          int              `json:"version"`
}

// Clone returns a deep copy so callers can mutate the result without touching
// a record that has not been persisted yet.
func (p PlantRecord) Clone() PlantRecord {
	out := p
	out.Questionnaire.Symptoms = slices.Clone(p.Questionnaire.Symptoms)
	out.Diagnosis.Causes = slices.Clone(p.Diagnosis.Causes)
	out.Diagnosis.Treatment = slices.Clone(p.Diagnosis.Treatment)
	out.Diagnosis.Prevention = slices.Clone(p.Diagnosis.Prevention)
	out.ProgressPhotos = slices.Clone(p.ProgressPhotos)
	return out
}

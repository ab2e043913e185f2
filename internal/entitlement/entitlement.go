// Package entitlement decides which actions a free account may still take.
package entitlement

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded matches every *QuotaExceededError.
var ErrQuotaExceeded = errors.New("quota exceeded")

type Limit string

const (
	LimitPlants    Limit = "plants"
	LimitDiagnoses Limit = "diagnoses"
	LimitPhotos    Limit = "photos"
)

// QuotaExceededError names the free-tier limit an action ran into.
type QuotaExceededError struct {
	Limit Limit
	Max   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: free plan allows %d %s", e.Max, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Limits are the free-tier maximums. Premium accounts ignore them.
type Limits struct {
	Plants           int
	MonthlyDiagnoses int
	PhotosPerPlant   int
}

func DefaultLimits() Limits {
	return Limits{Plants: 3, MonthlyDiagnoses: 2, PhotosPerPlant: 5}
}

type Gate struct {
	limits Limits
}

func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits}
}

func (g *Gate) Limits() Limits {
	return g.limits
}

// CanAddPlant allows a new plant while the user owns fewer than the limit.
func (g *Gate) CanAddPlant(isPremium bool, plantCount int) error {
	return g.check(isPremium, plantCount, g.limits.Plants, LimitPlants)
}

// CanDiagnose allows a diagnosis while the effective monthly count is below
// the limit.
func (g *Gate) CanDiagnose(isPremium bool, diagnosesThisMonth int) error {
	return g.check(isPremium, diagnosesThisMonth, g.limits.MonthlyDiagnoses, LimitDiagnoses)
}

// CanAddPhoto allows a progress photo while the plant has fewer than the limit.
func (g *Gate) CanAddPhoto(isPremium bool, photoCount int) error {
	return g.check(isPremium, photoCount, g.limits.PhotosPerPlant, LimitPhotos)
}

func (g *Gate) check(isPremium bool, used, max int, limit Limit) error {
	if isPremium || used < max {
		return nil
	}
	return &QuotaExceededError{Limit: limit, Max: max}
}

package service

import (
	"context"
	"time"

	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/repository"
)

// Usage pairs the stored counter with the count that applies right now.
type Usage struct {
	Stored    models.UsageStats `json:"stored"`
	Effective int               `json:"effective"`
}

// EffectiveCount is the number of diagnoses that count against this month.
// A counter last reset in another calendar month is worth zero.
func EffectiveCount(stored models.UsageStats, now time.Time) int {
	last := stored.LastReset.In(now.Location())
	if last.Year() != now.Year() || last.Month() != now.Month() {
		return 0
	}
	return stored.DiagnosesThisMonth
}

type UsageService struct {
	usage *repository.UsageRepository
	now   func() time.Time
}

func NewUsageService(usage *repository.UsageRepository) *UsageService {
	return &UsageService{usage: usage, now: time.Now}
}

// Read never writes; a stale month is only corrected by the next Increment.
func (s *UsageService) Read(ctx context.Context, email string) (Usage, error) {
	stored, err := s.usage.Find(ctx, email)
	if err != nil {
		return Usage{}, err
	}
	if stored == nil {
		return Usage{}, nil
	}
	return Usage{Stored: *stored, Effective: EffectiveCount(*stored, s.now())}, nil
}

// Increment records one more successful diagnosis on top of the effective
// count the caller read.
func (s *UsageService) Increment(ctx context.Context, email string, currentEffective int) (Usage, error) {
	stats := models.UsageStats{
		DiagnosesThisMonth: currentEffective + 1,
		LastReset:          s.now().UTC(),
	}
	if err := s.usage.Save(ctx, email, stats); err != nil {
		return Usage{}, err
	}
	return Usage{Stored: stats, Effective: stats.DiagnosesThisMonth}, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/digkill/PlantDoctor/internal/kv"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/retry"
)

type UsageRepository struct {
	store jsonStore
}

func NewUsageRepository(store kv.Store, policy retry.Policy) *UsageRepository {
	return &UsageRepository{store: jsonStore{kv: store, policy: policy}}
}

// Find returns the stored counter exactly as persisted, or nil when the user
// has never run a diagnosis.
func (r *UsageRepository) Find(ctx context.Context, email string) (*models.UsageStats, error) {
	var stats models.UsageStats
	found, err := r.store.get(ctx, UsageKey(email), &stats)
	if err != nil {
		return nil, fmt.Errorf("find usage: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &stats, nil
}

func (r *UsageRepository) Save(ctx context.Context, email string, stats models.UsageStats) error {
	if err := r.store.put(ctx, UsageKey(email), stats); err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	return nil
}

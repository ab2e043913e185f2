package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/digkill/PlantDoctor/internal/kv"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/retry"
)

const listConcurrency = 8

type PlantRepository struct {
	store jsonStore
	log   *slog.Logger
}

func NewPlantRepository(store kv.Store, policy retry.Policy, log *slog.Logger) *PlantRepository {
	return &PlantRepository{store: jsonStore{kv: store, policy: policy}, log: log}
}

// Save writes the record under the owner's key, retrying per the policy.
func (r *PlantRepository) Save(ctx context.Context, email string, plant models.PlantRecord) error {
	if err := r.store.put(ctx, PlantKey(email, plant.ID), plant); err != nil {
		return fmt.Errorf("save plant %d: %w", plant.ID, err)
	}
	return nil
}

func (r *PlantRepository) Get(ctx context.Context, email string, id int64) (*models.PlantRecord, error) {
	var plant models.PlantRecord
	found, err := r.store.get(ctx, PlantKey(email, id), &plant)
	if err != nil {
		return nil, fmt.Errorf("get plant %d: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &plant, nil
}

// List returns every readable plant of the user, newest first. Records that
// vanish between listing and reading, or that do not decode, are skipped.
func (r *PlantRepository) List(ctx context.Context, email string) ([]models.PlantRecord, error) {
	prefix := PlantPrefix(email)
	keys, err := r.store.kv.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list plant keys: %w", err)
	}

	results := make([]*models.PlantRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			results[i] = r.load(gctx, prefix, key)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}

	plants := make([]models.PlantRecord, 0, len(results))
	for _, p := range results {
		if p != nil {
			plants = append(plants, *p)
		}
	}
	slices.SortFunc(plants, func(a, b models.PlantRecord) int {
		return cmp.Compare(b.ID, a.ID)
	})
	return plants, nil
}

func (r *PlantRepository) load(ctx context.Context, prefix, key string) *models.PlantRecord {
	if _, ok := plantIDFromKey(prefix, key); !ok {
		r.log.Debug("skip foreign key under plant prefix", "key", key)
		return nil
	}
	raw, found, err := r.store.kv.Get(ctx, key)
	if err != nil {
		r.log.Warn("skip unreadable plant", "key", key, "err", err)
		return nil
	}
	if !found {
		return nil
	}
	var plant models.PlantRecord
	if err := json.Unmarshal([]byte(raw), &plant); err != nil {
		r.log.Warn("skip corrupt plant", "key", key, "err", err)
		return nil
	}
	return &plant
}

// Delete removes the record in a single attempt.
func (r *PlantRepository) Delete(ctx context.Context, email string, id int64) error {
	if err := r.store.kv.Delete(ctx, PlantKey(email, id)); err != nil {
		r.log.Error("delete plant", "email", email, "plant_id", id, "err", err)
		return fmt.Errorf("delete plant %d: %w", id, err)
	}
	return nil
}

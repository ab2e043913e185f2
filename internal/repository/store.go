package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/PlantDoctor/internal/kv"
	"github.com/digkill/PlantDoctor/internal/retry"
)

// ErrStorageWrite is returned once a write has failed on every attempt the
// retry policy allows.
var ErrStorageWrite = errors.New("storage write failed")

// jsonStore layers JSON encoding and write retries over a kv.Store.
type jsonStore struct {
	kv     kv.Store
	policy retry.Policy
}

func (s jsonStore) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s jsonStore) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		return s.kv.Set(ctx, key, string(data))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, key, err)
	}
	return nil
}

func (s jsonStore) remove(ctx context.Context, key string) error {
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.kv.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, key, err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/digkill/PlantDoctor/internal/kv"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errUnavailable = errors.New("store unavailable")

// flakyStore fails the first failSets calls to Set and then delegates.
type flakyStore struct {
	kv.Store
	mu       sync.Mutex
	failSets int
	sets     int
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	fail := s.sets <= s.failSets
	s.mu.Unlock()
	if fail {
		return errUnavailable
	}
	return s.Store.Set(ctx, key, value)
}

func recordingPolicy(delays *[]time.Duration) retry.Policy {
	p := retry.Default()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePlant(id int64) models.PlantRecord {
	added := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return models.PlantRecord{
		ID:   id,
		Name: "Monstera",
		Questionnaire: models.Questionnaire{
			LastWatered:    "3-5 days ago",
			RecentChanges:  "Moved near the window",
			SoilCondition:  "Slightly moist",
			LightCondition: "Bright indirect",
			Symptoms:       []string{"Yellow leaves", "Brown tips"},
		},
		Diagnosis: models.Diagnosis{
			PrimaryDiagnosis: "Overwatering",
			Confidence:       models.ConfidenceMedium,
			Explanation:      "Soil stays wet for too long.",
			Causes:           []string{"Poor drainage"},
			Treatment:        []string{"Let soil dry", "Repot"},
			Timeline:         "2-3 weeks",
			Prevention:       []string{},
		},
		ProgressPhotos: []models.ProgressPhoto{
			{Image: "data:image/jpeg;base64,AAAA", Date: added, Notes: "Initial"},
		},
		WateringSchedule: models.WateringSchedule{
			LastWatered:  added,
			NextWatering: added.Add(5 * 24 * time.Hour),
		},
		DateAdded: added,
		Version:   1,
	}
}

func TestPlantRepository_SaveListRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repo := NewPlantRepository(store, retry.Default(), discardLogger())

	older := samplePlant(1700000000000)
	newer := samplePlant(1700000000500)
	newer.Name = "Fern"
	require.NoError(t, repo.Save(ctx, "a@example.com", older))
	require.NoError(t, repo.Save(ctx, "a@example.com", newer))

	require.NoError(t, store.Set(ctx, PlantKey("a@example.com", 1600000000000), `{"id": 16000`))
	require.NoError(t, store.Set(ctx, PlantKey("b@example.com", 1800000000000), `{"id":1800000000000}`))
	require.NoError(t, store.Set(ctx, "plant:a@example.com:x:1", `{}`))

	plants, err := repo.List(ctx, "a@example.com")
	require.NoError(t, err)
	if diff := cmp.Diff([]models.PlantRecord{newer, older}, plants); diff != "" {
		t.Fatalf("listed plants mismatch (-want +got):\n%s", diff)
	}
}

func TestPlantRepository_ListEmpty(t *testing.T) {
	repo := NewPlantRepository(kv.NewMemoryStore(), retry.Default(), discardLogger())
	plants, err := repo.List(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, plants)
}

func TestPlantRepository_SaveRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: kv.NewMemoryStore(), failSets: 2}
	var delays []time.Duration
	repo := NewPlantRepository(store, recordingPolicy(&delays), discardLogger())

	plant := samplePlant(42)
	require.NoError(t, repo.Save(ctx, "a@example.com", plant))

	assert.Equal(t, 3, store.sets)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)

	got, err := repo.Get(ctx, "a@example.com", 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Monstera", got.Name)
}

func TestPlantRepository_SaveGivesUp(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: kv.NewMemoryStore(), failSets: 10}
	var delays []time.Duration
	repo := NewPlantRepository(store, recordingPolicy(&delays), discardLogger())

	err := repo.Save(ctx, "a@example.com", samplePlant(42))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageWrite)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 3, store.sets)
	assert.Len(t, delays, 2)

	got, err := repo.Get(ctx, "a@example.com", 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPlantRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewPlantRepository(kv.NewMemoryStore(), retry.Default(), discardLogger())
	require.NoError(t, repo.Save(ctx, "a@example.com", samplePlant(7)))

	require.NoError(t, repo.Delete(ctx, "a@example.com", 7))
	got, err := repo.Get(ctx, "a@example.com", 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepository_SessionPointers(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(kv.NewMemoryStore(), retry.Default())
	user := models.User{Email: "a@example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}

	found, err := repo.FindByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, repo.Save(ctx, user))
	require.NoError(t, repo.SetCurrentUser(ctx, "", user))
	require.NoError(t, repo.SetCurrentUser(ctx, "tg:1", user))

	current, err := repo.CurrentUser(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, user.Email, current.Email)

	require.NoError(t, repo.ClearCurrentUser(ctx, "tg:1"))
	cleared, err := repo.CurrentUser(ctx, "tg:1")
	require.NoError(t, err)
	assert.Nil(t, cleared)

	current, err = repo.CurrentUser(ctx, "")
	require.NoError(t, err)
	assert.NotNil(t, current)
}

func TestUsageRepository_FindSave(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(kv.NewMemoryStore(), retry.Default())

	stats, err := repo.Find(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, stats)

	reset := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, "a@example.com", models.UsageStats{DiagnosesThisMonth: 2, LastReset: reset}))

	stats, err = repo.Find(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.DiagnosesThisMonth)
	assert.True(t, reset.Equal(stats.LastReset))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "user:a@example.com", UserKey("a@example.com"))
	assert.Equal(t, "usage:a@example.com", UsageKey("a@example.com"))
	assert.Equal(t, "plant:a@example.com:12", PlantKey("a@example.com", 12))
	assert.Equal(t, "current-user", SessionKey(""))
	assert.Equal(t, "current-user:tg:5", SessionKey("tg:5"))

	id, ok := plantIDFromKey("plant:a@example.com:", "plant:a@example.com:12")
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)
	_, ok = plantIDFromKey("plant:a@example.com:", "plant:a@example.com:x:12")
	assert.False(t, ok)
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/PlantDoctor/internal/diagnosis"
	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/kv"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/repository"
	"github.com/digkill/PlantDoctor/internal/retry"
	"github.com/digkill/PlantDoctor/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const validAnswer = `{"primaryDiagnosis":"Overwatering","confidence":"medium","explanation":"Wet soil.","causes":["Poor drainage"],"treatment":["Let it dry"],"timeline":"2 weeks","prevention":["Water less"]}`

var errUnavailable = errors.New("store unavailable")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type stubModel struct {
	text  string
	err   error
	calls atomic.Int32
}

func (m *stubModel) Generate(context.Context, string, []byte, string) (string, error) {
	m.calls.Add(1)
	return m.text, m.err
}

// switchableStore fails every write while failing is set.
type switchableStore struct {
	kv.Store
	failing atomic.Bool
}

func (s *switchableStore) Set(ctx context.Context, key, value string) error {
	if s.failing.Load() {
		return errUnavailable
	}
	return s.Store.Set(ctx, key, value)
}

type fixture struct {
	store    *switchableStore
	clock    *clock
	model    *stubModel
	sessions *SessionService
	usage    *UsageService
	plants   *PlantService
	home     *HomeService
	diag     *DiagnosisService
	usageRep *repository.UsageRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &switchableStore{Store: kv.NewMemoryStore()}
	policy := retry.Default()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	c := &clock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	users := repository.NewUserRepository(store, policy)
	usageRep := repository.NewUsageRepository(store, policy)
	plantRep := repository.NewPlantRepository(store, policy, log)
	gate := entitlement.NewGate(entitlement.DefaultLimits())
	model := &stubModel{text: validAnswer}

	sessions := NewSessionService(users, log)
	sessions.cost = bcrypt.MinCost
	sessions.now = c.Now
	usage := NewUsageService(usageRep)
	usage.now = c.Now
	plants := NewPlantService(log, plantRep, gate, storage.InlineStore{})
	plants.now = c.Now
	home := NewHomeService(plants, usage, gate)
	home.now = c.Now
	diag := NewDiagnosisService(log, diagnosis.NewOrchestrator(model, log), plantRep, usage, gate)

	return &fixture{
		store:    store,
		clock:    c,
		model:    model,
		sessions: sessions,
		usage:    usage,
		plants:   plants,
		home:     home,
		diag:     diag,
		usageRep: usageRep,
	}
}

func (f *fixture) signUp(t *testing.T, email string) Session {
	t.Helper()
	sess, err := f.sessions.SignUp(context.Background(), "", email, "secret")
	require.NoError(t, err)
	return sess
}

func (f *fixture) newPlant(name string) NewPlant {
	return NewPlant{
		Name: name,
		Questionnaire: models.Questionnaire{
			LastWatered:    "Today",
			SoilCondition:  "Very wet",
			LightCondition: "Bright indirect",
			Symptoms:       []string{"Wilting", "Wilting", " ", "Yellow leaves"},
		},
		Diagnosis: models.Diagnosis{
			PrimaryDiagnosis: "Overwatering",
			Confidence:       models.ConfidenceMedium,
			Causes:           []string{"Poor drainage"},
			Treatment:        []string{"Let it dry"},
			Prevention:       []string{},
		},
		Image:       []byte{0xff, 0xd8, 0xff, 0xe0},
		ContentType: "image/jpeg",
	}
}

func diagnosisRequest() diagnosis.Request {
	return diagnosis.Request{
		Image:         []byte{0xff, 0xd8, 0xff},
		PlantName:     "Fern",
		Questionnaire: models.Questionnaire{LightCondition: "Low light"},
	}
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.sessions.SignUp(ctx, "", "a@example.com", "abc")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.sessions.SignUp(ctx, "", "", "secret")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.sessions.SignUp(ctx, "", "not-an-email", "secret")
	assert.ErrorIs(t, err, ErrValidation)

	sess, err := f.sessions.SignUp(ctx, "", " A@Example.com ", "abcd")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sess.User.Email)
	assert.False(t, sess.User.IsPremium)
	assert.NotEqual(t, "abcd", sess.User.PasswordHash)

	current, err := f.sessions.Current(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "a@example.com", current.User.Email)

	_, err = f.sessions.SignUp(ctx, "", "a@example.com", "other")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestLogInLogOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "a@example.com")

	_, err := f.sessions.LogIn(ctx, "tg:1", "b@example.com", "secret")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.sessions.LogIn(ctx, "tg:1", "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	sess, err := f.sessions.LogIn(ctx, "tg:1", "a@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tg:1", sess.Scope)

	require.NoError(t, f.sessions.LogOut(ctx, "tg:1"))
	require.NoError(t, f.sessions.LogOut(ctx, "tg:1"))

	current, err := f.sessions.Current(ctx, "tg:1")
	require.NoError(t, err)
	assert.Nil(t, current)

	// Other scopes and the account itself survive.
	current, err = f.sessions.Current(ctx, "")
	require.NoError(t, err)
	assert.NotNil(t, current)
	_, err = f.sessions.LogIn(ctx, "tg:1", "a@example.com", "secret")
	assert.NoError(t, err)
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	want := Session{Scope: "x", User: models.User{Email: "a@example.com"}}
	got, ok := SessionFromContext(WithSession(context.Background(), want))
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestUpgrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	_, err := f.sessions.LogIn(ctx, "api:1", "a@example.com", "secret")
	require.NoError(t, err)

	upgraded, err := f.sessions.Upgrade(ctx, sess)
	require.NoError(t, err)
	assert.True(t, upgraded.User.IsPremium)

	for _, scope := range []string{"", "api:1"} {
		current, err := f.sessions.Current(ctx, scope)
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.True(t, current.User.IsPremium, scope)
	}
}

func TestEffectiveCount(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	stats := func(n int, at time.Time) models.UsageStats {
		return models.UsageStats{DiagnosesThisMonth: n, LastReset: at}
	}

	assert.Equal(t, 2, EffectiveCount(stats(2, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), now))
	assert.Equal(t, 0, EffectiveCount(stats(2, time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC)), now))
	assert.Equal(t, 0, EffectiveCount(stats(9, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)), now))
	assert.Equal(t, 0, EffectiveCount(models.UsageStats{}, now))
}

func TestUsage_LazyReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.clock.Set(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))
	_, err := f.usage.Increment(ctx, "a@example.com", 4)
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	usage, err := f.usage.Read(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Effective)
	assert.Equal(t, 5, usage.Stored.DiagnosesThisMonth)

	stored, err := f.usageRep.Find(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.DiagnosesThisMonth, "read must not write")

	usage, err = f.usage.Increment(ctx, "a@example.com", usage.Effective)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Effective)

	stored, err = f.usageRep.Find(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.DiagnosesThisMonth)
	assert.Equal(t, time.March, stored.LastReset.Month())
}

func TestPlantService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")

	in := f.newPlant("")
	plant, err := f.plants.Create(ctx, sess, in)
	require.NoError(t, err)

	assert.Equal(t, "My Plant", plant.Name)
	assert.Equal(t, f.clock.Now().UnixMilli(), plant.ID)
	assert.Equal(t, 1, plant.Version)
	assert.Equal(t, []string{"Wilting", "Yellow leaves"}, plant.Questionnaire.Symptoms)
	assert.Equal(t, []string{"Wilting", "Wilting", " ", "Yellow leaves"}, in.Questionnaire.Symptoms)
	require.Len(t, plant.ProgressPhotos, 1)
	assert.Equal(t, "Initial", plant.ProgressPhotos[0].Notes)
	assert.Equal(t, "data:image/jpeg;base64,/9j/4A==", plant.ProgressPhotos[0].Image)
	// Bright indirect (5) plus very wet soil (3).
	assert.Equal(t, f.clock.Now().Add(8*24*time.Hour), plant.WateringSchedule.NextWatering)

	stored, err := f.plants.Get(ctx, sess, plant.ID)
	require.NoError(t, err)
	assert.Equal(t, plant.Name, stored.Name)

	_, err = f.plants.Create(ctx, sess, NewPlant{Image: in.Image})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPlantService_CreateUniqueIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, err := f.sessions.Upgrade(ctx, f.signUp(t, "a@example.com"))
	require.NoError(t, err)

	a, err := f.plants.Create(ctx, sess, f.newPlant("a"))
	require.NoError(t, err)
	b, err := f.plants.Create(ctx, sess, f.newPlant("b"))
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)

	plants, err := f.plants.List(ctx, sess)
	require.NoError(t, err)
	require.Len(t, plants, 2)
	assert.Equal(t, "b", plants[0].Name)
}

func TestPlantService_PlantLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")

	for i := 0; i < 3; i++ {
		_, err := f.plants.Create(ctx, sess, f.newPlant("p"))
		require.NoError(t, err)
		f.clock.Set(f.clock.Now().Add(time.Second))
	}
	_, err := f.plants.Create(ctx, sess, f.newPlant("fourth"))
	require.ErrorIs(t, err, entitlement.ErrQuotaExceeded)

	premium, err := f.sessions.Upgrade(ctx, sess)
	require.NoError(t, err)
	_, err = f.plants.Create(ctx, premium, f.newPlant("fourth"))
	assert.NoError(t, err)
}

func TestPlantService_MarkWatered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	plant, err := f.plants.Create(ctx, sess, f.newPlant("Fern"))
	require.NoError(t, err)

	f.clock.Set(f.clock.Now().Add(6 * 24 * time.Hour))
	watered, err := f.plants.MarkWatered(ctx, sess, plant.ID, plant.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, watered.Version)
	assert.Equal(t, f.clock.Now(), watered.WateringSchedule.LastWatered)
	// Soil is assumed slightly moist after watering: bright indirect only.
	assert.Equal(t, f.clock.Now().Add(5*24*time.Hour), watered.WateringSchedule.NextWatering)

	_, err = f.plants.MarkWatered(ctx, sess, plant.ID, plant.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = f.plants.MarkWatered(ctx, sess, 12345, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlantService_FailedSaveLeavesRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	plant, err := f.plants.Create(ctx, sess, f.newPlant("Fern"))
	require.NoError(t, err)

	f.store.failing.Store(true)
	f.clock.Set(f.clock.Now().Add(24 * time.Hour))
	_, err = f.plants.MarkWatered(ctx, sess, plant.ID, 0)
	require.ErrorIs(t, err, repository.ErrStorageWrite)
	f.store.failing.Store(false)

	stored, err := f.plants.Get(ctx, sess, plant.ID)
	require.NoError(t, err)
	assert.Equal(t, plant.Version, stored.Version)
	assert.True(t, plant.WateringSchedule.NextWatering.Equal(stored.WateringSchedule.NextWatering))
}

func TestPlantService_AddPhoto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	plant, err := f.plants.Create(ctx, sess, f.newPlant("Fern"))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		plant, err = f.plants.AddPhoto(ctx, sess, plant.ID, Photo{Image: []byte{1}}, 0)
		require.NoError(t, err)
	}
	assert.Len(t, plant.ProgressPhotos, 5)
	assert.Equal(t, "Update", plant.ProgressPhotos[4].Notes)
	assert.Equal(t, 5, plant.Version)

	_, err = f.plants.AddPhoto(ctx, sess, plant.ID, Photo{Image: []byte{1}}, 0)
	var quota *entitlement.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, entitlement.LimitPhotos, quota.Limit)

	premium, err := f.sessions.Upgrade(ctx, sess)
	require.NoError(t, err)
	plant, err = f.plants.AddPhoto(ctx, premium, plant.ID, Photo{Image: []byte{1}, Notes: "New leaf"}, 0)
	require.NoError(t, err)
	assert.Len(t, plant.ProgressPhotos, 6)
	assert.Equal(t, "New leaf", plant.ProgressPhotos[5].Notes)
}

func TestPlantService_ConcurrentPhotosAreNotLost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, err := f.sessions.Upgrade(ctx, f.signUp(t, "a@example.com"))
	require.NoError(t, err)
	plant, err := f.plants.Create(ctx, sess, f.newPlant("Fern"))
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.plants.AddPhoto(ctx, sess, plant.ID, Photo{Image: []byte{byte(i)}}, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.plants.Get(ctx, sess, plant.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ProgressPhotos, writers+1)
	assert.Equal(t, writers+1, stored.Version)
}

func TestPlantService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	plant, err := f.plants.Create(ctx, sess, f.newPlant("Fern"))
	require.NoError(t, err)

	require.NoError(t, f.plants.Delete(ctx, sess, plant.ID))
	_, err = f.plants.Get(ctx, sess, plant.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiagnosisService_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")

	out, err := f.diag.Diagnose(ctx, sess, diagnosisRequest())
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, "Overwatering", out.Diagnosis.PrimaryDiagnosis)
	assert.Equal(t, 1, out.Usage.Effective)

	_, err = f.diag.Diagnose(ctx, sess, diagnosisRequest())
	require.NoError(t, err)

	_, err = f.diag.Diagnose(ctx, sess, diagnosisRequest())
	var quota *entitlement.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, entitlement.LimitDiagnoses, quota.Limit)
	assert.Equal(t, int32(2), f.model.calls.Load())

	// A new month frees the quota again.
	f.clock.Set(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	out, err = f.diag.Diagnose(ctx, sess, diagnosisRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Usage.Effective)
}

func TestDiagnosisService_TruncatedJSONDoesNotCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	f.model.text = validAnswer[:30]

	out, err := f.diag.Diagnose(ctx, sess, diagnosisRequest())
	require.NoError(t, err)
	assert.False(t, out.Succeeded())
	assert.Equal(t, "Error", out.Diagnosis.PrimaryDiagnosis)
	assert.Equal(t, models.ConfidenceLow, out.Diagnosis.Confidence)
	assert.Equal(t, 0, out.Usage.Effective)

	stored, err := f.usageRep.Find(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestDiagnosisService_PlantLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	for i := 0; i < 3; i++ {
		_, err := f.plants.Create(ctx, sess, f.newPlant("p"))
		require.NoError(t, err)
	}

	_, err := f.diag.Diagnose(ctx, sess, diagnosisRequest())
	assert.ErrorIs(t, err, entitlement.ErrQuotaExceeded)
	assert.Zero(t, f.model.calls.Load())

	_, err = f.diag.Diagnose(ctx, sess, diagnosis.Request{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHomeService_Load(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")
	plant, err := f.plants.Create(ctx, sess, f.newPlant("Fern"))
	require.NoError(t, err)
	_, err = f.diag.Diagnose(ctx, sess, diagnosisRequest())
	require.NoError(t, err)

	f.clock.Set(f.clock.Now().Add(10 * 24 * time.Hour))
	home, err := f.home.Load(ctx, sess)
	require.NoError(t, err)

	require.Len(t, home.Plants, 1)
	assert.Equal(t, 1, home.Usage.Effective)
	require.Len(t, home.Overdue, 1)
	assert.Equal(t, plant.ID, home.Overdue[0].PlantID)
	assert.Equal(t, "Overdue 2d", home.Overdue[0].Status)
	assert.Equal(t, entitlement.DefaultLimits(), home.Limits)
}

// bucketImages hands out object URLs the way the S3 store does.
type bucketImages struct{ n atomic.Int32 }

func (b *bucketImages) Put(context.Context, string, []byte, string) (string, error) {
	return fmt.Sprintf("https://bucket.example.com/photos/%d.jpg", b.n.Add(1)), nil
}

func TestPlantService_FailedSaveLogsOrphanedPhoto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := f.signUp(t, "a@example.com")

	var logs bytes.Buffer
	f.plants.log = slog.New(slog.NewTextHandler(&logs, nil))
	f.plants.images = &bucketImages{}

	plant, err := f.plants.Create(ctx, sess, f.newPlant("Fern"))
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "orphaned")

	f.store.failing.Store(true)
	_, err = f.plants.Create(ctx, sess, f.newPlant("Ivy"))
	require.ErrorIs(t, err, repository.ErrStorageWrite)
	assert.Contains(t, logs.String(), "orphaned plant photo")
	assert.Contains(t, logs.String(), "https://bucket.example.com/photos/2.jpg")

	_, err = f.plants.AddPhoto(ctx, sess, plant.ID, Photo{Image: []byte{0xff, 0xd8}, ContentType: "image/jpeg"}, 0)
	require.ErrorIs(t, err, repository.ErrStorageWrite)
	assert.Contains(t, logs.String(), "https://bucket.example.com/photos/3.jpg")
	f.store.failing.Store(false)

	stored, err := f.plants.Get(ctx, sess, plant.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ProgressPhotos, 1)
}

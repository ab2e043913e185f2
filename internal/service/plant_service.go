package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/repository"
	"github.com/digkill/PlantDoctor/internal/storage"
	"github.com/digkill/PlantDoctor/internal/watering"
)

const (
	defaultPlantName  = "My Plant"
	initialPhotoNotes = "Initial"
	updatePhotoNotes  = "Update"
)

type PlantService struct {
	log    *slog.Logger
	plants *repository.PlantRepository
	gate   *entitlement.Gate
	images storage.ImageStore
	now    func() time.Time
	locks  *keyedMutex
	lastID atomic.Int64
}

func NewPlantService(log *slog.Logger, plants *repository.PlantRepository, gate *entitlement.Gate, images storage.ImageStore) *PlantService {
	return &PlantService{
		log:    log,
		plants: plants,
		gate:   gate,
		images: images,
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

// NewPlant is what the owner confirms after a diagnosis to start tracking a
// plant.
type NewPlant struct {
	Name          string
	Questionnaire models.Questionnaire
	Diagnosis     models.Diagnosis
	Image         []byte
	ContentType   string
}

// Photo is a progress photo to append to a plant.
type Photo struct {
	Image       []byte
	ContentType string
	Notes       string
}

// nextID returns the creation time in unix milliseconds, bumped past the
// previous id when two plants are created within the same millisecond.
func (s *PlantService) nextID() int64 {
	for {
		last := s.lastID.Load()
		id := s.now().UnixMilli()
		if id <= last {
			id = last + 1
		}
		if s.lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

func (s *PlantService) List(ctx context.Context, sess Session) ([]models.PlantRecord, error) {
	return s.plants.List(ctx, sess.User.Email)
}

func (s *PlantService) Get(ctx context.Context, sess Session, id int64) (models.PlantRecord, error) {
	plant, err := s.plants.Get(ctx, sess.User.Email, id)
	if err != nil {
		return models.PlantRecord{}, err
	}
	if plant == nil {
		return models.PlantRecord{}, fmt.Errorf("%w: plant %d", ErrNotFound, id)
	}
	return *plant, nil
}

// Create saves a diagnosed plant with its first photo and a fresh watering
// schedule. Free accounts are limited in how many plants they keep.
func (s *PlantService) Create(ctx context.Context, sess Session, in NewPlant) (models.PlantRecord, error) {
	if len(in.Image) == 0 {
		return models.PlantRecord{}, fmt.Errorf("%w: a photo is required", ErrValidation)
	}
	if strings.TrimSpace(in.Diagnosis.PrimaryDiagnosis) == "" || !in.Diagnosis.Confidence.Valid() {
		return models.PlantRecord{}, fmt.Errorf("%w: a diagnosis is required", ErrValidation)
	}

	existing, err := s.plants.List(ctx, sess.User.Email)
	if err != nil {
		return models.PlantRecord{}, err
	}
	if err := s.gate.CanAddPlant(sess.User.IsPremium, len(existing)); err != nil {
		return models.PlantRecord{}, err
	}

	ref, err := s.images.Put(ctx, sess.User.Email, in.Image, in.ContentType)
	if err != nil {
		return models.PlantRecord{}, fmt.Errorf("store photo: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultPlantName
	}
	q := in.Questionnaire
	q.Symptoms = uniqueSymptoms(q.Symptoms)

	now := s.now().UTC()
	plant := models.PlantRecord{
		ID:               s.nextID(),
		Name:             name,
		Questionnaire:    q,
		Diagnosis:        in.Diagnosis,
		ProgressPhotos:   []models.ProgressPhoto{{Image: ref, Date: now, Notes: initialPhotoNotes}},
		WateringSchedule: watering.Schedule(q.LightCondition, q.SoilCondition, now),
		DateAdded:        now,
		Version:          1,
	}
	plant = plant.Clone()
	if err := s.plants.Save(ctx, sess.User.Email, plant); err != nil {
		s.logOrphanedPhoto(sess.User.Email, plant.ID, ref, err)
		return models.PlantRecord{}, err
	}
	s.log.Info("plant created", "email", sess.User.Email, "plant_id", plant.ID)
	return plant, nil
}

// MarkWatered records a watering now and schedules the next one. A non-zero
// expectedVersion must match the stored record.
func (s *PlantService) MarkWatered(ctx context.Context, sess Session, id int64, expectedVersion int) (models.PlantRecord, error) {
	return s.mutate(ctx, sess, id, expectedVersion, func(p *models.PlantRecord) error {
		p.WateringSchedule = watering.AfterWatering(p.Questionnaire.LightCondition, s.now().UTC())
		return nil
	})
}

// AddPhoto appends a progress photo. Free accounts are limited per plant.
func (s *PlantService) AddPhoto(ctx context.Context, sess Session, id int64, photo Photo, expectedVersion int) (models.PlantRecord, error) {
	if len(photo.Image) == 0 {
		return models.PlantRecord{}, fmt.Errorf("%w: a photo is required", ErrValidation)
	}
	var ref string
	plant, err := s.mutate(ctx, sess, id, expectedVersion, func(p *models.PlantRecord) error {
		if err := s.gate.CanAddPhoto(sess.User.IsPremium, len(p.ProgressPhotos)); err != nil {
			return err
		}
		var err error
		ref, err = s.images.Put(ctx, sess.User.Email, photo.Image, photo.ContentType)
		if err != nil {
			return fmt.Errorf("store photo: %w", err)
		}
		notes := strings.TrimSpace(photo.Notes)
		if notes == "" {
			notes = updatePhotoNotes
		}
		p.ProgressPhotos = append(p.ProgressPhotos, models.ProgressPhoto{Image: ref, Date: s.now().UTC(), Notes: notes})
		return nil
	})
	if err != nil && ref != "" {
		s.logOrphanedPhoto(sess.User.Email, id, ref, err)
	}
	return plant, err
}

// logOrphanedPhoto records a stored photo that no plant refers to because the
// record could not be saved.
func (s *PlantService) logOrphanedPhoto(email string, plantID int64, ref string, err error) {
	if strings.HasPrefix(ref, "data:") {
		return
	}
	s.log.Warn("orphaned plant photo", "email", email, "plant_id", plantID, "ref", ref, "err", err)
}

// mutate applies change to the latest stored copy of a plant while holding the
// plant's lock, then saves it under the next version. Nothing is returned
// unless the save succeeded.
func (s *PlantService) mutate(ctx context.Context, sess Session, id int64, expectedVersion int, change func(*models.PlantRecord) error) (models.PlantRecord, error) {
	unlock := s.locks.Lock(repository.PlantKey(sess.User.Email, id))
	defer unlock()

	current, err := s.Get(ctx, sess, id)
	if err != nil {
		return models.PlantRecord{}, err
	}
	if expectedVersion != 0 && current.Version != expectedVersion {
		return models.PlantRecord{}, fmt.Errorf("%w: plant %d is at version %d, not %d", ErrVersionConflict, id, current.Version, expectedVersion)
	}

	next := current.Clone()
	if err := change(&next); err != nil {
		return models.PlantRecord{}, err
	}
	next.Version = current.Version + 1

	if err := s.plants.Save(ctx, sess.User.Email, next); err != nil {
		return models.PlantRecord{}, err
	}
	return next, nil
}

// Delete removes a plant. It is not retried.
func (s *PlantService) Delete(ctx context.Context, sess Session, id int64) error {
	unlock := s.locks.Lock(repository.PlantKey(sess.User.Email, id))
	defer unlock()
	return s.plants.Delete(ctx, sess.User.Email, id)
}

func uniqueSymptoms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/PlantDoctor/internal/catalog"
	"github.com/digkill/PlantDoctor/internal/config"
	"github.com/digkill/PlantDoctor/internal/database"
	"github.com/digkill/PlantDoctor/internal/diagnosis"
	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/repository"
	"github.com/digkill/PlantDoctor/internal/retry"
	"github.com/digkill/PlantDoctor/internal/service"
	"github.com/digkill/PlantDoctor/internal/storage"
	"github.com/digkill/PlantDoctor/pkg/logger"
)

// app is the engine wired from configuration, shared by every command.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	catalog   catalog.Catalog
	sessions  *service.SessionService
	plants    *service.PlantService
	home      *service.HomeService
	diagnoses *service.DiagnosisService
	close     func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := database.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	images, err := storage.New(cfg)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("image storage: %w", err)
	}

	model, err := newModel(ctx, cfg, log)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.StoreWriteAttempts,
		Backoff:     retry.Exponential(cfg.StoreRetryBase),
	}
	gate := entitlement.NewGate(entitlement.Limits{
		Plants:           cfg.FreePlantLimit,
		MonthlyDiagnoses: cfg.FreeMonthlyDiagnoses,
		PhotosPerPlant:   cfg.FreePhotosPerPlant,
	})

	users := repository.NewUserRepository(store, policy)
	usageRepo := repository.NewUsageRepository(store, policy)
	plantRepo := repository.NewPlantRepository(store, policy, log)

	usage := service.NewUsageService(usageRepo)
	plants := service.NewPlantService(log, plantRepo, gate, images)

	return &app{
		cfg:       cfg,
		log:       log,
		catalog:   cat,
		sessions:  service.NewSessionService(users, log),
		plants:    plants,
		home:      service.NewHomeService(plants, usage, gate),
		diagnoses: service.NewDiagnosisService(log, diagnosis.NewOrchestrator(model, log), plantRepo, usage, gate),
		close:     closeStore,
	}, nil
}

func newModel(ctx context.Context, cfg config.Config, log *slog.Logger) (diagnosis.Model, error) {
	switch cfg.DiagnosisProvider {
	case config.ProviderGemini:
		client, err := diagnosis.NewGeminiClient(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return client, nil
	default:
		return diagnosis.NewAnthropicClient(cfg, log), nil
	}
}

// currentSession resumes the shell session kept under the default scope.
func (a *app) currentSession(ctx context.Context) (service.Session, error) {
	sess, err := a.sessions.Current(ctx, "")
	if err != nil {
		return service.Session{}, err
	}
	if sess == nil {
		return service.Session{}, fmt.Errorf("%w: run \"plantdoctor login\" first", service.ErrNoSession)
	}
	return *sess, nil
}

// withApp builds the app for one command run and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			a.log.Warn("close store", "err", err)
		}
	}()
	return fn(a)
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/PlantDoctor/internal/diagnosis"
	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/repository"
)

type DiagnosisService struct {
	log          *slog.Logger
	orchestrator *diagnosis.Orchestrator
	plants       *repository.PlantRepository
	usage        *UsageService
	gate         *entitlement.Gate
}

func NewDiagnosisService(log *slog.Logger, orchestrator *diagnosis.Orchestrator, plants *repository.PlantRepository, usage *UsageService, gate *entitlement.Gate) *DiagnosisService {
	return &DiagnosisService{
		log:          log,
		orchestrator: orchestrator,
		plants:       plants,
		usage:        usage,
		gate:         gate,
	}
}

// Outcome is the diagnosis plus the usage that applies after it.
type Outcome struct {
	diagnosis.Result
	Usage Usage
}

// Diagnose checks the free-tier limits, asks the model and counts the
// diagnosis against the monthly quota when it succeeded. A failed model call
// is not an error: the result then carries the fallback diagnosis.
func (s *DiagnosisService) Diagnose(ctx context.Context, sess Session, req diagnosis.Request) (Outcome, error) {
	if len(req.Image) == 0 {
		return Outcome{}, fmt.Errorf("%w: a photo is required", ErrValidation)
	}
	req.Questionnaire.Symptoms = uniqueSymptoms(req.Questionnaire.Symptoms)

	usage, err := s.precheck(ctx, sess)
	if err != nil {
		return Outcome{}, err
	}

	res := s.orchestrator.Diagnose(ctx, req)
	out := Outcome{Result: res, Usage: usage}
	if !res.Succeeded() {
		return out, nil
	}

	email := sess.User.Email
	updated, err := s.usage.Increment(ctx, email, usage.Effective)
	if err != nil {
		s.log.Error("failed to record diagnosis usage", "email", email, "err", err)
		return out, nil
	}
	out.Usage = updated
	s.log.Info("diagnosis completed", "email", email, "diagnosis", res.Diagnosis.PrimaryDiagnosis, "elapsed", res.Elapsed)
	return out, nil
}

// Precheck reports whether the user may start a diagnosis for a new plant,
// so front-ends can offer the upgrade before asking any questions.
func (s *DiagnosisService) Precheck(ctx context.Context, sess Session) error {
	_, err := s.precheck(ctx, sess)
	return err
}

func (s *DiagnosisService) precheck(ctx context.Context, sess Session) (Usage, error) {
	plants, err := s.plants.List(ctx, sess.User.Email)
	if err != nil {
		return Usage{}, err
	}
	if err := s.gate.CanAddPlant(sess.User.IsPremium, len(plants)); err != nil {
		return Usage{}, err
	}

	usage, err := s.usage.Read(ctx, sess.User.Email)
	if err != nil {
		return Usage{}, err
	}
	if err := s.gate.CanDiagnose(sess.User.IsPremium, usage.Effective); err != nil {
		return Usage{}, err
	}
	return usage, nil
}

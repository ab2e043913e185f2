package diagnosis

import (
	"context"
	"log/slog"
	"time"

	"github.com/digkill/PlantDoctor/internal/models"
)

type State int

const (
	StateIdle State = iota
	StateRequesting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Result always carries a usable Diagnosis. Err is set when State is
// StateFailed and explains why the fallback was used.
type Result struct {
	Diagnosis models.Diagnosis
	State     State
	Err       error
	Elapsed   time.Duration
}

func (r Result) Succeeded() bool {
	return r.State == StateSucceeded
}

// Fallback is the diagnosis shown when the model could not be asked or did
// not answer with a diagnosis.
func Fallback(err error) models.Diagnosis {
	explanation := "unknown error"
	if err != nil {
		explanation = err.Error()
	}
	return models.Diagnosis{
		PrimaryDiagnosis: "Error",
		Confidence:       models.ConfidenceLow,
		Explanation:      explanation,
		Causes:           []string{"API Issue"},
		Treatment:        []string{"Please try again"},
		Timeline:         "N/A",
		Prevention:       []string{},
	}
}

type Orchestrator struct {
	model Model
	log   *slog.Logger
}

func NewOrchestrator(model Model, log *slog.Logger) *Orchestrator {
	return &Orchestrator{model: model, log: log}
}

// Diagnose runs a single request through Idle, Requesting and then Succeeded
// or Failed.
func (o *Orchestrator) Diagnose(ctx context.Context, req Request) Result {
	started := time.Now()
	state := StateIdle
	transition := func(next State) {
		o.log.Debug("diagnosis state", "from", state.String(), "to", next.String(), "plant", req.PlantName)
		state = next
	}

	transition(StateRequesting)
	text, err := o.model.Generate(ctx, BuildPrompt(req.PlantName, req.Questionnaire), req.Image, req.mediaType())
	if err == nil {
		var d models.Diagnosis
		if d, err = Parse(text); err == nil {
			transition(StateSucceeded)
			return Result{Diagnosis: d, State: state, Elapsed: time.Since(started)}
		}
	}

	transition(StateFailed)
	o.log.Warn("diagnosis failed, using fallback", "plant", req.PlantName, "err", err)
	return Result{Diagnosis: Fallback(err), State: state, Err: err, Elapsed: time.Since(started)}
}

// Package diagnosis asks a multimodal model what is wrong with a plant and
// turns its answer into a models.Diagnosis. A failed request never surfaces as
// an error; it yields a low-confidence fallback diagnosis instead.
package diagnosis

import (
	"context"
	"errors"
	"strings"

	"github.com/digkill/PlantDoctor/internal/models"
)

var (
	// ErrTransport covers network failures and non-success responses.
	ErrTransport = errors.New("diagnosis request failed")
	// ErrMalformedResponse is returned when the answer is not a diagnosis.
	ErrMalformedResponse = errors.New("malformed diagnosis response")
)

const DefaultMediaType = "image/jpeg"

// Request is one photo plus the owner's answers about the plant.
type Request struct {
	Image         []byte
	MediaType     string
	PlantName     string
	Questionnaire models.Questionnaire
}

func (r Request) mediaType() string {
	if mt := strings.TrimSpace(r.MediaType); mt != "" {
		return mt
	}
	return DefaultMediaType
}

// Model sends a prompt with an attached image and returns the text of the
// first text block of the answer.
type Model interface {
	Generate(ctx context.Context, prompt string, image []byte, mediaType string) (string, error)
}

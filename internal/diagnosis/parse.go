package diagnosis

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/digkill/PlantDoctor/internal/models"
)

var fenceRe = regexp.MustCompile("```json\\n?|\\n?```")

// StripFences removes markdown code fences the model sometimes wraps JSON in.
func StripFences(text string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
}

// Parse decodes a model answer into a Diagnosis. Unknown fields, missing
// fields and an unknown confidence level are all rejected.
func Parse(text string) (models.Diagnosis, error) {
	body := StripFences(text)
	if body == "" {
		return models.Diagnosis{}, fmt.Errorf("%w: empty answer", ErrMalformedResponse)
	}

	var raw struct {
		PrimaryDiagnosis *string   `json:"primaryDiagnosis"`
		Confidence       *string   `json:"confidence"`
		Explanation      *string   `json:"explanation"`
		Causes           *[]string `json:"causes"`
		Treatment        *[]string `json:"treatment"`
		Timeline         *string   `json:"timeline"`
		Prevention       *[]string `json:"prevention"`
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return models.Diagnosis{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return models.Diagnosis{}, fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}

	var missing []string
	for name, present := range map[string]bool{
		"primaryDiagnosis": raw.PrimaryDiagnosis != nil,
		"confidence":       raw.Confidence != nil,
		"explanation":      raw.Explanation != nil,
		"causes":           raw.Causes != nil,
		"treatment":        raw.Treatment != nil,
		"timeline":         raw.Timeline != nil,
		"prevention":       raw.Prevention != nil,
	} {
		if !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return models.Diagnosis{}, fmt.Errorf("%w: missing fields %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}

	confidence := models.Confidence(strings.ToLower(strings.TrimSpace(*raw.Confidence)))
	if !confidence.Valid() {
		return models.Diagnosis{}, fmt.Errorf("%w: confidence %q", ErrMalformedResponse, *raw.Confidence)
	}
	if strings.TrimSpace(*raw.PrimaryDiagnosis) == "" {
		return models.Diagnosis{}, fmt.Errorf("%w: empty primaryDiagnosis", ErrMalformedResponse)
	}

	return models.Diagnosis{
		PrimaryDiagnosis: *raw.PrimaryDiagnosis,
		Confidence:       confidence,
		Explanation:      *raw.Explanation,
		Causes:           *raw.Causes,
		Treatment:        *raw.Treatment,
		Timeline:         *raw.Timeline,
		Prevention:       *raw.Prevention,
	}, nil
}

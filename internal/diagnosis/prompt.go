package diagnosis

import (
	"strings"

	"github.com/digkill/PlantDoctor/internal/models"
)

const responseTemplate = `{"primaryDiagnosis":"x","confidence":"high","explanation":"y","causes":["a"],"treatment":["b"],"timeline":"c","prevention":["d"]}`

// BuildPrompt renders the text block sent next to the photo.
func BuildPrompt(plantName string, q models.Questionnaire) string {
	var b strings.Builder
	b.WriteString("Plant expert. Analyze.\n")
	b.WriteString("Plant: " + plantName + "\n")
	b.WriteString("Watered: " + q.LastWatered + "\n")
	b.WriteString("Soil: " + q.SoilCondition + "\n")
	b.WriteString("Light: " + q.LightCondition + "\n")
	if q.RecentChanges != "" {
		b.WriteString("Recent changes: " + q.RecentChanges + "\n")
	}
	b.WriteString("Symptoms: " + strings.Join(q.Symptoms, ", ") + "\n")
	b.WriteString("\nJSON only:\n")
	b.WriteString(responseTemplate)
	return b.String()
}

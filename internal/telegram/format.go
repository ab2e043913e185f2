package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/service"
	"github.com/digkill/PlantDoctor/internal/watering"
)

func formatDiagnosis(d models.Diagnosis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (confidence: %s)\n\n%s\n", d.PrimaryDiagnosis, d.Confidence, d.Explanation)
	writeList(&b, "Causes", d.Causes)
	writeList(&b, "Treatment", d.Treatment)
	if d.Timeline != "" {
		fmt.Fprintf(&b, "\nRecovery timeline: %s\n", d.Timeline)
	}
	writeList(&b, "Prevention", d.Prevention)
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

func formatPlants(plants []models.PlantRecord, now time.Time) string {
	if len(plants) == 0 {
		return "No plants yet. Send a photo to diagnose your first one."
	}
	var b strings.Builder
	b.WriteString("Your plants:\n")
	for _, p := range plants {
		fmt.Fprintf(&b, "\n#%d %s: %s", p.ID, p.Name, p.Diagnosis.PrimaryDiagnosis)
		if !p.WateringSchedule.NextWatering.IsZero() {
			fmt.Fprintf(&b, " | water: %s", watering.Status(p.WateringSchedule.NextWatering, now))
		}
		fmt.Fprintf(&b, " | photos: %d", len(p.ProgressPhotos))
	}
	return b.String()
}

func formatUsage(home service.Home) string {
	var b strings.Builder
	if home.User.IsPremium {
		b.WriteString("Plan: premium, no limits.\n")
	} else {
		fmt.Fprintf(&b, "Plan: free\nDiagnoses this month: %d/%d\nPlants: %d/%d\n",
			home.Usage.Effective, home.Limits.MonthlyDiagnoses, len(home.Plants), home.Limits.Plants)
	}
	if len(home.Overdue) > 0 {
		fmt.Fprintf(&b, "\n%d plant(s) need water:\n", len(home.Overdue))
		for _, a := range home.Overdue {
			fmt.Fprintf(&b, "#%d %s: %s\n", a.PlantID, a.Name, a.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatQuota(q *entitlement.QuotaExceededError) string {
	switch q.Limit {
	case entitlement.LimitPlants:
		return fmt.Sprintf("The free plan keeps up to %d plants. Send /upgrade for unlimited plants.", q.Max)
	case entitlement.LimitDiagnoses:
		return fmt.Sprintf("The free plan includes %d diagnoses per month. Send /upgrade for unlimited diagnoses.", q.Max)
	case entitlement.LimitPhotos:
		return fmt.Sprintf("The free plan keeps up to %d photos per plant. Send /upgrade for unlimited photos.", q.Max)
	}
	return "Limit reached. Send /upgrade to lift it."
}

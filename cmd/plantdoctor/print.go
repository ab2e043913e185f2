package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/service"
	"github.com/digkill/PlantDoctor/internal/watering"
)

const dateLayout = "Mon Jan 2"

func printPlants(w io.Writer, plants []models.PlantRecord) {
	if len(plants) == 0 {
		fmt.Fprintln(w, "No plants yet")
		return
	}
	now := time.Now()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDIAGNOSIS\tWATER\tPHOTOS")
	for _, p := range plants {
		status := "-"
		if !p.WateringSchedule.NextWatering.IsZero() {
			status = watering.Status(p.WateringSchedule.NextWatering, now)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Diagnosis.PrimaryDiagnosis, status, len(p.ProgressPhotos))
	}
	_ = tw.Flush()
}

func printDiagnosis(w io.Writer, d models.Diagnosis) {
	fmt.Fprintf(w, "%s (confidence: %s)\n%s\n", d.PrimaryDiagnosis, d.Confidence, d.Explanation)
	printList(w, "Causes", d.Causes)
	printList(w, "Treatment", d.Treatment)
	if d.Timeline != "" {
		fmt.Fprintf(w, "\nRecovery timeline: %s\n", d.Timeline)
	}
	printList(w, "Prevention", d.Prevention)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func printHome(w io.Writer, home service.Home) {
	plan := "free"
	if home.User.IsPremium {
		plan = "premium"
	}
	fmt.Fprintf(w, "%s (%s plan)\n", home.User.Email, plan)
	if !home.User.IsPremium {
		fmt.Fprintf(w, "Diagnoses this month: %d/%d\n", home.Usage.Effective, home.Limits.MonthlyDiagnoses)
		fmt.Fprintf(w, "Plants: %d/%d\n", len(home.Plants), home.Limits.Plants)
	} else {
		fmt.Fprintf(w, "Plants: %d\n", len(home.Plants))
	}
	if len(home.Overdue) == 0 {
		return
	}
	names := make([]string, 0, len(home.Overdue))
	for _, a := range home.Overdue {
		names = append(names, fmt.Sprintf("%s (%s)", a.Name, a.Status))
	}
	fmt.Fprintf(w, "Needs water: %s\n", strings.Join(names, ", "))
}

package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/digkill/PlantDoctor/internal/diagnosis"
	"github.com/digkill/PlantDoctor/internal/service"
	"github.com/digkill/PlantDoctor/internal/storage"
)

var plantsCmd = &cobra.Command{
	Use:   "plants",
	Short: "List your plants with their watering status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			sess, err := a.currentSession(cmd.Context())
			if err != nil {
				return err
			}
			plants, err := a.plants.List(cmd.Context(), sess)
			if err != nil {
				return err
			}
			printPlants(cmd.OutOrStdout(), plants)
			return nil
		})
	},
}

var diagnoseFlags struct {
	image    string
	name     string
	light    string
	soil     string
	watered  string
	changes  string
	symptoms []string
	save     bool
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Diagnose a plant from a photo and questionnaire answers",
	Long: `Diagnose a plant from a photo and questionnaire answers.

Answers must be options from the questionnaire catalog, for example:
  plantdoctor diagnose --image fern.jpg --name Fern --light "Bright indirect" \
    --soil "Bone dry" --watered "1 week ago" --symptom "Brown tips" --save`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := diagnoseFlags
		data, err := os.ReadFile(f.image)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}

		return withApp(cmd.Context(), func(a *app) error {
			if err := checkOption("light", f.light, a.catalog.Light); err != nil {
				return err
			}
			if err := checkOption("soil", f.soil, a.catalog.Soil); err != nil {
				return err
			}
			if err := checkOption("watered", f.watered, a.catalog.LastWatered); err != nil {
				return err
			}
			for _, s := range f.symptoms {
				if !a.catalog.IsSymptom(s) {
					return fmt.Errorf("%w: unknown symptom %q", service.ErrValidation, s)
				}
			}

			sess, err := a.currentSession(cmd.Context())
			if err != nil {
				return err
			}

			req := diagnosis.Request{
				Image:     data,
				MediaType: storage.ContentType(data, ""),
				PlantName: f.name,
			}
			req.Questionnaire.LightCondition = f.light
			req.Questionnaire.SoilCondition = f.soil
			req.Questionnaire.LastWatered = f.watered
			req.Questionnaire.RecentChanges = f.changes
			req.Questionnaire.Symptoms = f.symptoms

			out, err := a.diagnoses.Diagnose(cmd.Context(), sess, req)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printDiagnosis(w, out.Diagnosis)
			if !out.Succeeded() {
				fmt.Fprintln(w, "\nThis attempt was not counted against your monthly diagnoses.")
			}
			if !f.save {
				return nil
			}

			plant, err := a.plants.Create(cmd.Context(), sess, service.NewPlant{
				Name:          f.name,
				Questionnaire: req.Questionnaire,
				Diagnosis:     out.Diagnosis,
				Image:         data,
				ContentType:   req.MediaType,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\nSaved %s as #%d\n", plant.Name, plant.ID)
			return nil
		})
	},
}

var waterCmd = &cobra.Command{
	Use:   "water <id>",
	Short: "Mark a plant as watered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlantID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			sess, err := a.currentSession(cmd.Context())
			if err != nil {
				return err
			}
			plant, err := a.plants.MarkWatered(cmd.Context(), sess, id, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watered %s, next watering %s\n",
				plant.Name, plant.WateringSchedule.NextWatering.Local().Format(dateLayout))
			return nil
		})
	},
}

var photoNotes string

var photoCmd = &cobra.Command{
	Use:   "photo <id> <file>",
	Short: "Add a progress photo to a plant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlantID(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		return withApp(cmd.Context(), func(a *app) error {
			sess, err := a.currentSession(cmd.Context())
			if err != nil {
				return err
			}
			plant, err := a.plants.AddPhoto(cmd.Context(), sess, id, service.Photo{
				Image:       data,
				ContentType: storage.ContentType(data, ""),
				Notes:       photoNotes,
			}, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added photo %d to %s\n", len(plant.ProgressPhotos), plant.Name)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a plant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlantID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			sess, err := a.currentSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.plants.Delete(cmd.Context(), sess, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted plant #%d\n", id)
			return nil
		})
	},
}

func init() {
	fl := diagnoseCmd.Flags()
	fl.StringVar(&diagnoseFlags.image, "image", "", "path to the plant photo")
	fl.StringVar(&diagnoseFlags.name, "name", "", "plant name")
	fl.StringVar(&diagnoseFlags.light, "light", "", "light condition")
	fl.StringVar(&diagnoseFlags.soil, "soil", "", "soil condition")
	fl.StringVar(&diagnoseFlags.watered, "watered", "", "when the plant was last watered")
	fl.StringVar(&diagnoseFlags.changes, "changes", "", "recent changes, free text")
	fl.StringArrayVar(&diagnoseFlags.symptoms, "symptom", nil, "observed symptom, repeatable")
	fl.BoolVar(&diagnoseFlags.save, "save", false, "save the plant after the diagnosis")
	_ = diagnoseCmd.MarkFlagRequired("image")

	photoCmd.Flags().StringVar(&photoNotes, "notes", "", "notes for the photo")
}

func parsePlantID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a plant id", service.ErrValidation, raw)
	}
	return id, nil
}

// checkOption accepts an empty answer; anything else must come from options.
func checkOption(name, value string, options []string) error {
	if value == "" || slices.Contains(options, value) {
		return nil
	}
	return fmt.Errorf("%w: --%s must be one of %q", service.ErrValidation, name, options)
}

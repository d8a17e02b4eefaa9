package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"soil-advisor/internal/agronomy"
	"soil-advisor/internal/models"
	"soil-advisor/internal/repository"
	"soil-advisor/internal/services"
)

// readingFlags binds the measurement flags shared by record and diagnose
type readingFlags struct {
	nitrogen float64
	ph       float64
	moisture float64
	crop     string
	at       string
}

func (f *readingFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.nitrogen, "nitrogen", 0, "Nitrogen content (%)")
	cmd.Flags().Float64Var(&f.ph, "ph", 0, "Soil pH (0-14)")
	cmd.Flags().Float64Var(&f.moisture, "moisture", 0, "Soil moisture (%)")
	cmd.Flags().StringVar(&f.crop, "crop", "", "Crop identifier, e.g. rice")
}

// given reports whether any measurement flag was given
func (f *readingFlags) given(cmd *cobra.Command) bool {
	for _, name := range []string{"nitrogen", "ph", "moisture", "crop"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// input builds a ReadingInput, leaving unset measurements nil so validation
// reports them as missing rather than zero
func (f *readingFlags) input(cmd *cobra.Command) (*models.ReadingInput, error) {
	in := &models.ReadingInput{Crop: f.crop}
	if cmd.Flags().Changed("nitrogen") {
		in.Nitrogen = &f.nitrogen
	}
	if cmd.Flags().Changed("ph") {
		in.PH = &f.ph
	}
	if cmd.Flags().Changed("moisture") {
		in.Moisture = &f.moisture
	}
	if f.at != "" {
		at, err := time.Parse(time.RFC3339, f.at)
		if err != nil {
			return nil, fmt.Errorf("invalid --at %q: %w", f.at, err)
		}
		in.RecordedAt = &at
	}
	return in, nil
}

// recordCmd appends one reading to the log
func (c *cli) recordCmd() *cobra.Command {
	var flags readingFlags

	cmd := &cobra.Command{
		Use:     "record",
		Short:   "Record a soil reading",
		Example: `  soilctl record --nitrogen 2.4 --ph 6.1 --moisture 82 --crop rice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input(cmd)
			if err != nil {
				return err
			}
			readings, err := c.open(cmd)
			if err != nil {
				return err
			}

			reading, err := readings.Record(c.context(cmd), in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return writeJSON(out, reading)
			}
			fmt.Fprintf(out, "Recorded %s: %s nitrogen %g%%, pH %g, moisture %g%%\n",
				reading.ID, reading.Crop, reading.Nitrogen, reading.PH, reading.Moisture)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.at, "at", "", "Capture time, RFC3339 (default now)")
	return cmd
}

// historyCmd lists readings newest first
func (c *cli) historyCmd() *cobra.Command {
	var crop string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded readings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			readings, err := c.open(cmd)
			if err != nil {
				return err
			}

			filter := repository.ReadingFilter{Limit: limit}
			if crop != "" {
				filter.Crop = &crop
			}
			list, total, err := readings.History(c.context(cmd), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return writeJSON(out, map[string]interface{}{"data": list, "total": total})
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RECORDED AT\tCROP\tNITROGEN\tPH\tMOISTURE\tID")
			for _, r := range list {
				fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\t%s\n",
					r.RecordedAt.Format(time.RFC3339), r.Crop, r.Nitrogen, r.PH, r.Moisture, r.ID)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d readings\n", len(list), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&crop, "crop", "", "Only readings for this crop")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum readings to show (0 for all)")
	return cmd
}

// summaryCmd prints the trend summary of the whole log
func (c *cli) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show latest reading and averages across the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			readings, err := c.open(cmd)
			if err != nil {
				return err
			}

			summary, err := readings.Summary(c.context(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return writeJSON(out, summary)
			}
			printSummary(out, summary)
			return nil
		},
	}
}

func printSummary(out io.Writer, s models.Summary) {
	if !s.HasData() {
		fmt.Fprintln(out, "No readings recorded yet")
		return
	}

	avg := agronomy.RoundAverages(s.Averages)
	fmt.Fprintf(out, "Latest (%s, %s):\n", s.Latest.Crop, s.Latest.RecordedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Nitrogen  %g%%\n  pH        %g\n  Moisture  %g%%\n",
		s.Latest.Nitrogen, s.Latest.PH, s.Latest.Moisture)
	fmt.Fprintf(out, "Averages over %d readings:\n", s.Count)
	fmt.Fprintf(out, "  Nitrogen  %.1f%%\n  pH        %.1f\n  Moisture  %.1f%%\n",
		avg.Nitrogen, avg.PH, avg.Moisture)
}

// diagnoseCmd diagnoses the latest reading, or an ad-hoc one given by flags
func (c *cli) diagnoseCmd() *cobra.Command {
	var flags readingFlags
	var top int

	cmd := &cobra.Command{
		Use:     "diagnose",
		Short:   "Diagnose the latest reading, or one given by flags without storing it",
		Example: `  soilctl diagnose --top 5
  soilctl diagnose --nitrogen 1.2 --ph 5.1 --moisture 90 --crop rice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if top < 0 {
				return fmt.Errorf("invalid --top %d, expected a positive integer", top)
			}
			readings, err := c.open(cmd)
			if err != nil {
				return err
			}

			var diagnosis *models.Diagnosis
			if flags.given(cmd) {
				in, err := flags.input(cmd)
				if err != nil {
					return err
				}
				diagnosis, err = readings.Diagnose(c.context(cmd), in)
				if err != nil {
					return err
				}
			} else {
				diagnosis, err = readings.LatestDiagnosis(c.context(cmd))
				if err != nil {
					return err
				}
			}
			diagnosis = diagnosis.Top(top)

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return writeJSON(out, map[string]interface{}{"diagnosis": diagnosis})
			}
			printDiagnosis(out, diagnosis)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&top, "top", 0, "Show at most N fertilizers and pesticides (0 for all)")
	return cmd
}

func printDiagnosis(out io.Writer, d *models.Diagnosis) {
	if d == nil {
		fmt.Fprintln(out, "No readings recorded yet")
		return
	}

	header := "Diagnosis for " + d.Crop
	if !d.KnownCrop {
		header += " (default profile)"
	}
	fmt.Fprintln(out, header)

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(out, "\n%s:\n", title)
		for _, item := range items {
			fmt.Fprintf(out, "  - %s\n", item)
		}
	}

	section("Alerts", d.Alerts)
	section("Optimal", d.Confirmations)
	if len(d.Actions) > 0 {
		fmt.Fprintln(out, "\nActions:")
		for _, a := range d.Actions {
			fmt.Fprintf(out, "  [%s] %s: %s\n", strings.ToUpper(string(a.Priority)), a.Title, a.Description)
		}
	}
	section("Fertilizers", d.Fertilizers)
	section("Pesticides", d.Pesticides)
	section("Tips", d.Tips)
}

// cropsCmd lists the knowledge base or shows one profile
func (c *cli) cropsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crops [crop]",
		Short: "List known crops, or show the optimal ranges for one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				profile, known := agronomy.Lookup(args[0])
				if c.jsonOut {
					return writeJSON(out, map[string]interface{}{"profile": profile, "known": known})
				}
				if !known {
					fmt.Fprintf(out, "%q is not in the knowledge base; the default profile applies\n", args[0])
				}
				printProfile(out, profile)
				return nil
			}

			profiles := make([]models.CropProfile, 0)
			for _, crop := range agronomy.Crops() {
				profile, _ := agronomy.Lookup(crop)
				profiles = append(profiles, profile)
			}
			if c.jsonOut {
				return writeJSON(out, profiles)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CROP\tNITROGEN %\tPH\tMOISTURE %")
			for _, p := range append(profiles, agronomy.DefaultProfile) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Crop, p.Nitrogen, p.PH, p.Moisture)
			}
			return w.Flush()
		},
	}
}

func printProfile(out io.Writer, p models.CropProfile) {
	fmt.Fprintf(out, "Crop:        %s\n", p.Crop)
	fmt.Fprintf(out, "Nitrogen:    %s%%\n", p.Nitrogen)
	fmt.Fprintf(out, "pH:          %s\n", p.PH)
	fmt.Fprintf(out, "Moisture:    %s%%\n", p.Moisture)
	if len(p.Fertilizers) > 0 {
		fmt.Fprintf(out, "Fertilizers: %s\n", strings.Join(p.Fertilizers, ", "))
	}
	if len(p.Pesticides) > 0 {
		fmt.Fprintf(out, "Pesticides:  %s\n", strings.Join(p.Pesticides, ", "))
	}
}

// importCmd bulk-loads CSV files into the log
func (c *cli) importCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import readings from CSV files (recorded_at,nitrogen,ph,moisture,crop)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			readings, err := c.open(cmd)
			if err != nil {
				return err
			}

			ingestion := services.NewIngestionService(readings, c.logger, c.metrics)
			result, err := ingestion.IngestFiles(c.context(cmd), args, batchSize)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "Imported %d of %d readings from %d files in %v\n",
				result.SuccessfulRecords, result.TotalRecords, result.TotalFiles, result.Duration.Round(time.Millisecond))
			for _, msg := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", msg)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "Readings stored per batch")
	return cmd
}

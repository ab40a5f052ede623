package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dicom-deidentify/internal/anonymizer"
	"dicom-deidentify/internal/identity"
	"dicom-deidentify/internal/ledger"
	"dicom-deidentify/internal/metrics"
	"dicom-deidentify/internal/policy"
)

func (a *app) newAnonymizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Anonymize every DICOM file under an input folder",
		Long: `Apply the field policy to every DICOM file under the input folder.

Anonymized copies are written to <output>/<dummy-id>/<file name>, where the dummy
ID is the shifted accession number, or the name of the file's directory when the
accession number is not numeric. Each record is appended to the audit ledger.

A key file holds two lines of digits: the shift pattern for identifiers and the
shift pattern for dates. Use the same key file for every batch of a study.

Files a previous run into the same output already anonymized, or failed on,
are skipped unless they changed. Use --retry to process the failed ones again.`,
		Example: `  # Preview the dummy IDs without writing anything
  deidentify anonymize -i /data/study -k keys.txt -n

  # Anonymize with a custom field policy into a per-study folder
  deidentify anonymize -i /data/study -k keys.txt -p fields.csv -o /share -s TRIAL7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.batchConfig()
			if err != nil {
				return err
			}
			return a.runAnonymize(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "input folder containing DICOM files (required)")
	f.StringP("output", "o", "", "output folder (default: <input>/anonymized)")
	f.StringP("keys", "k", "", "key file: ID shift pattern on line 1, date shift pattern on line 2 (required)")
	f.StringP("policy", "p", "", "field policy CSV with Tag and Action columns (default: built-in policy)")
	f.StringP("study-id", "s", "", "study identifier written to StudyID and used as output sub-folder")
	f.BoolP("recursive", "r", true, "search subdirectories")
	f.String("ledger", "", "audit ledger path (default: <output>/"+anonymizer.LedgerFileName+")")
	f.Int("workers", runtime.NumCPU(), "number of files processed in parallel")
	f.Duration("lock-timeout", ledger.DefaultTimeout, "how long to wait for the ledger lock before writing to a side file")
	f.Bool("retry", false, "retry files that failed in a previous run")
	f.BoolP("dry-run", "n", false, "print the planned dummy IDs without writing anything")
	f.String("metrics-file", "", "write Prometheus metrics to this file when the batch ends")
	f.Bool("no-progress", false, "do not show the progress bar")
	return cmd
}

// batchConfig loads the key file and the policy once, before any record is
// touched.
func (a *app) batchConfig() (anonymizer.Config, error) {
	input, err := a.requireString("input")
	if err != nil {
		return anonymizer.Config{}, err
	}
	info, err := os.Stat(input)
	if err != nil {
		return anonymizer.Config{}, fmt.Errorf("input folder does not exist: %s", input)
	}
	if !info.IsDir() {
		return anonymizer.Config{}, fmt.Errorf("input path is not a directory: %s", input)
	}

	keyFile, err := a.requireString("keys")
	if err != nil {
		return anonymizer.Config{}, err
	}
	keys, err := identity.LoadShiftKeys(keyFile)
	if err != nil {
		return anonymizer.Config{}, err
	}

	p := policy.Default()
	if path := a.v.GetString("policy"); path != "" {
		if p, err = policy.Load(path); err != nil {
			return anonymizer.Config{}, err
		}
	}

	return anonymizer.Config{
		InputFolder:  input,
		OutputFolder: a.v.GetString("output"),
		StudyID:      a.v.GetString("study-id"),
		LedgerFile:   a.v.GetString("ledger"),
		Recursive:    a.v.GetBool("recursive"),
		DryRun:       a.v.GetBool("dry-run"),
		RetryFailed:  a.v.GetBool("retry"),
		Workers:      a.v.GetInt("workers"),
		LockTimeout:  a.v.GetDuration("lock-timeout"),
		Policy:       p,
		Keys:         keys,
	}, nil
}

func (a *app) runAnonymize(cmd *cobra.Command, cfg anonymizer.Config) error {
	out := cmd.OutOrStdout()
	if !cfg.DryRun {
		InitLogging(cmd.ErrOrStderr(), filepath.Join(cfg.OutputRoot(), "logs"), "anonymize", a.verbosity())
	}
	cfg.Logger = log.NewEntry(log.StandardLogger())

	printHeader(out, cfg)

	var pb *progressBar
	if !cfg.DryRun && !a.v.GetBool("no-progress") {
		pb = newProgressBar(cmd.Context(), out)
	}
	callback := func(current, total int, res anonymizer.FileResult, status anonymizer.FileStatus) {
		if cfg.DryRun && res.Err == nil {
			fmt.Fprintf(out, "%s -> %s\n", res.Path, res.OutputPath)
		}
		pb.increment(total)
	}

	start := time.Now()
	stats, err := anonymizer.ProcessFolder(cmd.Context(), cfg, callback)
	pb.wait()
	if stats == nil {
		return err
	}

	if path := a.v.GetString("metrics-file"); path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warnf("Could not write metrics: %v", err)
		}
	}

	printSummary(out, cfg, stats, time.Since(start))
	return err
}

func printHeader(out io.Writer, cfg anonymizer.Config) {
	fmt.Fprintln(out, "DICOM De-identification")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Input:     %s\n", cfg.InputFolder)
	fmt.Fprintf(out, "Output:    %s\n", cfg.OutputRoot())
	fmt.Fprintf(out, "Ledger:    %s\n", cfg.LedgerPath())
	fmt.Fprintf(out, "Policy:    %d fields\n", cfg.Policy.Len())

	var options []string
	if cfg.Recursive {
		options = append(options, "Recursive")
	}
	if cfg.RetryFailed {
		options = append(options, "Retry failed")
	}
	if cfg.DryRun {
		options = append(options, "Dry run")
	}
	if len(options) > 0 {
		fmt.Fprintf(out, "Options:   %s\n", strings.Join(options, ", "))
	}
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, cfg anonymizer.Config, stats *anonymizer.Stats, elapsed time.Duration) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 50))

	status := color.New(color.FgGreen)
	if stats.Failed > 0 {
		status = color.New(color.FgRed)
	}
	status.Fprintf(out, "Complete! %s succeeded, %s failed, %s skipped in %s\n",
		humanize.Comma(int64(stats.Success)), humanize.Comma(int64(stats.Failed)),
		humanize.Comma(int64(stats.Skipped)), elapsed.Round(time.Millisecond))

	if stats.Warnings > 0 {
		fmt.Fprintf(out, "Warnings:  %s field or identifier warnings (see log)\n", humanize.Comma(int64(stats.Warnings)))
	}
	if cfg.DryRun {
		return
	}
	fmt.Fprintf(out, "Output:    %s\n", cfg.OutputRoot())
	fmt.Fprintf(out, "Ledger:    %s\n", cfg.LedgerPath())
	if stats.Failed > 0 {
		fmt.Fprintf(out, "Errors:    %s\n", filepath.Join(cfg.OutputRoot(), "errors.log"))
	}
	if stats.Fragmented > 0 {
		color.New(color.FgYellow).Fprintf(out,
			"%s ledger entries were written to side files. Run: deidentify ledger merge %s\n",
			humanize.Comma(int64(stats.Fragmented)), cfg.LedgerPath())
	}
}

package cli

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dicom-deidentify/internal/identity"
)

func (a *app) newRevealCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reveal [dummy-id...]",
		Short: "Recover real identifiers from dummy identifiers",
		Long: `Reverse the digit shift of dummy identifiers with the key file used to create them.

Identifiers are taken from the arguments and, with --file, from a file holding one
identifier per line. Each is printed as "dummy,real". Identifiers that are not
numeric are reported and skipped.`,
		Example: `  deidentify reveal -k keys.txt 3383 6616
  deidentify reveal -k keys.txt --date 32421831`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keyFile, err := a.requireString("keys")
			if err != nil {
				return err
			}
			keys, err := identity.LoadShiftKeys(keyFile)
			if err != nil {
				return err
			}
			pattern := keys.ID
			if a.v.GetBool("date") {
				pattern = keys.Date
			}

			ids := args
			if file := a.v.GetString("file"); file != "" {
				lines, err := readLines(file)
				if err != nil {
					return err
				}
				ids = append(ids, lines...)
			}
			if len(ids) == 0 {
				return fmt.Errorf("no dummy identifiers given")
			}

			w := csv.NewWriter(cmd.OutOrStdout())
			for _, id := range ids {
				realID, err := identity.Reveal(identity.CleanValue(id), pattern)
				if err != nil {
					log.Warnf("Skipping %q: %v", id, err)
					continue
				}
				if err := w.Write([]string{id, realID}); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}

	cmd.Flags().StringP("keys", "k", "", "key file used when anonymizing (required)")
	cmd.Flags().StringP("file", "f", "", "file with one dummy identifier per line")
	cmd.Flags().Bool("date", false, "reverse with the date pattern instead of the ID pattern")
	return cmd
}

// readLines returns the non-blank lines of path, trimmed.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return lines, nil
}

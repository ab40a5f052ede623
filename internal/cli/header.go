package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/suyashkumar/dicom/pkg/tag"

	dcm "dicom-deidentify/internal/dicom"
)

func (a *app) newHeaderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header <path>...",
		Short: "Dump DICOM headers as CSV",
		Long: `Print the header fields of DICOM files as CSV with the columns File, Tag, Name
and Value. Tags are written as 0xGGGGEEEE, the form a policy table accepts.
Folders are searched for DICOM files. Pixel data is not read.

Use it to check what an anonymized file still contains.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if path := a.v.GetString("output"); path != "" {
				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("could not create %s: %w", path, err)
				}
				defer file.Close()
				out = file
			}
			return dumpHeaders(out, args, a.v.GetBool("recursive"))
		},
	}

	cmd.Flags().BoolP("recursive", "r", true, "search subdirectories")
	cmd.Flags().StringP("output", "o", "", "write the CSV to this file instead of stdout")
	return cmd
}

func hexTag(t tag.Tag) string {
	return fmt.Sprintf("0x%04X%04X", t.Group, t.Element)
}

func dumpHeaders(out io.Writer, paths []string, recursive bool) error {
	var files []string
	for _, p := range paths {
		found, err := dcm.FindDicomFiles(p, recursive)
		if err != nil {
			return fmt.Errorf("could not find DICOM files in %s: %w", p, err)
		}
		files = append(files, found...)
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{"File", "Tag", "Name", "Value"}); err != nil {
		return err
	}

	failed := 0
	for _, file := range files {
		ds, err := dcm.ReadDicomMetadataOnly(file)
		if err != nil {
			log.Warnf("Skipping %s: %v", file, err)
			failed++
			continue
		}
		for _, t := range ds.Tags() {
			value, _ := ds.TryGet(t)
			name := ""
			if info, err := tag.Find(t); err == nil {
				name = info.Name
			}
			if err := w.Write([]string{file, hexTag(t), name, value}); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(files))
	}
	return nil
}

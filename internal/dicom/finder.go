package dicom

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Files with these extensions are taken as DICOM without reading them.
// Anything else must carry the "DICM" marker after the 128-byte preamble.
var dicomExtensions = []string{".dcm", ".dicom", ".ima"}

// skippedNames are never records, even though DICOMDIR carries the marker.
var skippedNames = []string{"DICOMDIR", "Thumbs.db", "desktop.ini"}

// skippedDirs are never descended into.
var skippedDirs = []string{"node_modules", "__pycache__", "venv"}

const (
	preambleLen = 128
	dicomMagic  = "DICM"
)

// FindDicomFiles returns the DICOM files under root in lexical order. root may
// also be a single file. Hidden files and folders are skipped, as is
// everything under an exclude path (typically the output folder when it sits
// inside the input). Without recursive only the files directly in root are
// returned.
func FindDicomFiles(root string, recursive bool, exclude ...string) ([]string, error) {
	excluded := lo.FilterMap(exclude, func(p string, _ int) (string, bool) {
		abs, err := filepath.Abs(p)
		return abs, err == nil
	})

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // unreadable entries are not records
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || isHidden(name) || lo.Contains(skippedDirs, name) || isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			return nil
		}

		if isHidden(name) || lo.Contains(skippedNames, name) {
			return nil
		}
		if lo.Contains(dicomExtensions, strings.ToLower(filepath.Ext(name))) || hasDicomMagic(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not search %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isExcluded(path string, excluded []string) bool {
	abs, err := filepath.Abs(path)
	return err == nil && lo.Contains(excluded, abs)
}

func hasDicomMagic(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	header := make([]byte, preambleLen+len(dicomMagic))
	if _, err := io.ReadFull(file, header); err != nil {
		return false
	}
	return string(header[preambleLen:]) == dicomMagic
}

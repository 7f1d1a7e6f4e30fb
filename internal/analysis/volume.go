package analysis

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Risk grades a Finding.
type Risk string

const (
	RiskHigh   Risk = "HIGH"
	RiskMedium Risk = "MEDIUM"
)

// headerSize is the number of leading bytes filetype needs to match every
// signature it knows.
const headerSize = 262

// Finding is a file whose content does not match its extension.
type Finding struct {
	Path     string
	Declared string // extension from the file name
	Actual   string // extension from the content signature
	Risk     Risk
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: content is %s, name says %s", f.Path, f.Actual, f.Declared)
}

// compatible lists extensions that legitimately carry another format's
// signature, keyed by the detected extension.
var compatible = map[string][]string{
	"zip": {"docx", "docm", "dotx", "xlsx", "xlsm", "xltx", "pptx", "pptm", "potx",
		"jar", "war", "ear", "apk", "odt", "ods", "odp", "crx", "whl", "nupkg", "epub"},
	"xml": {"svg", "html", "htm", "kml", "plist", "config"},
	"mp4": {"m4v", "m4a", "mov", "qt"},
	"mov": {"qt", "mp4"},
	"ogg": {"ogv", "oga", "spx", "opus"},
	"exe": {"dll", "sys", "scr", "cpl", "ocx", "efi"},
	"gz":  {"gzip", "tgz"},
	"jpg": {"jpeg", "jpe"},
	"tif": {"tiff"},
}

func isCompatible(actual, declared string) bool {
	if actual == declared {
		return true
	}
	for _, ext := range compatible[actual] {
		if ext == declared {
			return true
		}
	}
	return false
}

// InspectFile checks one file. It reports false for files without an
// extension, with an unknown signature or with a matching one.
func InspectFile(path string) (Finding, bool, error) {
	declared := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if declared == "" {
		return Finding{}, false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Finding{}, false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Finding{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	if n == 0 {
		return Finding{}, false, nil
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown || isCompatible(kind.Extension, declared) {
		return Finding{}, false, nil
	}

	risk := RiskMedium
	switch kind.Extension {
	case "exe", "elf", "dll":
		risk = RiskHigh
	}
	return Finding{Path: path, Declared: declared, Actual: kind.Extension, Risk: risk}, true, nil
}

// ScanVolume inspects the regular files at most depth directories below
// root, stopping after limit files. Unreadable files are skipped.
func ScanVolume(root string, depth, limit int) ([]Finding, error) {
	var findings []Finding
	seen := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.Count(strings.TrimPrefix(path, root), string(filepath.Separator)) > depth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if seen >= limit {
			return filepath.SkipAll
		}
		seen++
		if finding, ok, err := InspectFile(path); err == nil && ok {
			findings = append(findings, finding)
		}
		return nil
	})
	if err != nil {
		return findings, fmt.Errorf("scan %s: %w", root, err)
	}
	return findings, nil
}

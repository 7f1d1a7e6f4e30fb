package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	elfHeader = append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, make([]byte, 56)...)
	zipHeader = []byte{'P', 'K', 0x03, 0x04, 0x14, 0, 0, 0, 0, 0}
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestInspectFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		file       string
		content    []byte
		wantFound  bool
		wantActual string
		wantRisk   Risk
	}{
		{name: "matching", file: "photo.png", content: pngHeader},
		{name: "image disguised as document", file: "report.pdf", content: pngHeader, wantFound: true, wantActual: "png", wantRisk: RiskMedium},
		{name: "executable disguised as image", file: "holiday.jpg", content: elfHeader, wantFound: true, wantActual: "elf", wantRisk: RiskHigh},
		{name: "compatible container", file: "notes.docx", content: zipHeader},
		{name: "upper case extension", file: "PHOTO.PNG", content: pngHeader},
		{name: "no extension", file: "README", content: elfHeader},
		{name: "unknown content", file: "notes.txt", content: []byte("plain text")},
		{name: "empty", file: "empty.png", content: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			f, found, err := InspectFile(path)
			require.NoError(t, err)
			require.Equal(t, tt.wantFound, found)
			if !found {
				return
			}
			assert.Equal(t, path, f.Path)
			assert.Equal(t, tt.wantActual, f.Actual)
			assert.Equal(t, tt.wantRisk, f.Risk)
		})
	}

	_, _, err := InspectFile(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestScanVolume(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.png", pngHeader)
	bad := writeFile(t, root, "invoice.pdf", elfHeader)
	nested := writeFile(t, root, "a/b.txt.png", elfHeader)
	writeFile(t, root, "a/b/c/deep.jpg", elfHeader)

	findings, err := ScanVolume(root, 1, 100)
	require.NoError(t, err)
	var paths []string
	for _, f := range findings {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{bad, nested}, paths)

	findings, err = ScanVolume(root, 0, 100)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, bad, findings[0].Path)
	assert.Contains(t, findings[0].String(), "content is elf")

	_, err = ScanVolume(filepath.Join(root, "missing"), 1, 100)
	assert.Error(t, err)
}

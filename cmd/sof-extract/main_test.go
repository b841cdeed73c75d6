package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeDocx(t *testing.T, path string, lines ...string) {
	t.Helper()
	var body strings.Builder
	for _, l := range lines {
		body.WriteString(`<w:p><w:r><w:t>` + l + `</w:t></w:r></w:p>`)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestExtractFromStdin(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_URL", "")

	out, _, err := run(t, "21/08/2025\nAnchorage 07:30\nBerthing 09:15 10:00\n", "extract", "-", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "event,start,end,source\n"+
		"Anchorage,2025-08-21 07:30,,Anchorage 07:30\n"+
		"Berthing,2025-08-21 09:15,2025-08-21 10:00,Berthing 09:15 10:00\n", out)

	_, _, err = run(t, "", "extract", "-", "--format", "yaml")
	assert.Error(t, err)
}

func TestExtractFileAndBatch(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_URL", "")

	in := filepath.Join(dir, "in")
	require.NoError(t, os.Mkdir(in, 0o755))
	writeDocx(t, filepath.Join(in, "voyage.docx"), "Loading 14:00 16:30")
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.docx"), []byte("nope"), 0o600))

	target := filepath.Join(dir, "voyage.json")
	_, _, err := run(t, "", "extract", filepath.Join(in, "voyage.docx"), "--format", "json", "--out", target)
	require.NoError(t, err)
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"count": 1`)

	outDir := filepath.Join(dir, "out")
	out, errOut, err := run(t, "", "batch", in, "--format", "csv", "--out-dir", outDir)
	require.Error(t, err)
	assert.Contains(t, out, "matched=2 succeeded=1 failed=1")
	assert.Contains(t, errOut, "broken.docx")

	csvOut, err := os.ReadFile(filepath.Join(outDir, "voyage.events.csv"))
	require.NoError(t, err)
	assert.Equal(t, "event,start,end,source\nLoading,14:00,16:30,Loading 14:00 16:30\n", string(csvOut))
}

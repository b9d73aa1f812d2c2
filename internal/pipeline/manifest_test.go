package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- path: docs/Demo NDA AL.docx
  contractType: non_disclosure_agreement
  perspective: disclosing-party
  solution: {id: nda, key: nda, title: Non-Disclosure Agreement}
- path: /abs/dpa.pdf
  contractType: data_processing_agreement
  perspective: data-controller
  reviewType: risk_only
  model: openai-gpt-5-mini
`), 0600))

	jobs, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, filepath.Join(dir, "docs", "Demo NDA AL.docx"), jobs[0].Path)
	assert.Equal(t, analysis.Solution{ID: "nda", Key: "nda", Title: "Non-Disclosure Agreement"}, jobs[0].Solution)
	assert.Equal(t, "disclosing-party", jobs[0].Perspective)

	assert.Equal(t, "/abs/dpa.pdf", jobs[1].Path)
	assert.Equal(t, "risk_only", jobs[1].ReviewType)
	assert.Equal(t, "openai-gpt-5-mini", jobs[1].Model)
	assert.True(t, jobs[1].Solution.IsZero())
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(content string) string {
		path := filepath.Join(dir, "m.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		return path
	}

	_, err := LoadManifest(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)

	_, err = LoadManifest(write("[]"))
	assert.ErrorContains(t, err, "no jobs")

	_, err = LoadManifest(write("- contractType: nda\n"))
	assert.ErrorContains(t, err, "path is required")

	_, err = LoadManifest(write("- path: a.pdf\n"))
	assert.ErrorContains(t, err, "contractType is required")

	_, err = LoadManifest(write("path: [oops"))
	assert.Error(t, err)
}

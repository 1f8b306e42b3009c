package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
source:
  url: %s
embedding:
  provider: mock
  dimension: 4
logging:
  level: error
`

func setupProject(t *testing.T) (dir, archivePath string) {
	t.Helper()
	dir = t.TempDir()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("TCGA_Reports.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("patient_filename,text\n" +
		"TCGA-BP-5195.25c0,Diagnosis: clear cell renal cell carcinoma;;\n" +
		"TCGA-A2-A0CM.7d1a,Invasive ductal carcinoma of the breast;;\n" +
		"TCGA-05-4244.3f9e,Lung adenocarcinoma;;\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archivePath = filepath.Join(dir, "TCGA_Reports.csv.zip")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0644))

	// the cache fingerprint covers the source, so commands without --source must agree
	cfgYAML := fmt.Sprintf(testConfig, archivePath)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pathembed.yaml"), []byte(cfgYAML), 0644))
	return dir, archivePath
}

func resetFlags() {
	cfgFile, rootDir, verbose = "", "", false
	embedSource, embedMember, embedOut, embedFormat = "", "", "", ""
	embedChunkSize, embedConcurrency = 0, 0
	embedNoCache, embedNoProgress = false, false
	inspectSource, inspectMember, inspectJSON, inspectLimit = "", "", false, 10
	cacheDumpOut = "-"
	correlateEmbeddings, correlateMember, correlateLabels, correlateMetric = "", "", "", ""
	correlateColumn = -1
	correlateLabeled, correlateJSON = false, false
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(t, err, "stderr: %s", errOut.String())
	return out.String()
}

func TestEmbedThenCache(t *testing.T) {
	dir, archivePath := setupProject(t)
	outPath := filepath.Join(dir, "vectors.tsv")

	out := runCLI(t, "embed", "--dir", dir, "--source", archivePath, "--out", outPath, "--no-progress")
	assert.Contains(t, out, "3 rows written")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TCGA-BP-5195.25c0\t"))
	assert.Len(t, strings.Split(lines[2], "\t"), 5)

	out = runCLI(t, "cache", "stats", "--dir", dir)
	assert.Contains(t, out, "Entries:     3")
	assert.Contains(t, out, "current")

	out = runCLI(t, "cache", "dump", "--dir", dir)
	dump := strings.Split(out, "\n")
	require.Len(t, dump, 3)
	assert.True(t, strings.HasPrefix(dump[0], "0\t"))
	assert.True(t, strings.HasPrefix(dump[2], "2\t"))

	// second run is served from the cache
	out = runCLI(t, "embed", "--dir", dir, "--source", archivePath, "--out", outPath, "--no-progress")
	assert.Contains(t, out, "Cache hits:  3")

	out = runCLI(t, "cache", "clear", "--dir", dir)
	assert.Contains(t, out, "Removed 3")
}

func TestEmbedToStdoutJSON(t *testing.T) {
	dir, archivePath := setupProject(t)

	out := runCLI(t, "embed", "--dir", dir, "--source", archivePath, "--out", "-", "--format", "json", "--no-cache", "--no-progress")

	var rows []struct {
		Identifier string    `json:"identifier"`
		Embedding  []float64 `json:"embedding"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "TCGA-05-4244.3f9e", rows[2].Identifier)
	assert.Len(t, rows[2].Embedding, 4)

	_, err := os.Stat(filepath.Join(dir, ".pathembed"))
	assert.True(t, os.IsNotExist(err), "--no-cache must not create a cache")
}

func TestInspectJSON(t *testing.T) {
	dir, archivePath := setupProject(t)

	out := runCLI(t, "inspect", "--dir", dir, "--source", archivePath, "--json")

	var report inspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"TCGA_Reports.csv"}, report.Members)
	assert.Equal(t, 3, report.Records)
	require.NotNil(t, report.First)
	assert.Equal(t, "Diagnosis: clear cell renal cell carcinoma", report.First.Text)
}

func TestCorrelate(t *testing.T) {
	dir, _ := setupProject(t)

	embeddings := filepath.Join(dir, "embeddings.tsv")
	require.NoError(t, os.WriteFile(embeddings, []byte("1\t2\t3\n2\t4\t6\n3\t2\t1\n3\t2\t0\n"), 0644))
	labels := filepath.Join(dir, "cancer_type_meta.tsv")
	require.NoError(t, os.WriteFile(labels, []byte("id\ttype\na\tKIRC\nb\tKIRC\nc\tBRCA\nd\tBRCA\n"), 0644))

	out := runCLI(t, "correlate", "--dir", dir, "--embeddings", embeddings, "--labels", labels, "--json")

	var result correlationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "pearson", result.Metric)
	assert.Equal(t, []string{"KIRC", "BRCA"}, result.Labels)
	assert.Equal(t, []int{2, 2}, result.Sizes)
	require.NotNil(t, result.Matrix[0][1])
	assert.Less(t, *result.Matrix[0][1], 0.0)

	out = runCLI(t, "correlate", "--dir", dir, "--embeddings", embeddings, "--labels", labels)
	assert.Contains(t, out, "KIRC (2)")
}

func TestCorrelateZippedEmbeddings(t *testing.T) {
	dir, _ := setupProject(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"embeddings.tsv":     "1\t2\t3\n2\t4\t6\n3\t2\t1\n3\t2\t0\n",
		"old_embeddings.tsv": "1\t1\n",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	embeddings := filepath.Join(dir, "embeddings.tsv.zip")
	require.NoError(t, os.WriteFile(embeddings, buf.Bytes(), 0644))

	labels := filepath.Join(dir, "cancer_type_meta.tsv")
	require.NoError(t, os.WriteFile(labels, []byte("id\ttype\na\tKIRC\nb\tKIRC\nc\tBRCA\nd\tBRCA\n"), 0644))

	out := runCLI(t, "correlate", "--dir", dir, "--embeddings", embeddings, "--labels", labels, "--json")

	var result correlationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []int{2, 2}, result.Sizes)
}

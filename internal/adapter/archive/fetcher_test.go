package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathembed/internal/domain"
	"pathembed/internal/logging"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher() *Fetcher {
	return NewFetcher(5*time.Second, 0, logging.Discard())
}

func TestFetchMember_CSV(t *testing.T) {
	data := buildZip(t, map[string]string{
		"TCGA_Reports.csv": "patient_filename,text\nA,hello;;\n",
		"README.md":        "docs",
	})
	srv := serve(t, http.StatusOK, data)

	text, err := newTestFetcher().FetchMember(context.Background(), srv.URL+"/TCGA_Reports.csv.zip", Glob("*.csv"))
	require.NoError(t, err)
	assert.Equal(t, "patient_filename,text\nA,hello;;\n", text)
}

func TestFetchMember_NoMatch(t *testing.T) {
	data := buildZip(t, map[string]string{"notes.txt": "x"})
	srv := serve(t, http.StatusOK, data)

	_, err := newTestFetcher().FetchMember(context.Background(), srv.URL, Glob("*.csv"))
	var archErr *domain.ArchiveError
	require.True(t, errors.As(err, &archErr), "got %v", err)
	assert.Equal(t, []string{"notes.txt"}, archErr.Members)
}

func TestFetchMember_Ambiguous(t *testing.T) {
	data := buildZip(t, map[string]string{"a.csv": "x", "b.csv": "y"})
	srv := serve(t, http.StatusOK, data)

	_, err := newTestFetcher().FetchMember(context.Background(), srv.URL, Suffix(".csv"))
	var archErr *domain.ArchiveError
	require.True(t, errors.As(err, &archErr))
	assert.Contains(t, archErr.Reason, "more than one")
	assert.Len(t, archErr.Members, 2)
}

func TestFetchMember_HTTPStatus(t *testing.T) {
	srv := serve(t, http.StatusNotFound, []byte("missing"))

	_, err := newTestFetcher().FetchMember(context.Background(), srv.URL, Glob("*.csv"))
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Equal(t, "missing", te.Body)
}

func TestFetchMember_NotZip(t *testing.T) {
	srv := serve(t, http.StatusOK, []byte("plain text"))

	_, err := newTestFetcher().FetchMember(context.Background(), srv.URL, Glob("*.csv"))
	var archErr *domain.ArchiveError
	assert.True(t, errors.As(err, &archErr))
}

func TestFetchMember_LocalFileAndMacResourceFork(t *testing.T) {
	data := buildZip(t, map[string]string{
		"data/embeddings.tsv":            "1\t2\n",
		"__MACOSX/data/._embeddings.tsv": "junk",
	})
	path := filepath.Join(t.TempDir(), "embeddings.tsv.zip")
	require.NoError(t, os.WriteFile(path, data, 0644))

	text, err := newTestFetcher().FetchMember(context.Background(), path, Exact("embeddings.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "1\t2\n", text)
}

func TestFetchMember_BOMStripped(t *testing.T) {
	data := buildZip(t, map[string]string{"r.csv": "\ufeffid,text\n"})
	name, text, err := ExtractMember(data, Glob("*.csv"))
	require.NoError(t, err)
	assert.Equal(t, "r.csv", name)
	assert.Equal(t, "id,text\n", text)
}

func TestFetch_MaxBytes(t *testing.T) {
	srv := serve(t, http.StatusOK, bytes.Repeat([]byte("x"), 64))
	f := NewFetcher(time.Second, 16, logging.Discard())

	_, err := f.Fetch(context.Background(), srv.URL)
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Error(), "exceeds")
}

func TestFetch_MaxBytesLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.zip")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 17), 0644))

	_, err := NewFetcher(time.Second, 16, logging.Discard()).Fetch(context.Background(), path)
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Error(), "exceeds")

	data, err := NewFetcher(time.Second, 17, logging.Discard()).Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, data, 17)
}

func TestFetch_MissingLocalFile(t *testing.T) {
	_, err := newTestFetcher().Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.zip"))
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMembers(t *testing.T) {
	data := buildZip(t, map[string]string{"a.csv": "", "dir/b.tsv": ""})
	names, err := Members(data)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.csv", "dir/b.tsv"}, names)
}

func TestGlob(t *testing.T) {
	match := Glob("*.csv")
	assert.True(t, match("TCGA_Reports.csv"))
	assert.True(t, match("nested/TCGA_Reports.csv"))
	assert.False(t, match("TCGA_Reports.csv.bak"))

	assert.True(t, Glob("**/embeddings.tsv")("a/b/embeddings.tsv"))
	assert.True(t, ValidGlob("*.csv"))
	assert.False(t, ValidGlob("[a-"))
}

func TestMemberPredicates(t *testing.T) {
	assert.True(t, Exact("embeddings.tsv")("data/embeddings.tsv"))
	assert.False(t, Exact("embeddings.tsv")("old_embeddings.tsv"))
	assert.True(t, Suffix(".tsv")("cancer_type_meta.tsv"))
	assert.False(t, Suffix(".tsv")("cancer_type_meta.tsv.bak"))

	assert.True(t, Member("embeddings.tsv")("embeddings.tsv"))
	assert.False(t, Member("embeddings.tsv")("old_embeddings.tsv"))
	assert.True(t, Member("*.tsv")("old_embeddings.tsv"))
}

func TestFetchMember_ExactAmongSimilarNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.tsv.zip")
	require.NoError(t, os.WriteFile(path, buildZip(t, map[string]string{
		"embeddings.tsv":     "1\t2",
		"old_embeddings.tsv": "9\t9",
	}), 0644))

	text, err := newTestFetcher().FetchMember(context.Background(), path, Member("embeddings.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "1\t2", text)
}

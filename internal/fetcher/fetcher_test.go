package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/chemsafe-cli/internal/resilience"
)

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	rc, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestOpen_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"x":1}]`))
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.URL+"/dataset.json", Options{})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `[{"x":1}]`, string(data))
}

func TestOpen_HTTPNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL, Options{})
	assert.Error(t, err)
}

func TestOpen_MirrorBreakerTripsPerHost(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer healthy.Close()

	for i := 0; i < 5; i++ {
		_, err := Open(context.Background(), srv.URL+"/dataset.csv", Options{})
		require.Error(t, err)
	}

	// The failing mirror's circuit is now open: no further request
	// reaches it.
	_, err := Open(context.Background(), srv.URL+"/dataset.csv", Options{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 5, hits)

	// A different host keeps its own closed breaker.
	rc, err := Open(context.Background(), healthy.URL+"/dataset.csv", Options{})
	require.NoError(t, err)
	rc.Close()
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "gopher://example.com/x", Options{})
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("chem_a,chem_b,type\n a1,b1,Incompatible\n"), true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"a1", "b1", "Incompatible"}, rows[0])
}

func TestReadXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("pairs")
	require.NoError(t, err)

	header := sheet.AddRow()
	header.AddCell().SetString("chem_a")
	header.AddCell().SetString("chem_b")
	row := sheet.AddRow()
	row.AddCell().SetString("a1")
	row.AddCell().SetString("b1")

	path := filepath.Join(t.TempDir(), "pairs.xlsx")
	require.NoError(t, f.Save(path))

	src, err := os.Open(path)
	require.NoError(t, err)
	defer src.Close()

	rows, err := ReadXLSX(src, "pairs", true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"a1", "b1"}, rows[0])
}

func TestDecodeJSON(t *testing.T) {
	var out []map[string]string
	err := DecodeJSON(strings.NewReader(`[{"chem_a":"x"}]`), &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0]["chem_a"])
}

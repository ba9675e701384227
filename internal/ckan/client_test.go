package ckan_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterwatch/meterwatch/internal/ckan"
	"github.com/meterwatch/meterwatch/pkg/errors"
)

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"success": true, "result": %s}`, raw)
}

func TestPackageShow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/package_show", r.URL.Path)
		assert.Equal(t, "planonmetadata", r.URL.Query().Get("id"))
		writeResult(t, w, map[string]any{
			"id":   "abc-123",
			"name": "planonmetadata",
			"resources": []map[string]string{
				{"id": "r1", "name": "Planon metadata - Meters Sensors"},
				{"id": "r2", "name": "Planon metadata - Loggers Controllers"},
			},
		})
	}))
	defer srv.Close()

	c := ckan.New(srv.URL)
	pkg, err := c.Package(context.Background(), "planonmetadata")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", pkg.ID)
	require.Len(t, pkg.Resources, 2)
	assert.Equal(t, "r2", pkg.Resources[1].ID)
}

func TestResolveResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, map[string]any{
			"id": "abc",
			"resources": []map[string]string{
				{"id": "r1", "name": "bms-jan-2017"},
			},
		})
	}))
	defer srv.Close()

	c := ckan.New(srv.URL)

	res, err := c.ResolveResource(context.Background(), "bms", "bms-jan-2017")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ID)

	_, err = c.ResolveResource(context.Background(), "bms", "bms-feb-2017")
	assert.True(t, errors.IsNotFound(err))
}

func TestSearchSQLStringifiesCells(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/datastore_search_sql", r.URL.Path)
		writeResult(t, w, map[string]any{
			"records": []map[string]any{
				{"device_id": "D1", "param_value": 10.25, "count": 50000, "note": nil},
			},
		})
	}))
	defer srv.Close()

	c := ckan.New(srv.URL)
	rows, err := c.SearchSQL(context.Background(), `SELECT 1`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "D1", rows[0]["device_id"])
	assert.Equal(t, "10.25", rows[0]["param_value"])
	assert.Equal(t, "50000", rows[0]["count"], "integers must not pick up float formatting")
	assert.Equal(t, "", rows[0]["note"])
}

func TestSearchSQLAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"success": false, "error": {"__type": "ValidationError", "message": "invalid sql"}}`)
	}))
	defer srv.Close()

	c := ckan.New(srv.URL)
	_, err := c.SearchSQL(context.Background(), `SELEC`)
	require.Error(t, err)

	var catErr *errors.CatalogError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, http.StatusConflict, catErr.StatusCode)
}

func TestResourceRowsPages(t *testing.T) {
	const chunk = 2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/3/action/package_show" {
			writeResult(t, w, map[string]any{
				"id":        "abc",
				"resources": []map[string]string{{"id": "r1", "name": "ems-raw"}},
			})
			return
		}

		sql := r.URL.Query().Get("sql")
		offset := offsetOf(t, sql)
		var records []map[string]any
		// Five rows total: two full pages and a final short one.
		for i := offset; i < offset+chunk && i < 5; i++ {
			records = append(records, map[string]any{"device_id": "D" + strconv.Itoa(i)})
		}
		writeResult(t, w, map[string]any{"records": records})
	}))
	defer srv.Close()

	c := ckan.New(srv.URL, ckan.WithChunkSize(chunk))
	rows, err := c.ResourceRows(context.Background(), "ems", "ems-raw")
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, "D4", rows[4]["device_id"])
}

func offsetOf(t *testing.T, sql string) int {
	t.Helper()
	idx := strings.LastIndex(sql, "OFFSET ")
	require.GreaterOrEqual(t, idx, 0, "query %q has no OFFSET clause", sql)
	n, err := strconv.Atoi(strings.TrimSpace(sql[idx+len("OFFSET "):]))
	require.NoError(t, err)
	return n
}

func TestDeviceRowsQuotesDevice(t *testing.T) {
	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query().Get("sql")
		writeResult(t, w, map[string]any{"records": []map[string]any{}})
	}))
	defer srv.Close()

	c := ckan.New(srv.URL)
	_, err := c.DeviceRows(context.Background(), "res-1", "o'brien")
	require.NoError(t, err)
	assert.Contains(t, captured, `"device_id" = 'o''brien'`)
	assert.Contains(t, captured, `FROM "res-1"`)
}

func TestAuthenticatorsApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "key-123", r.Header.Get(ckan.APIKeyHeader))
		writeResult(t, w, map[string]any{"id": "abc"})
	}))
	defer srv.Close()

	c := ckan.New(srv.URL,
		ckan.WithAuthenticator(&ckan.BasicAuth{Username: "svc", Password: "secret"}),
		ckan.WithAuthenticator(ckan.APIKeyAuth("key-123")),
	)
	_, err := c.Package(context.Background(), "anything")
	require.NoError(t, err)
}

func TestQuoteHelpers(t *testing.T) {
	assert.Equal(t, `"plain"`, ckan.QuoteIdentifier("plain"))
	assert.Equal(t, `"a""b"`, ckan.QuoteIdentifier(`a"b`))
	assert.Equal(t, `'plain'`, ckan.QuoteLiteral("plain"))
	assert.Equal(t, `'a''b'`, ckan.QuoteLiteral("a'b"))
}

package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/httpapi"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/store"
)

type datasetLoader struct{ ds []*sdata.Dataset }

func (l datasetLoader) Load() ([]*sdata.Dataset, error) { return l.ds, nil }

type profileLoader struct{ ps []*scopes.Profile }

func (l profileLoader) Load() ([]*scopes.Profile, error) { return l.ps, nil }

func newTestServer(t *testing.T) (*httpapi.Server, *store.DB) {
	t.Helper()

	containers := &sdata.Table{
		ID:         "containers",
		Dataset:    "afvalwegingen",
		Identifier: []string{"id"},
		Fields: []*sdata.Field{
			{ID: "id", ColumnName: "id", Type: sdata.TypeInteger, IsIdentifierPart: true},
			{ID: "serienummer", ColumnName: "serienummer", Type: sdata.TypeString},
			{ID: "datumCreatie", ColumnName: "datumCreatie", Type: sdata.TypeDateTime},
		},
	}
	ds := &sdata.Dataset{ID: "afvalwegingen", Status: sdata.StatusBeschikbaar, Tables: []*sdata.Table{containers}}

	reg, err := sdata.NewRegistry(datasetLoader{ds: []*sdata.Dataset{ds}})
	require.NoError(t, err)

	profiles, err := scopes.NewProfileStore(profileLoader{})
	require.NoError(t, err)

	// a single pooled connection keeps the in-memory database alive
	// across queries.
	db, err := store.Open(store.Config{DriverName: "sqlite", ConnString: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL.Exec(`CREATE TABLE "containers" ("id" INTEGER, "serienummer" TEXT, "datumCreatie" TEXT)`)
	require.NoError(t, err)
	_, err = db.SQL.Exec(`INSERT INTO "containers" VALUES (1, 'ABC123', '2020-01-02T03:04:05Z')`)
	require.NoError(t, err)

	prefetch := render.NewPrefetchCache(100, time.Minute)
	srv := httpapi.NewServer(reg, profiles, nil, db, prefetch, httpapi.Config{
		BaseURL:         "https://api.example.test/v1",
		DefaultPageSize: 20,
	})
	return srv, db
}

func TestListTableReturnsHALEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router(httpapi.CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/afvalwegingen/containers/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/hal+json")
	assert.Equal(t, "1", rec.Header().Get("X-Pagination-Page"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	embedded := body["_embedded"].(map[string]any)
	rows := embedded["containers"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "ABC123", row["serienummer"])
	links := row["_links"].(map[string]any)
	self := links["self"].(map[string]any)
	assert.Contains(t, self["href"], "/containers/1/")
}

func TestListTableFiltersRows(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router(httpapi.CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/afvalwegingen/containers/?serienummer=NOPE", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	embedded := body["_embedded"].(map[string]any)
	rows := embedded["containers"].([]any)
	assert.Empty(t, rows)
}

func TestInvalidDateTimeFilterIsProblemJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router(httpapi.CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/afvalwegingen/containers/?datumCreatie=2020-01-fubar", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	params := body["invalid-params"].([]any)
	first := params[0].(map[string]any)
	assert.Equal(t, "datumCreatie", first["name"])
	assert.Equal(t, "Enter a valid ISO date-time, or single date.", first["reason"])
}

func TestUnknownDatasetIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router(httpapi.CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/nope/containers/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "urn:apiexception:not_found", body["type"])
}

func TestGetRowDetail(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router(httpapi.CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/afvalwegingen/containers/1/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ABC123", body["serienummer"])
}

func TestCSVFormatStreamsWithoutPaginationHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router(httpapi.CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/afvalwegingen/containers/?_format=csv", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Empty(t, rec.Header().Get("X-Pagination-Page"))
	assert.Contains(t, rec.Body.String(), "Id,Serienummer")
	assert.Contains(t, rec.Body.String(), "ABC123")
}

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipd/npd-tracker/api"
	"github.com/sipd/npd-tracker/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store, log)))
	t.Cleanup(srv.Close)
	return srv
}

type identity struct {
	userID string
	role   string
	org    string
}

var (
	asPPTK        = identity{"user-pptk", "pptk", "dinas-a"}
	asVerifikator = identity{"user-verif", "verifikator", "dinas-a"}
	asBendahara   = identity{"user-bend", "bendahara", "dinas-a"}
)

func do(t *testing.T, srv *httptest.Server, id identity, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", id.userID)
	req.Header.Set("X-User-Role", id.role)
	req.Header.Set("X-Organization-ID", id.org)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func doList(t *testing.T, srv *httptest.Server, id identity, path string) (*http.Response, []map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", id.userID)
	req.Header.Set("X-User-Role", id.role)
	req.Header.Set("X-Organization-ID", id.org)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded []map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func importBudget(t *testing.T, srv *httptest.Server) (subkegiatanID, akunID string) {
	t.Helper()

	resp, _ := do(t, srv, asBendahara, http.MethodPost, "/api/rka/import", map[string]any{
		"tahun": 2026,
		"rows": []map[string]any{{
			"programKode":     "1.01",
			"programNama":     "Program Pendidikan",
			"kegiatanKode":    "1.01.01",
			"kegiatanNama":    "Kegiatan Sekolah",
			"subkegiatanKode": "1.01.01.001",
			"subkegiatanNama": "Subkegiatan Gedung",
			"akunKode":        "5.1.02.01",
			"akunNama":        "Belanja Bahan",
			"paguTahun":       10_000_000,
		}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listResp, accounts := doList(t, srv, asBendahara, "/api/accounts?tahun=2026")
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	for _, a := range accounts {
		switch a["kind"] {
		case "subkegiatan":
			subkegiatanID = a["id"].(string)
		case "akun":
			akunID = a["id"].(string)
		}
	}
	require.NotEmpty(t, subkegiatanID)
	require.NotEmpty(t, akunID)
	return subkegiatanID, akunID
}

// =============================================================================
// ACTOR RESOLUTION
// =============================================================================

func TestAPI_MissingIdentityHeaders_Unauthorized(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/npd?tahun=2026")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_UnknownRole_Unauthorized(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doList(t, srv, identity{"u", "superuser", "dinas-a"}, "/api/npd?tahun=2026")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// =============================================================================
// LIFECYCLE OVER THE WIRE
// =============================================================================

func TestAPI_FullLifecycle(t *testing.T) {
	// Import budget, then drive one NPD from draft to final and record an
	// SP2D against it, all through the HTTP surface.

	srv := newTestServer(t)
	subID, akunID := importBudget(t, srv)

	resp, doc := do(t, srv, asPPTK, http.MethodPost, "/api/npd", map[string]any{
		"subkegiatanId": subID,
		"jenis":         "UP",
		"tahun":         2026,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	npdID := doc["id"].(string)
	assert.Equal(t, "NPD-2026-001", doc["documentNumber"])

	resp, _ = do(t, srv, asPPTK, http.MethodPost, "/api/npd/"+npdID+"/lines", map[string]any{
		"accountId": akunID,
		"uraian":    "ATK",
		"jumlah":    4_000_000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, doc = do(t, srv, asPPTK, http.MethodPost, "/api/npd/"+npdID+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "diajukan", doc["status"])

	// The submitter cannot verify their own document's stage.
	resp, _ = do(t, srv, asPPTK, http.MethodPost, "/api/npd/"+npdID+"/verify", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, doc = do(t, srv, asVerifikator, http.MethodPost, "/api/npd/"+npdID+"/verify",
		map[string]any{"notes": "lengkap"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "diverifikasi", doc["status"])

	resp, doc = do(t, srv, asBendahara, http.MethodPost, "/api/npd/"+npdID+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "final", doc["status"])

	resp, sp2d := do(t, srv, asBendahara, http.MethodPost, "/api/sp2d", map[string]any{
		"npdId":     npdID,
		"noSp2d":    "SP2D-001",
		"tglSp2d":   "2026-03-15",
		"nilaiCair": 2_500_000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(2_500_000), sp2d["nilaiCair"])

	// The account now shows the committed reservation and the disbursement.
	resp, acct := do(t, srv, asBendahara, http.MethodGet, "/api/accounts/"+akunID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4_000_000), acct["committed"])
	assert.Equal(t, float64(2_500_000), acct["disbursed"])
	assert.Equal(t, float64(6_000_000), acct["sisaPagu"])
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_BudgetExceeded_Unprocessable(t *testing.T) {
	srv := newTestServer(t)
	subID, akunID := importBudget(t, srv)

	resp, doc := do(t, srv, asPPTK, http.MethodPost, "/api/npd", map[string]any{
		"subkegiatanId": subID, "jenis": "UP", "tahun": 2026,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, srv, asPPTK, http.MethodPost,
		fmt.Sprintf("/api/npd/%s/lines", doc["id"]), map[string]any{
			"accountId": akunID,
			"jumlah":    10_000_001,
		})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestAPI_MissingDocument_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, asPPTK, http.MethodPost, "/api/npd/no-such/submit", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CrossTenantDocument_NotFound(t *testing.T) {
	srv := newTestServer(t)
	subID, _ := importBudget(t, srv)

	resp, doc := do(t, srv, asPPTK, http.MethodPost, "/api/npd", map[string]any{
		"subkegiatanId": subID, "jenis": "UP", "tahun": 2026,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	otherOrg := identity{"user-x", "admin", "dinas-b"}
	resp, _ = do(t, srv, otherOrg, http.MethodGet, "/api/npd/"+doc["id"].(string), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_InvalidBody_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, asPPTK, http.MethodPost, "/api/npd", map[string]any{
		"jenis": "XX", "tahun": 2026,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// REPORTING
// =============================================================================

func TestAPI_Dashboard_SummarizesLeaves(t *testing.T) {
	srv := newTestServer(t)
	subID, akunID := importBudget(t, srv)

	resp, doc := do(t, srv, asPPTK, http.MethodPost, "/api/npd", map[string]any{
		"subkegiatanId": subID, "jenis": "UP", "tahun": 2026,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, srv, asPPTK, http.MethodPost,
		fmt.Sprintf("/api/npd/%s/lines", doc["id"]), map[string]any{
			"accountId": akunID, "jumlah": 3_000_000,
		})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, dash := do(t, srv, asBendahara, http.MethodGet, "/api/dashboard?tahun=2026", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10_000_000), dash["totalPagu"])
	assert.Equal(t, float64(3_000_000), dash["totalCommitted"])
	assert.Equal(t, float64(7_000_000), dash["totalSisaPagu"])
}

func TestAPI_Audit_RequiresCapability(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doList(t, srv, asPPTK, "/api/audit")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doList(t, srv, asVerifikator, "/api/audit")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

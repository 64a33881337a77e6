package api

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dibbs-platform/ecr-viewer/internal/ecrstore"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/orchestration"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/errors"
)

type fakeRepo struct {
	rows       []ecrstore.EcrDisplay
	total      int
	conditions []string
	bundles    map[string]fhir.Bundle

	lastParams    ecrstore.ListParams
	savedBundleID string
	savedCore     *ecrstore.CoreMetadata
	savedExtended *ecrstore.ExtendedMetadata

	listErr       error
	conditionsErr error
	saveErr       error
}

func (f *fakeRepo) ListEcrData(ctx context.Context, params ecrstore.ListParams) ([]ecrstore.EcrDisplay, error) {
	f.lastParams = params
	return f.rows, f.listErr
}

func (f *fakeRepo) TotalEcrCount(ctx context.Context, params ecrstore.ListParams) (int, error) {
	return f.total, f.listErr
}

func (f *fakeRepo) Conditions(ctx context.Context) ([]string, error) {
	return f.conditions, f.conditionsErr
}

func (f *fakeRepo) FindBundle(ctx context.Context, ecrID string) (fhir.Bundle, error) {
	if b, ok := f.bundles[ecrID]; ok {
		return b, nil
	}
	return nil, errors.NotFound("eCR ID not found")
}

func (f *fakeRepo) SaveBundle(ctx context.Context, ecrID string, bundle fhir.Bundle) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedBundleID = ecrID
	return nil
}

func (f *fakeRepo) SaveWithCoreMetadata(ctx context.Context, ecrID string, meta ecrstore.CoreMetadata) error {
	f.savedCore = &meta
	return nil
}

func (f *fakeRepo) SaveWithExtendedMetadata(ctx context.Context, ecrID string, meta ecrstore.ExtendedMetadata) error {
	f.savedExtended = &meta
	return nil
}

func newTestHandler(repo ecrstore.Repository, orch *orchestration.Client) *Handler {
	return NewHandler(repo, orch, Config{
		Schema:   config.SchemaCore,
		Env:      "development",
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	})
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func TestListEcrs(t *testing.T) {
	repo := &fakeRepo{
		rows: []ecrstore.EcrDisplay{
			{EcrID: "ecr-1", PatientFirstName: "Anne", PatientLastName: "Doe"},
		},
		total: 41,
	}
	h := newTestHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/ecrs?itemsPerPage=10&page=3&sortColumn=patient&sortDirection=ASC&search=doe&condition=Measles&condition=Mumps", nil)
	resp := httptest.NewRecorder()
	h.ListEcrs(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	body := decodeBody(t, resp)
	if body["totalCount"].(float64) != 41 {
		t.Errorf("Expected totalCount 41, got %v", body["totalCount"])
	}
	if data := body["data"].([]any); len(data) != 1 {
		t.Errorf("Expected 1 row, got %d", len(data))
	}

	p := repo.lastParams
	if p.StartIndex != 20 || p.ItemsPerPage != 10 {
		t.Errorf("Expected offset 20 size 10, got offset %d size %d", p.StartIndex, p.ItemsPerPage)
	}
	if p.SortColumn != "patient" || p.SortDirection != "ASC" {
		t.Errorf("Expected patient ASC sort, got %s %s", p.SortColumn, p.SortDirection)
	}
	if p.Search != "doe" {
		t.Errorf("Expected search doe, got %q", p.Search)
	}
	if len(p.Conditions) != 2 || p.Conditions[0] != "Measles" {
		t.Errorf("Expected condition filter [Measles Mumps], got %v", p.Conditions)
	}
}

func TestListEcrsDefaults(t *testing.T) {
	repo := &fakeRepo{}
	h := newTestHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/ecrs?page=-2&itemsPerPage=junk", nil)
	resp := httptest.NewRecorder()
	h.ListEcrs(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	p := repo.lastParams
	if p.StartIndex != 0 || p.ItemsPerPage != defaultItemsPerPage {
		t.Errorf("Expected first page defaults, got offset %d size %d", p.StartIndex, p.ItemsPerPage)
	}
	if p.Conditions != nil {
		t.Errorf("Expected no condition filter, got %v", p.Conditions)
	}
	if p.Period.Start.IsZero() || p.Period.End.IsZero() {
		t.Error("Expected a default date range to be applied")
	}

	body := decodeBody(t, resp)
	if data, ok := body["data"].([]any); !ok || data == nil {
		t.Errorf("Expected empty data array, got %v", body["data"])
	}
}

func TestGetConditions(t *testing.T) {
	t.Run("returns vocabulary", func(t *testing.T) {
		h := newTestHandler(&fakeRepo{conditions: []string{"COVID-19", "Measles"}}, nil)

		resp := httptest.NewRecorder()
		h.GetConditions(resp, httptest.NewRequest(http.MethodGet, "/conditions", nil))

		if resp.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.Code)
		}
		var conditions []string
		if err := json.Unmarshal(resp.Body.Bytes(), &conditions); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if len(conditions) != 2 || conditions[0] != "COVID-19" {
			t.Errorf("Expected [COVID-19 Measles], got %v", conditions)
		}
	})

	t.Run("query failure", func(t *testing.T) {
		h := newTestHandler(&fakeRepo{conditionsErr: errors.Internal(errors.ErrInternal)}, nil)

		resp := httptest.NewRecorder()
		h.GetConditions(resp, httptest.NewRequest(http.MethodGet, "/conditions", nil))

		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", resp.Code)
		}
		if body := decodeBody(t, resp); body["message"] != "Failed to get conditions." {
			t.Errorf("Expected conditions failure message, got %v", body["message"])
		}
	})

	t.Run("no backend configured", func(t *testing.T) {
		h := newTestHandler(nil, nil)

		resp := httptest.NewRecorder()
		h.GetConditions(resp, httptest.NewRequest(http.MethodGet, "/conditions", nil))

		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", resp.Code)
		}
		if body := decodeBody(t, resp); body["message"] != "Invalid metadata location." {
			t.Errorf("Expected invalid location message, got %v", body["message"])
		}
	})
}

const testBundleJSON = `{
	"resourceType": "Bundle",
	"entry": [
		{"fullUrl": "Composition/comp1", "resource": {"resourceType": "Composition", "id": "comp1"}},
		{"fullUrl": "Patient/pat1", "resource": {
			"resourceType": "Patient",
			"id": "pat1",
			"name": [{"use": "official", "family": "Doe", "given": ["Anne"]}],
			"gender": "female",
			"birthDate": "1970-07-15"
		}}
	]
}`

func testBundle(t *testing.T) fhir.Bundle {
	t.Helper()
	bundle, err := fhir.ParseBundle([]byte(testBundleJSON))
	if err != nil {
		t.Fatalf("Failed to parse test bundle: %v", err)
	}
	return bundle
}

func TestGetFhirData(t *testing.T) {
	repo := &fakeRepo{bundles: map[string]fhir.Bundle{"ecr-1": testBundle(t)}}
	h := newTestHandler(repo, nil)

	t.Run("returns bundle and path table", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.GetFhirData(resp, httptest.NewRequest(http.MethodGet, "/fhir-data?id=ecr-1", nil))

		if resp.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.Code)
		}
		body := decodeBody(t, resp)
		if _, ok := body["fhirBundle"].(map[string]any); !ok {
			t.Error("Expected fhirBundle in response")
		}
		if paths, ok := body["fhirPathMappings"].(map[string]any); !ok || len(paths) == 0 {
			t.Error("Expected fhirPathMappings in response")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.GetFhirData(resp, httptest.NewRequest(http.MethodGet, "/fhir-data?id=nope", nil))

		if resp.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", resp.Code)
		}
		if body := decodeBody(t, resp); body["message"] != "eCR ID not found" {
			t.Errorf("Expected not-found message, got %v", body["message"])
		}
	})

	t.Run("missing id", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.GetFhirData(resp, httptest.NewRequest(http.MethodGet, "/fhir-data", nil))

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", resp.Code)
		}
	})

	t.Run("backend without bundle storage", func(t *testing.T) {
		h := newTestHandler(nil, nil)

		resp := httptest.NewRecorder()
		h.GetFhirData(resp, httptest.NewRequest(http.MethodGet, "/fhir-data?id=ecr-1", nil))

		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", resp.Code)
		}
		if body := decodeBody(t, resp); body["message"] != "Invalid source" {
			t.Errorf("Expected invalid source message, got %v", body["message"])
		}
	})
}

func TestGetViewData(t *testing.T) {
	repo := &fakeRepo{bundles: map[string]fhir.Bundle{"ecr-1": testBundle(t)}}
	h := newTestHandler(repo, nil)

	resp := httptest.NewRecorder()
	h.GetViewData(resp, httptest.NewRequest(http.MethodGet, "/view-data?id=ecr-1", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var view ViewData
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode view data: %v", err)
	}

	if view.PatientName != "Anne Doe" {
		t.Errorf("Expected patient banner Anne Doe, got %q", view.PatientName)
	}

	wantTitles := []string{
		"Patient Info", "Encounter Info", "Clinical Info",
		"Lab Info", "eCR Metadata", "Unavailable Info",
	}
	if len(view.Sections) != len(wantTitles) {
		t.Fatalf("Expected %d sections, got %d", len(wantTitles), len(view.Sections))
	}
	for i, want := range wantTitles {
		if view.Sections[i].Title != want {
			t.Errorf("Expected section %d to be %s, got %s", i, want, view.Sections[i].Title)
		}
	}

	patientInfo := view.Sections[0]
	foundDOB := false
	for _, item := range patientInfo.Available {
		if item.Title == "DOB" && item.Value == "07/15/1970" {
			foundDOB = true
		}
	}
	if !foundDOB {
		t.Error("Expected Patient DOB 07/15/1970 among available patient info")
	}

	if len(view.Sections[5].Unavailable) == 0 {
		t.Error("Expected the sparse bundle to produce unavailable fields")
	}
}

func zipUploadRequest(t *testing.T, fieldName, filename, contentType string) *http.Request {
	t.Helper()
	var body strings.Builder
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("Failed to create form part: %v", err)
	}
	part.Write([]byte("zip bytes"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/process-zip", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestProcessZip(t *testing.T) {
	t.Run("rejects non-zip upload", func(t *testing.T) {
		h := newTestHandler(&fakeRepo{}, nil)

		resp := httptest.NewRecorder()
		h.ProcessZip(resp, zipUploadRequest(t, "upload_file", "ecr.pdf", "application/pdf"))

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", resp.Code)
		}
		body := decodeBody(t, resp)
		if body["message"] != "Validation error" {
			t.Errorf("Expected validation error message, got %v", body["message"])
		}
		fields := body["errors"].([]any)
		first := fields[0].(map[string]any)
		if first["message"] != "File must be a zip" {
			t.Errorf("Expected zip validation detail, got %v", first["message"])
		}
	})

	t.Run("saves bundle with core metadata", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"message": "Processing succeeded",
				"processed_values": {
					"responses": [
						{"stamped_ecr": {"extended_bundle": {
							"resourceType": "Bundle",
							"entry": [{"resource": {"resourceType": "Composition", "id": "ecr-42"}}]
						}}},
						{"metadata_values": {
							"last_name": "Doe",
							"first_name": "Anne",
							"rr": [{"condition": "COVID-19", "rule_summaries": [{"summary": "Detection of SARS-CoV-2"}]}]
						}}
					]
				}
			}`))
		}))
		defer server.Close()

		repo := &fakeRepo{}
		orch := orchestration.New(orchestration.Config{URL: server.URL, ConfigFileName: "bundle-metadata-core.json"})
		h := newTestHandler(repo, orch)

		resp := httptest.NewRecorder()
		h.ProcessZip(resp, zipUploadRequest(t, "upload_file", "ecr.zip", "application/zip"))

		if resp.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
		if body := decodeBody(t, resp); body["message"] != "Saved FHIR data.\nSaved metadata." {
			t.Errorf("Expected combined save message, got %q", body["message"])
		}

		if repo.savedBundleID != "ecr-42" {
			t.Errorf("Expected bundle saved under ecr-42, got %q", repo.savedBundleID)
		}
		if repo.savedCore == nil {
			t.Fatal("Expected core metadata to be saved")
		}
		if repo.savedCore.LastName != "Doe" || len(repo.savedCore.RR) != 1 {
			t.Errorf("Expected decoded core metadata, got %+v", repo.savedCore)
		}
	})

	t.Run("orchestration failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail": "bad zip"}`, http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		orch := orchestration.New(orchestration.Config{URL: server.URL, ConfigFileName: "bundle-only.json"})
		h := newTestHandler(&fakeRepo{}, orch)

		resp := httptest.NewRecorder()
		h.ProcessZip(resp, zipUploadRequest(t, "upload_file", "ecr.zip", "application/zip"))

		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", resp.Code)
		}
		if body := decodeBody(t, resp); body["message"] != "Server error" {
			t.Errorf("Expected opaque server error, got %v", body["message"])
		}
	})

	t.Run("bundle-only save", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"message": "Processing succeeded",
				"processed_values": {
					"responses": [
						{"stamped_ecr": {"extended_bundle": {
							"resourceType": "Bundle",
							"entry": [{"resource": {"resourceType": "Composition", "id": "ecr-7"}}]
						}}}
					]
				}
			}`))
		}))
		defer server.Close()

		repo := &fakeRepo{}
		orch := orchestration.New(orchestration.Config{URL: server.URL, ConfigFileName: "bundle-only.json"})
		h := newTestHandler(repo, orch)

		resp := httptest.NewRecorder()
		h.ProcessZip(resp, zipUploadRequest(t, "upload_file", "ecr.zip", "application/zip"))

		if resp.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.Code)
		}
		if body := decodeBody(t, resp); body["message"] != "Success. Saved FHIR bundle." {
			t.Errorf("Expected bundle-only save message, got %v", body["message"])
		}
		if repo.savedBundleID != "ecr-7" || repo.savedCore != nil {
			t.Errorf("Expected bundle-only persistence, got bundle %q core %v", repo.savedBundleID, repo.savedCore)
		}
	})
}

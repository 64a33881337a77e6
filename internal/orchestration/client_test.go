package orchestration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
)

func TestConfigFileName(t *testing.T) {
	tests := []struct {
		name          string
		nonIntegrated bool
		schema        config.MetadataSchema
		want          string
	}{
		{"integrated viewer needs bundle only", false, config.SchemaExtended, "bundle-only.json"},
		{"non-integrated core schema", true, config.SchemaCore, "bundle-metadata-core.json"},
		{"non-integrated extended schema", true, config.SchemaExtended, "bundle-metadata-extended.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfigFileName(tt.nonIntegrated, tt.schema); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestProcessZip(t *testing.T) {
	var gotFields map[string]string
	var gotFilename string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process-zip" {
			t.Errorf("Expected /process-zip, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}

		gotFields = make(map[string]string)
		for name, values := range r.MultipartForm.Value {
			gotFields[name] = values[0]
		}
		if files := r.MultipartForm.File["upload_file"]; len(files) > 0 {
			gotFilename = files[0].Filename
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"message": "Processing succeeded",
			"processed_values": {
				"responses": [
					{"stamped_ecr": {"extended_bundle": {
						"resourceType": "Bundle",
						"entry": [{"resource": {"resourceType": "Composition", "id": "comp1"}}]
					}}},
					{"metadata_values": {"last_name": "Doe", "first_name": "Anne"}}
				]
			}
		}`))
	}))
	defer server.Close()

	client := New(Config{URL: server.URL, ConfigFileName: "bundle-metadata-core.json"})
	info, err := client.ProcessZip(context.Background(), "ecr.zip", strings.NewReader("zip bytes"))
	if err != nil {
		t.Fatalf("ProcessZip failed: %v", err)
	}

	want := map[string]string{
		"message_type":        "ecr",
		"include_error_types": "[errors]",
		"config_file_name":    "bundle-metadata-core.json",
		"data_type":           "zip",
	}
	for name, value := range want {
		if gotFields[name] != value {
			t.Errorf("Expected form field %s=%s, got %s", name, value, gotFields[name])
		}
	}
	if gotFilename != "ecr.zip" {
		t.Errorf("Expected upload filename ecr.zip, got %s", gotFilename)
	}

	if rt, _ := info.Bundle["resourceType"].(string); rt != "Bundle" {
		t.Errorf("Expected parsed bundle, got resourceType %q", rt)
	}
	if !strings.Contains(string(info.Metadata), `"last_name"`) {
		t.Errorf("Expected raw metadata payload, got %s", info.Metadata)
	}
}

func TestProcessZipBundleOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"message": "Processing succeeded",
			"processed_values": {
				"responses": [
					{"stamped_ecr": {"extended_bundle": {"resourceType": "Bundle"}}}
				]
			}
		}`))
	}))
	defer server.Close()

	client := New(Config{URL: server.URL, ConfigFileName: "bundle-only.json"})
	info, err := client.ProcessZip(context.Background(), "ecr.zip", strings.NewReader("zip bytes"))
	if err != nil {
		t.Fatalf("ProcessZip failed: %v", err)
	}
	if info.Metadata != nil {
		t.Errorf("Expected no metadata payload, got %s", info.Metadata)
	}
}

func TestProcessZipUpstreamFailure(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail": "conversion failed"}`, http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client := New(Config{URL: server.URL, ConfigFileName: "bundle-only.json"})
		_, err := client.ProcessZip(context.Background(), "ecr.zip", strings.NewReader("zip bytes"))
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if !strings.Contains(err.Error(), "Failed to process orchestration response") {
			t.Errorf("Expected orchestration failure message, got %v", err)
		}
	})

	t.Run("missing stamped bundle", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message": "ok", "processed_values": {"responses": []}}`))
		}))
		defer server.Close()

		client := New(Config{URL: server.URL, ConfigFileName: "bundle-only.json"})
		_, err := client.ProcessZip(context.Background(), "ecr.zip", strings.NewReader("zip bytes"))
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
	})
}

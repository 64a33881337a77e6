// Package orchestration calls the DIBBs orchestration service, which
// converts an uploaded eICR/RR zip into a stamped FHIR bundle and, when the
// pipeline config asks for it, a parsed metadata payload.
package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/errors"
)

const processMessage = "Failed to process orchestration response"

// Client talks to one orchestration deployment.
type Client struct {
	baseURL    string
	configName string
	httpClient *http.Client
}

// Config holds the orchestration client's settings.
type Config struct {
	// URL is the orchestration service's base URL, without a trailing slash.
	URL string
	// ConfigFileName names the pipeline config the service should run.
	ConfigFileName string
	// Timeout bounds each upload round trip. Zip conversion is slow, so the
	// default is generous.
	Timeout time.Duration
}

// ConfigFileName picks the pipeline config for the deployment: integrated
// viewers only need the bundle, non-integrated ones also need metadata in
// the schema their database carries.
func ConfigFileName(nonIntegratedViewer bool, schema config.MetadataSchema) string {
	if !nonIntegratedViewer {
		return "bundle-only.json"
	}
	if schema == config.SchemaExtended {
		return "bundle-metadata-extended.json"
	}
	return "bundle-metadata-core.json"
}

// New creates an orchestration client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    cfg.URL,
		configName: cfg.ConfigFileName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BundleInfo is the usable part of an orchestration response: the stamped
// bundle and, when the pipeline produced one, the raw metadata payload. The
// save pipeline decodes Metadata into the schema the backend expects.
type BundleInfo struct {
	Bundle   fhir.Bundle
	Metadata json.RawMessage
}

type rawResponse struct {
	Message         string `json:"message"`
	ProcessedValues struct {
		Responses []struct {
			StampedEcr *struct {
				ExtendedBundle json.RawMessage `json:"extended_bundle"`
			} `json:"stamped_ecr"`
			MetadataValues json.RawMessage `json:"metadata_values"`
		} `json:"responses"`
	} `json:"processed_values"`
}

// ProcessZip uploads an eICR/RR zip and returns the converted bundle. Any
// failure in the round trip or the response shape surfaces as an upstream
// error with a uniform caller-facing message.
func (c *Client) ProcessZip(ctx context.Context, filename string, file io.Reader) (*BundleInfo, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"message_type":        "ecr",
		"include_error_types": "[errors]",
		"config_file_name":    c.configName,
		"data_type":           "zip",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, errors.Upstream(err, processMessage)
		}
	}

	part, err := writer.CreateFormFile("upload_file", filename)
	if err != nil {
		return nil, errors.Upstream(err, processMessage)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, errors.Upstream(err, processMessage)
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Upstream(err, processMessage)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process-zip", &body)
	if err != nil {
		return nil, errors.Upstream(err, processMessage)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Upstream(err, processMessage)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Upstream(
			fmt.Errorf("orchestration returned %d: %s", resp.StatusCode, detail),
			processMessage)
	}

	var raw rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Upstream(err, processMessage)
	}

	responses := raw.ProcessedValues.Responses
	if len(responses) == 0 || responses[0].StampedEcr == nil {
		return nil, errors.Upstream(
			fmt.Errorf("orchestration response is missing the stamped bundle"),
			processMessage)
	}

	bundle, err := fhir.ParseBundle(responses[0].StampedEcr.ExtendedBundle)
	if err != nil {
		return nil, errors.Upstream(err, processMessage)
	}

	info := &BundleInfo{Bundle: bundle}
	if len(responses) > 1 {
		info.Metadata = responses[1].MetadataValues
	}
	return info, nil
}

package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/dibbs-platform/ecr-viewer/internal/ecrstore"
	"github.com/dibbs-platform/ecr-viewer/internal/fhir"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/errors"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/metrics"
)

const maxUploadBytes = 50 << 20

// ProcessZip accepts an eICR/RR zip, forwards it to the orchestration
// service for conversion, and persists the resulting bundle and metadata.
func (h *Handler) ProcessZip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		metrics.RecordEcrUpload("rejected")
		writeError(w, errors.Validation(errors.FieldError{
			Field:   "upload_file",
			Message: "File must be a zip",
		}), "")
		return
	}

	file, header, err := r.FormFile("upload_file")
	if err != nil || !isZipUpload(header.Header.Get("Content-Type"), header.Filename) {
		metrics.RecordEcrUpload("rejected")
		writeError(w, errors.Validation(errors.FieldError{
			Field:   "upload_file",
			Message: "File must be a zip",
		}), "")
		return
	}
	defer file.Close()

	info, err := h.orch.ProcessZip(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error().Err(err).Str("file", header.Filename).Msg("orchestration processing failed")
		metrics.RecordEcrUpload("failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server error"})
		return
	}

	message, status := h.save(r, info.Bundle, info.Metadata)
	if status == http.StatusOK {
		metrics.RecordEcrUpload("saved")
	} else {
		metrics.RecordEcrUpload("failed")
	}
	writeJSON(w, status, map[string]string{"message": message})
}

func isZipUpload(contentType, filename string) bool {
	switch contentType {
	case "application/zip", "application/x-zip-compressed":
		return true
	}
	return contentType == "" && strings.HasSuffix(strings.ToLower(filename), ".zip")
}

// save persists a converted bundle. The metadata payload decides the variant
// once, here at the boundary: absent means bundle-only, present means the
// bundle plus the column set the configured schema names.
func (h *Handler) save(r *http.Request, bundle fhir.Bundle, metadata json.RawMessage) (string, int) {
	if h.repo == nil {
		h.logger.Error().Msg("no metadata backend configured for save")
		return "Failed to save FHIR bundle.", http.StatusInternalServerError
	}

	ecrID := bundle.FirstResourceID()
	if ecrID == "" {
		h.logger.Error().Msg("converted bundle has no leading resource id")
		return "Failed to save FHIR bundle.", http.StatusInternalServerError
	}

	if len(metadata) == 0 {
		if err := h.repo.SaveBundle(r.Context(), ecrID, bundle); err != nil {
			h.logger.Error().Err(err).Str("ecr_id", ecrID).Msg("bundle save failed")
			return "Failed to save FHIR bundle.", http.StatusInternalServerError
		}
		return "Success. Saved FHIR bundle.", http.StatusOK
	}

	var message strings.Builder
	status := http.StatusOK

	if err := h.repo.SaveBundle(r.Context(), ecrID, bundle); err != nil {
		h.logger.Error().Err(err).Str("ecr_id", ecrID).Msg("bundle save failed")
		message.WriteString("Failed to save FHIR data.\n")
		status = saveStatus(err)
	} else {
		message.WriteString("Saved FHIR data.\n")
	}

	if err := h.saveMetadata(r, ecrID, metadata); err != nil {
		h.logger.Error().Err(err).Str("ecr_id", ecrID).Msg("metadata save failed")
		message.WriteString("Failed to save metadata.")
		status = saveStatus(err)
	} else {
		message.WriteString("Saved metadata.")
	}

	return message.String(), status
}

func (h *Handler) saveMetadata(r *http.Request, ecrID string, metadata json.RawMessage) error {
	if h.schema == config.SchemaExtended {
		var meta ecrstore.ExtendedMetadata
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return errors.Wrap(err, "failed to decode extended metadata")
		}
		return h.repo.SaveWithExtendedMetadata(r.Context(), ecrID, meta)
	}

	var meta ecrstore.CoreMetadata
	if err := json.Unmarshal(metadata, &meta); err != nil {
		return errors.Wrap(err, "failed to decode core metadata")
	}
	return h.repo.SaveWithCoreMetadata(r.Context(), ecrID, meta)
}

// saveStatus maps schema mismatches to 501 so a misconfigured deployment is
// distinguishable from a broken one.
func saveStatus(err error) int {
	if stderrors.Is(err, ecrstore.ErrSchemaMismatch) || stderrors.Is(err, ecrstore.ErrNoBundleStorage) {
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

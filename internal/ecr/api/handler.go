// Package api exposes the viewer's HTTP surface: the eCR library list, the
// reportable-condition vocabulary, bundle retrieval, rendered view data, and
// the zip upload pipeline.
package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dibbs-platform/ecr-viewer/internal/ecr/daterange"
	"github.com/dibbs-platform/ecr-viewer/internal/ecr/mappings"
	"github.com/dibbs-platform/ecr-viewer/internal/ecrstore"
	"github.com/dibbs-platform/ecr-viewer/internal/orchestration"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/errors"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/metrics"
)

const defaultItemsPerPage = 25

// Handler provides the HTTP handlers for the eCR viewer API.
type Handler struct {
	repo   ecrstore.Repository
	orch   *orchestration.Client
	paths  mappings.PathMappings
	schema config.MetadataSchema
	env    string
	loc    *time.Location
	logger zerolog.Logger
}

// Config carries the handler's deployment settings.
type Config struct {
	// Schema is the metadata column set the save pipeline writes.
	Schema config.MetadataSchema
	// Env selects the default date-range filter.
	Env string
	// Location is the zone dates are localized to for display.
	Location *time.Location
	Logger   zerolog.Logger
}

// NewHandler creates the viewer API handler. A nil repo means no metadata
// backend is configured; list and vocabulary queries then fail explicitly.
func NewHandler(repo ecrstore.Repository, orch *orchestration.Client, cfg Config) *Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		repo:   repo,
		orch:   orch,
		paths:  mappings.Load(),
		schema: cfg.Schema,
		env:    cfg.Env,
		loc:    loc,
		logger: cfg.Logger,
	}
}

// Routes registers the viewer API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/ecrs", h.ListEcrs)
	r.Get("/conditions", h.GetConditions)
	r.Get("/fhir-data", h.GetFhirData)
	r.Get("/view-data", h.GetViewData)
	r.Post("/process-zip", h.ProcessZip)

	return r
}

// ListEcrs returns one page of the eCR library.
func (h *Handler) ListEcrs(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errors.Internal(errors.ErrInternal), "Invalid metadata location.")
		return
	}

	q := r.URL.Query()

	itemsPerPage := queryInt(q.Get("itemsPerPage"), defaultItemsPerPage)
	page := queryInt(q.Get("page"), 1)
	if itemsPerPage < 1 {
		itemsPerPage = defaultItemsPerPage
	}
	if page < 1 {
		page = 1
	}

	// The condition parameter is tri-state: absent means no filter, values
	// filter by condition, and all-blank values select rows without one.
	var conditions []string
	if _, ok := q["condition"]; ok {
		conditions = q["condition"]
	}

	params := ecrstore.ListParams{
		StartIndex:    (page - 1) * itemsPerPage,
		ItemsPerPage:  itemsPerPage,
		SortColumn:    q.Get("sortColumn"),
		SortDirection: q.Get("sortDirection"),
		Period:        daterange.FromParams(q.Get("dateRange"), q.Get("dates"), h.env, time.Now(), h.loc),
		Search:        q.Get("search"),
		Conditions:    conditions,
	}

	data, err := h.repo.ListEcrData(r.Context(), params)
	if err != nil {
		h.logger.Error().Err(err).Msg("list ecr data failed")
		writeError(w, err, "Error fetching data")
		return
	}

	total, err := h.repo.TotalEcrCount(r.Context(), params)
	if err != nil {
		h.logger.Error().Err(err).Msg("total ecr count failed")
		writeError(w, err, "Error fetching data")
		return
	}

	metrics.RecordListQuery()
	if data == nil {
		data = []ecrstore.EcrDisplay{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"totalCount": total,
	})
}

// GetConditions returns the distinct reportable conditions for the filter
// dropdown.
func (h *Handler) GetConditions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, errors.Internal(errors.ErrInternal), "Invalid metadata location.")
		return
	}

	conditions, err := h.repo.Conditions(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("conditions query failed")
		writeError(w, err, "Failed to get conditions.")
		return
	}

	if conditions == nil {
		conditions = []string{}
	}
	writeJSON(w, http.StatusOK, conditions)
}

// GetFhirData returns a stored bundle together with the path table the
// client needs to render it.
func (h *Handler) GetFhirData(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.BadRequest("eCR ID is required"), "")
		return
	}

	bundle, err := h.findBundle(r, id)
	if err != nil {
		h.writeBundleError(w, err)
		return
	}

	metrics.RecordEcrViewed()
	writeJSON(w, http.StatusOK, map[string]any{
		"fhirBundle":       bundle,
		"fhirPathMappings": h.paths,
	})
}

func (h *Handler) findBundle(r *http.Request, id string) (map[string]any, error) {
	if h.repo == nil {
		return nil, ecrstore.ErrNoBundleStorage
	}
	bundle, err := h.repo.FindBundle(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (h *Handler) writeBundleError(w http.ResponseWriter, err error) {
	if err == ecrstore.ErrNoBundleStorage {
		writeError(w, errors.Internal(err), "Invalid source")
		return
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.HTTPStatus == http.StatusNotFound {
		writeError(w, appErr, "")
		return
	}
	h.logger.Error().Err(err).Msg("bundle lookup failed")
	writeError(w, err, "Failed to retrieve FHIR bundle")
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError renders an error response. A non-empty message overrides the
// error's own caller-facing message.
func writeError(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		status = appErr.HTTPStatus
		if message == "" {
			message = appErr.Message
		}
		if len(appErr.Errors) > 0 {
			writeJSON(w, status, map[string]any{
				"message": message,
				"errors":  appErr.Errors,
			})
			return
		}
	}
	if message == "" {
		message = "internal server error"
	}

	writeJSON(w, status, map[string]string{"message": message})
}

package records

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"routier/internal/dispatch"
	"routier/internal/upload"
	"routier/pkg/apperr"
)

// imageExts is the photo allow-list shared by every record category.
var imageExts = []string{"jpg", "jpeg", "png", "webp"}

// Handlers wires the records routes: thin single-table CRUD plus the one
// composed creation, with photo ingestion where the paper trail needs it.
type Handlers struct {
	store    Store
	ingestor *upload.Ingestor
	recorder dispatch.Recorder
	log      *slog.Logger

	maxUploadBytes int64
}

func NewHandlers(store Store, ingestor *upload.Ingestor, recorder dispatch.Recorder, log *slog.Logger, maxUploadBytes int64) *Handlers {
	return &Handlers{
		store:          store,
		ingestor:       ingestor,
		recorder:       recorder,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the ordered records table. Literal routes precede templated
// ones that could match the same concrete path; the dispatcher keeps this
// order, so it is part of the contract rather than a registration accident.
func (h *Handlers) Routes() []dispatch.Route {
	return []dispatch.Route{
		{Method: http.MethodGet, Template: "/vehicule/list", Handler: h.listVehicles},
		{Method: http.MethodPost, Template: "/vehicule/create", Handler: h.createVehicle, AuditAction: "vehicule_created"},
		{Method: http.MethodPost, Template: "/vehicule/{id}/update", Handler: h.updateVehicle, AuditAction: "vehicule_updated"},
		{Method: http.MethodGet, Template: "/vehicule/{id}", Handler: h.getVehicle},

		{Method: http.MethodGet, Template: "/particulier/list", Handler: h.listIndividuals},
		{Method: http.MethodPost, Template: "/particulier/create", Handler: h.createIndividual, AuditAction: "particulier_created"},
		{Method: http.MethodPost, Template: "/particulier/{id}/update", Handler: h.updateIndividual, AuditAction: "particulier_updated"},
		{Method: http.MethodGet, Template: "/particulier/{id}", Handler: h.getIndividual},

		{Method: http.MethodGet, Template: "/societe/list", Handler: h.listCompanies},
		{Method: http.MethodPost, Template: "/societe/create", Handler: h.createCompany, AuditAction: "societe_created"},
		// Records its own audit entry: the payload includes stored photo
		// paths and both generated ids, which the wrapper cannot know.
		{Method: http.MethodPost, Template: "/societe/create-with-contravention", Handler: h.createCompanyWithInfraction},
		{Method: http.MethodPost, Template: "/societe/{id}/update", Handler: h.updateCompany, AuditAction: "societe_updated"},
		{Method: http.MethodGet, Template: "/societe/{id}", Handler: h.getCompany},

		{Method: http.MethodGet, Template: "/contravention/list", Handler: h.listInfractions},
		{Method: http.MethodPost, Template: "/contravention/create", Handler: h.createInfraction, AuditAction: "contravention_created"},
		{Method: http.MethodPost, Template: "/contravention/{id}/update-payment", Handler: h.updateInfractionPayment, AuditAction: "contravention_payment_updated"},
		{Method: http.MethodGet, Template: "/contravention/{id}", Handler: h.getInfraction},

		{Method: http.MethodGet, Template: "/accident/list", Handler: h.listAccidents},
		{Method: http.MethodPost, Template: "/accident/create", Handler: h.createAccident, AuditAction: "accident_created"},
		{Method: http.MethodGet, Template: "/accident/{id}", Handler: h.getAccident},

		{Method: http.MethodGet, Template: "/avis-recherche/list", Handler: h.listBulletins},
		{Method: http.MethodPost, Template: "/avis-recherche/create", Handler: h.createBulletin, AuditAction: "avis_recherche_created"},
		{Method: http.MethodPost, Template: "/avis-recherche/{id}/close", Handler: h.closeBulletin, AuditAction: "avis_recherche_closed"},

		{Method: http.MethodGet, Template: "/permis-temporaire/list", Handler: h.listPermits},
		{Method: http.MethodPost, Template: "/permis-temporaire/create", Handler: h.createPermit, AuditAction: "permis_temporaire_created"},
	}
}

// pathID extracts and parses the first placeholder. Handlers never assume
// the table handed them the shape they expect.
func pathID(req *dispatch.Request) (int64, error) {
	raw, ok := req.Param(0)
	if !ok {
		return 0, apperr.New(apperr.CodeValidation, "missing id path segment")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.CodeValidation, "invalid id %q", raw)
	}
	return id, nil
}

// ingestPhotos stores the "photos" field under category and returns the
// public paths plus rollback cleanups that undo the stores.
func (h *Handlers) ingestPhotos(ctx context.Context, req *dispatch.Request, category string) ([]string, []func(), error) {
	return h.ingestField(ctx, req, "photos", category)
}

func (h *Handlers) ingestField(ctx context.Context, req *dispatch.Request, field, category string) ([]string, []func(), error) {
	if req.Files == nil {
		return nil, nil, nil
	}
	files, err := h.ingestor.Ingest(req.Files[field], upload.Policy{
		Category:    category,
		AllowedExts: imageExts,
		MaxBytes:    h.maxUploadBytes,
	})
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.CodeInternal, "photo storage failed")
	}

	paths := make([]string, 0, len(files))
	cleanups := make([]func(), 0, len(files))
	for _, f := range files {
		paths = append(paths, f.PublicPath)
		path := f.PublicPath
		cleanups = append(cleanups, func() {
			if err := h.ingestor.Remove(path); err != nil {
				h.log.Warn("rollback cleanup failed", "path", path, "error", err)
			}
		})
	}
	return paths, cleanups, nil
}

func runCleanups(cleanups []func()) {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// applyString overwrites dst only when the request supplied a value, so
// partial updates leave the remaining columns alone.
func applyString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func formInt64(req *dispatch.Request, name string) int64 {
	n, err := strconv.ParseInt(req.FormValue(name), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseDate accepts RFC 3339 or a bare date.
func parseDate(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func requireField(fields map[string]string, name, value string) {
	if value == "" {
		fields[name] = name + " is required"
	}
}

func validationError(fields map[string]string) error {
	return apperr.New(apperr.CodeValidation, "invalid request").WithFields(fields)
}

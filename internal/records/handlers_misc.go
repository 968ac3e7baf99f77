package records

import (
	"context"
	"net/http"

	"routier/internal/dispatch"
)

// Accidents

type accidentRequest struct {
	Location    string `json:"location"`
	OccurredAt  string `json:"occurred_at"`
	Description string `json:"description"`
}

func accidentFromRequest(req *dispatch.Request) (accidentRequest, error) {
	var body accidentRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.Location = req.FormValue("location")
		body.OccurredAt = req.FormValue("occurred_at")
		body.Description = req.FormValue("description")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

func (h *Handlers) createAccident(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := accidentFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "location", body.Location)
	requireField(fields, "occurred_at", body.OccurredAt)
	occurredAt, ok := parseDate(body.OccurredAt)
	if body.OccurredAt != "" && !ok {
		fields["occurred_at"] = "occurred_at must be a date"
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "accidents")
	if err != nil {
		return nil, err
	}
	implicants, implicantCleanups, err := h.ingestField(ctx, req, "photos_implicants", "implicants")
	if err != nil {
		runCleanups(cleanups)
		return nil, err
	}
	cleanups = append(cleanups, implicantCleanups...)

	a := Accident{
		Location:        body.Location,
		OccurredAt:      occurredAt,
		Description:     body.Description,
		Photos:          photos,
		ImplicantPhotos: implicants,
	}
	id, err := h.store.CreateAccident(ctx, &a)
	if err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": photos, "photos_implicants": implicants},
		AuditPayload: map[string]any{"id": id, "location": a.Location},
	}, nil
}

func (h *Handlers) getAccident(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	a, err := h.store.GetAccident(ctx, id)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"accident": a}), nil
}

func (h *Handlers) listAccidents(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	accidents, err := h.store.ListAccidents(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"accidents": accidents}), nil
}

// Search bulletins

type bulletinRequest struct {
	TargetType string `json:"target_type"`
	TargetID   int64  `json:"target_id"`
	Reason     string `json:"reason"`
}

func bulletinFromRequest(req *dispatch.Request) (bulletinRequest, error) {
	var body bulletinRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.TargetType = req.FormValue("target_type")
		body.TargetID = formInt64(req, "target_id")
		body.Reason = req.FormValue("reason")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

func (h *Handlers) createBulletin(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := bulletinFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "target_type", body.TargetType)
	requireField(fields, "reason", body.Reason)
	if body.TargetType != "" && !ValidDossierType(DossierType(body.TargetType)) {
		fields["target_type"] = "unknown target type"
	}
	if body.TargetID <= 0 {
		fields["target_id"] = "target_id is required"
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	b := SearchBulletin{
		TargetType: DossierType(body.TargetType),
		TargetID:   body.TargetID,
		Reason:     body.Reason,
		Active:     true,
	}
	id, err := h.store.CreateBulletin(ctx, &b)
	if err != nil {
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id},
		AuditPayload: map[string]any{"id": id, "target_type": b.TargetType, "target_id": b.TargetID},
	}, nil
}

func (h *Handlers) listBulletins(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	bulletins, err := h.store.ListBulletins(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"avis_recherche": bulletins}), nil
}

func (h *Handlers) closeBulletin(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	if err := h.store.CloseBulletin(ctx, id); err != nil {
		return nil, err
	}
	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "active": false},
		AuditPayload: map[string]any{"id": id},
	}, nil
}

// Temporary permits

type permitRequest struct {
	IndividualID int64  `json:"individual_id"`
	Plate        string `json:"plate"`
	Reason       string `json:"reason"`
	ValidFrom    string `json:"valid_from"`
	ValidTo      string `json:"valid_to"`
}

func permitFromRequest(req *dispatch.Request) (permitRequest, error) {
	var body permitRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.IndividualID = formInt64(req, "individual_id")
		body.Plate = req.FormValue("plate")
		body.Reason = req.FormValue("reason")
		body.ValidFrom = req.FormValue("valid_from")
		body.ValidTo = req.FormValue("valid_to")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

func (h *Handlers) createPermit(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := permitFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "plate", body.Plate)
	requireField(fields, "valid_from", body.ValidFrom)
	requireField(fields, "valid_to", body.ValidTo)
	validFrom, okFrom := parseDate(body.ValidFrom)
	validTo, okTo := parseDate(body.ValidTo)
	if body.ValidFrom != "" && !okFrom {
		fields["valid_from"] = "valid_from must be a date"
	}
	if body.ValidTo != "" && !okTo {
		fields["valid_to"] = "valid_to must be a date"
	}
	if okFrom && okTo && validTo.Before(validFrom) {
		fields["valid_to"] = "valid_to precedes valid_from"
	}
	if body.IndividualID <= 0 {
		fields["individual_id"] = "individual_id is required"
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "permis-temporaires")
	if err != nil {
		return nil, err
	}

	p := TemporaryPermit{
		IndividualID: body.IndividualID,
		Plate:        body.Plate,
		Reason:       body.Reason,
		ValidFrom:    validFrom,
		ValidTo:      validTo,
		Photos:       photos,
	}
	id, err := h.store.CreatePermit(ctx, &p)
	if err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": photos},
		AuditPayload: map[string]any{"id": id, "plate": p.Plate, "individual_id": p.IndividualID},
	}, nil
}

func (h *Handlers) listPermits(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	permits, err := h.store.ListPermits(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"permis_temporaires": permits}), nil
}

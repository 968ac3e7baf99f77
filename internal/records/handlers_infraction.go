package records

import (
	"context"
	"net/http"

	"routier/internal/dispatch"
)

type infractionRequest struct {
	DossierType string `json:"dossier_type"`
	DossierID   int64  `json:"dossier_id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Location    string `json:"location"`
	FineAmount  int64  `json:"fine_amount"`
}

func infractionFromRequest(req *dispatch.Request) (infractionRequest, error) {
	var body infractionRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.DossierType = req.FormValue("dossier_type")
		body.DossierID = formInt64(req, "dossier_id")
		body.Code = req.FormValue("code")
		body.Description = req.FormValue("description")
		body.Location = req.FormValue("location")
		body.FineAmount = formInt64(req, "fine_amount")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

func (h *Handlers) createInfraction(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := infractionFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "code", body.Code)
	requireField(fields, "dossier_type", body.DossierType)
	if body.DossierType != "" && !ValidDossierType(DossierType(body.DossierType)) {
		fields["dossier_type"] = "unknown dossier type"
	}
	if body.DossierID <= 0 {
		fields["dossier_id"] = "dossier_id is required"
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "contraventions")
	if err != nil {
		return nil, err
	}

	inf := Infraction{
		DossierType: DossierType(body.DossierType),
		DossierID:   body.DossierID,
		Code:        body.Code,
		Description: body.Description,
		Location:    body.Location,
		FineAmount:  body.FineAmount,
		Photos:      photos,
	}
	id, err := h.store.CreateInfraction(ctx, &inf)
	if err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": photos},
		AuditPayload: map[string]any{"id": id, "code": inf.Code, "dossier_type": inf.DossierType, "dossier_id": inf.DossierID},
	}, nil
}

func (h *Handlers) getInfraction(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	inf, err := h.store.GetInfraction(ctx, id)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"contravention": inf}), nil
}

func (h *Handlers) listInfractions(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	infractions, err := h.store.ListInfractions(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"contraventions": infractions}), nil
}

func (h *Handlers) updateInfractionPayment(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	if err := h.store.MarkInfractionPaid(ctx, id); err != nil {
		return nil, err
	}
	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "paid": true},
		AuditPayload: map[string]any{"id": id},
	}, nil
}

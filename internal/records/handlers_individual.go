package records

import (
	"context"
	"net/http"

	"routier/internal/dispatch"
)

type individualRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
}

func individualFromRequest(req *dispatch.Request) (individualRequest, error) {
	var body individualRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.FirstName = req.FormValue("first_name")
		body.LastName = req.FormValue("last_name")
		body.NationalID = req.FormValue("national_id")
		body.Phone = req.FormValue("phone")
		body.Address = req.FormValue("address")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

func (h *Handlers) createIndividual(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := individualFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "first_name", body.FirstName)
	requireField(fields, "last_name", body.LastName)
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "particuliers")
	if err != nil {
		return nil, err
	}

	in := Individual{
		FirstName:  body.FirstName,
		LastName:   body.LastName,
		NationalID: body.NationalID,
		Phone:      body.Phone,
		Address:    body.Address,
		Photos:     photos,
	}
	id, err := h.store.CreateIndividual(ctx, &in)
	if err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": photos},
		AuditPayload: map[string]any{"id": id, "photos": photos},
	}, nil
}

func (h *Handlers) getIndividual(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	in, err := h.store.GetIndividual(ctx, id)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"particulier": in}), nil
}

func (h *Handlers) listIndividuals(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	individuals, err := h.store.ListIndividuals(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"particuliers": individuals}), nil
}

func (h *Handlers) updateIndividual(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	existing, err := h.store.GetIndividual(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := individualFromRequest(req)
	if err != nil {
		return nil, err
	}
	applyString(&existing.FirstName, body.FirstName)
	applyString(&existing.LastName, body.LastName)
	applyString(&existing.NationalID, body.NationalID)
	applyString(&existing.Phone, body.Phone)
	applyString(&existing.Address, body.Address)

	photos, cleanups, err := h.ingestPhotos(ctx, req, "particuliers")
	if err != nil {
		return nil, err
	}
	existing.Photos = append(existing.Photos, photos...)

	if err := h.store.UpdateIndividual(ctx, existing); err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": existing.Photos},
		AuditPayload: map[string]any{"id": id, "new_photos": photos},
	}, nil
}

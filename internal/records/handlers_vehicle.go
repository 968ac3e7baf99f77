package records

import (
	"context"
	"net/http"

	"routier/internal/dispatch"
)

type vehicleRequest struct {
	Plate     string `json:"plate"`
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Color     string `json:"color"`
	OwnerType string `json:"owner_type"`
	OwnerID   int64  `json:"owner_id"`
}

func vehicleFromRequest(req *dispatch.Request) (vehicleRequest, error) {
	var body vehicleRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.Plate = req.FormValue("plate")
		body.Brand = req.FormValue("brand")
		body.Model = req.FormValue("model")
		body.Color = req.FormValue("color")
		body.OwnerType = req.FormValue("owner_type")
		body.OwnerID = formInt64(req, "owner_id")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

func (h *Handlers) createVehicle(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := vehicleFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "plate", body.Plate)
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "vehicules")
	if err != nil {
		return nil, err
	}

	v := Vehicle{
		Plate:     body.Plate,
		Brand:     body.Brand,
		Model:     body.Model,
		Color:     body.Color,
		OwnerType: body.OwnerType,
		OwnerID:   body.OwnerID,
		Photos:    photos,
	}
	id, err := h.store.CreateVehicle(ctx, &v)
	if err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": photos},
		AuditPayload: map[string]any{"id": id, "plate": v.Plate, "photos": photos},
	}, nil
}

func (h *Handlers) getVehicle(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	v, err := h.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"vehicule": v}), nil
}

func (h *Handlers) listVehicles(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	vehicles, err := h.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"vehicules": vehicles}), nil
}

func (h *Handlers) updateVehicle(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	existing, err := h.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := vehicleFromRequest(req)
	if err != nil {
		return nil, err
	}
	applyString(&existing.Plate, body.Plate)
	applyString(&existing.Brand, body.Brand)
	applyString(&existing.Model, body.Model)
	applyString(&existing.Color, body.Color)
	applyString(&existing.OwnerType, body.OwnerType)
	if body.OwnerID != 0 {
		existing.OwnerID = body.OwnerID
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "vehicules")
	if err != nil {
		return nil, err
	}
	existing.Photos = append(existing.Photos, photos...)

	if err := h.store.UpdateVehicle(ctx, existing); err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": existing.Photos},
		AuditPayload: map[string]any{"id": id, "new_photos": photos},
	}, nil
}

package records

import (
	"context"
	"net/http"

	"routier/internal/dispatch"
)

type companyRequest struct {
	Name           string `json:"name"`
	RegistrationNo string `json:"registration_no"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
}

func companyFromRequest(req *dispatch.Request) (companyRequest, error) {
	var body companyRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.Name = req.FormValue("name")
		body.RegistrationNo = req.FormValue("registration_no")
		body.Phone = req.FormValue("phone")
		body.Address = req.FormValue("address")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

func (h *Handlers) createCompany(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := companyFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "name", body.Name)
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "societes")
	if err != nil {
		return nil, err
	}

	c := Company{
		Name:           body.Name,
		RegistrationNo: body.RegistrationNo,
		Phone:          body.Phone,
		Address:        body.Address,
		Photos:         photos,
	}
	id, err := h.store.CreateCompany(ctx, &c)
	if err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": photos},
		AuditPayload: map[string]any{"id": id, "name": c.Name, "photos": photos},
	}, nil
}

func (h *Handlers) getCompany(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	c, err := h.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"societe": c}), nil
}

func (h *Handlers) listCompanies(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	companies, err := h.store.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"societes": companies}), nil
}

func (h *Handlers) updateCompany(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	id, err := pathID(req)
	if err != nil {
		return nil, err
	}
	existing, err := h.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := companyFromRequest(req)
	if err != nil {
		return nil, err
	}
	applyString(&existing.Name, body.Name)
	applyString(&existing.RegistrationNo, body.RegistrationNo)
	applyString(&existing.Phone, body.Phone)
	applyString(&existing.Address, body.Address)

	photos, cleanups, err := h.ingestPhotos(ctx, req, "societes")
	if err != nil {
		return nil, err
	}
	existing.Photos = append(existing.Photos, photos...)

	if err := h.store.UpdateCompany(ctx, existing); err != nil {
		runCleanups(cleanups)
		return nil, err
	}

	return &dispatch.Response{
		Status:       http.StatusOK,
		Payload:      map[string]any{"id": id, "photos": existing.Photos},
		AuditPayload: map[string]any{"id": id, "new_photos": photos},
	}, nil
}

type companyWithInfractionRequest struct {
	companyRequest
	InfractionCode        string `json:"infraction_code"`
	InfractionDescription string `json:"infraction_description"`
	InfractionLocation    string `json:"infraction_location"`
	FineAmount            int64  `json:"fine_amount"`
}

func companyWithInfractionFromRequest(req *dispatch.Request) (companyWithInfractionRequest, error) {
	var body companyWithInfractionRequest
	if len(req.Form) > 0 || req.Files != nil {
		body.Name = req.FormValue("name")
		body.RegistrationNo = req.FormValue("registration_no")
		body.Phone = req.FormValue("phone")
		body.Address = req.FormValue("address")
		body.InfractionCode = req.FormValue("infraction_code")
		body.InfractionDescription = req.FormValue("infraction_description")
		body.InfractionLocation = req.FormValue("infraction_location")
		body.FineAmount = formInt64(req, "fine_amount")
		return body, nil
	}
	if err := req.JSON(&body); err != nil {
		return body, err
	}
	return body, nil
}

// createCompanyWithInfraction is the composed creation: company, first
// infraction referencing it, and photos, all in one unit of work. Photo
// stores are undone by rollback cleanups if the composition fails; the audit
// entry is recorded directly so its payload can include facts (stored paths,
// both ids) the wrapper path cannot know.
func (h *Handlers) createCompanyWithInfraction(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	body, err := companyWithInfractionFromRequest(req)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	requireField(fields, "name", body.Name)
	requireField(fields, "infraction_code", body.InfractionCode)
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	photos, cleanups, err := h.ingestPhotos(ctx, req, "contraventions")
	if err != nil {
		return nil, err
	}

	c := Company{
		Name:           body.Name,
		RegistrationNo: body.RegistrationNo,
		Phone:          body.Phone,
		Address:        body.Address,
	}
	inf := Infraction{
		Code:        body.InfractionCode,
		Description: body.InfractionDescription,
		Location:    body.InfractionLocation,
		FineAmount:  body.FineAmount,
		Photos:      photos,
	}

	companyID, infractionID, err := h.store.CreateCompanyWithInfraction(ctx, &c, &inf, cleanups)
	if err != nil {
		return nil, err
	}

	h.recorder.Record(ctx, "societe_created_with_contravention", map[string]any{
		"method":          req.Method,
		"societe_id":      companyID,
		"infraction_id":   infractionID,
		"photos":          photos,
		"societe_name":    c.Name,
		"infraction_code": inf.Code,
		"fine_amount":     inf.FineAmount,
	})

	return &dispatch.Response{
		Status: http.StatusOK,
		Payload: map[string]any{
			"societe_id":    companyID,
			"infraction_id": infractionID,
			"photos":        photos,
		},
	}, nil
}

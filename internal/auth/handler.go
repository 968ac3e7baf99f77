package auth

import (
	"context"
	"net/http"

	"routier/internal/dispatch"
)

// Handler exposes the login route over the dispatcher.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the auth route table slice. Login is audited through the
// wrapper path, so only successful logins reach the ledger.
func (h *Handler) Routes() []dispatch.Route {
	return []dispatch.Route{
		{Method: http.MethodPost, Template: "/auth/login", Handler: h.handleLogin, AuditAction: "user_login"},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	var body loginRequest
	if err := req.JSON(&body); err != nil {
		// Form-encoded logins are accepted for older clients.
		body.Username = req.FormValue("username")
		body.Password = req.FormValue("password")
	}

	token, user, err := h.service.Login(ctx, body.Username, body.Password)
	if err != nil {
		return nil, err
	}

	return &dispatch.Response{
		Status: http.StatusOK,
		Payload: map[string]any{
			"token": token,
			"user":  user,
		},
		AuditPayload: map[string]any{
			"username": user.Username,
		},
	}, nil
}

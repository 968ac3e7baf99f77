package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"routier/internal/dispatch"
	"routier/pkg/apperr"
)

// Handler exposes the activity report over the dispatch table.
type Handler struct {
	store Store
	log   *slog.Logger
}

func NewHandler(store Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

func (h *Handler) Routes() []dispatch.Route {
	return []dispatch.Route{
		{Method: http.MethodGet, Template: "/audit/activites", Handler: h.listActivities},
	}
}

func (h *Handler) listActivities(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	filter, err := filterFromQuery(req)
	if err != nil {
		return nil, err
	}

	rows, err := Report(ctx, h.store, filter)
	if err != nil {
		return nil, err
	}
	return dispatch.OK(map[string]any{"activites": rows, "count": len(rows)}), nil
}

func filterFromQuery(req *dispatch.Request) (Filter, error) {
	filter := Filter{
		Actor:  req.Query.Get("actor"),
		Action: req.Query.Get("action"),
		Search: req.Query.Get("q"),
		Limit:  DefaultLimit,
	}

	fields := map[string]string{}
	if raw := req.Query.Get("from"); raw != "" {
		t, err := parseReportDate(raw)
		if err != nil {
			fields["from"] = "from must be a date"
		}
		filter.From = t
	}
	if raw := req.Query.Get("to"); raw != "" {
		t, err := parseReportDate(raw)
		if err != nil {
			fields["to"] = "to must be a date"
		}
		filter.To = t
	}
	if raw := req.Query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fields["limit"] = "limit must be a positive integer"
		} else {
			filter.Limit = n
		}
	}
	if raw := req.Query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields["offset"] = "offset must be a non-negative integer"
		} else {
			filter.Offset = n
		}
	}
	if len(fields) > 0 {
		return Filter{}, apperr.New(apperr.CodeValidation, "invalid report filter").WithFields(fields)
	}
	return filter, nil
}

func parseReportDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

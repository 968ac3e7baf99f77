package dispatch

import (
	"encoding/json"
	"net/http"

	"routier/pkg/apperr"
)

// writeSuccess serializes the success envelope: a status marker, the matched
// route template, and the handler payload merged at the top level.
func writeSuccess(w http.ResponseWriter, template string, resp *Response) {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	envelope := make(map[string]any, len(resp.Payload)+2)
	for k, v := range resp.Payload {
		envelope[k] = v
	}
	envelope["status"] = "ok"
	envelope["route"] = template

	writeJSON(w, status, envelope)
}

// writeFailure serializes the error envelope for a typed failure. Validation
// failures additionally carry the field-keyed message map.
func writeFailure(w http.ResponseWriter, err error) {
	envelope := map[string]any{
		"status":  "error",
		"message": apperr.MessageOf(err),
	}
	if fields := apperr.FieldsOf(err); len(fields) > 0 {
		envelope["fields"] = fields
	}
	writeJSON(w, apperr.StatusOf(err), envelope)
}

// writeNotFound echoes the attempted method and path; this is an internal
// administrative API, so the echo is a debugging aid rather than a leak.
func writeNotFound(w http.ResponseWriter, method, path string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"status":  "error",
		"message": "no route matched",
		"method":  method,
		"path":    path,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

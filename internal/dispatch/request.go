package dispatch

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"

	"routier/pkg/apperr"
	"routier/pkg/requestcontext"
)

// Request is the explicit, request-scoped view handed to handlers. It carries
// everything a handler may need so component logic never reads ambient state.
type Request struct {
	Method string
	// Path is the effective path the route table matched (override applied,
	// front-controller prefix stripped).
	Path string
	// Params are placeholder values in left-to-right template order.
	Params []string

	Header http.Header
	Query  url.Values
	Form   url.Values
	// Files holds multipart uploads by field name; nil for non-multipart
	// requests.
	Files map[string][]*multipart.FileHeader

	body []byte

	ClientIP  string
	UserAgent string
	// Actor is the authenticated login, "" when anonymous.
	Actor string
}

// maxFormMemory bounds the in-memory portion of a multipart parse; larger
// files spill to temp storage, where the ingestor streams them from.
const maxFormMemory = 4 << 20

// newRequest builds a Request from the raw HTTP request, parsing the body
// according to its content type.
func newRequest(r *http.Request) (*Request, error) {
	req := &Request{
		Method:    r.Method,
		Header:    r.Header,
		Query:     r.URL.Query(),
		Form:      url.Values{},
		ClientIP:  requestcontext.ClientIP(r.Context()),
		UserAgent: requestcontext.UserAgent(r.Context()),
		Actor:     requestcontext.Actor(r.Context()),
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeValidation, "malformed multipart form")
		}
		req.Form = r.MultipartForm.Value
		req.Files = r.MultipartForm.File
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeValidation, "malformed form body")
		}
		req.Form = r.PostForm
	default:
		if r.Body != nil {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				return nil, apperr.Wrap(err, apperr.CodeValidation, "unreadable request body")
			}
			req.body = body
		}
	}

	return req, nil
}

// Param returns the i-th extracted placeholder value. Handlers must check ok
// rather than assume the table gave them the shape they expect.
func (r *Request) Param(i int) (string, bool) {
	if i < 0 || i >= len(r.Params) {
		return "", false
	}
	return r.Params[i], true
}

// JSON decodes the request body into v, rejecting unknown fields.
func (r *Request) JSON(v any) error {
	if len(r.body) == 0 {
		return apperr.New(apperr.CodeValidation, "request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(r.body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(err, apperr.CodeValidation, "malformed JSON body")
	}
	return nil
}

// FormValue returns the first form value for name, "" when absent.
func (r *Request) FormValue(name string) string {
	if vs, ok := r.Form[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Response is a handler's typed result. Payload keys are merged into the
// success envelope next to the status marker and matched route.
type Response struct {
	// Status defaults to 200 when zero.
	Status  int
	Payload map[string]any

	// AuditPayload carries derived facts (generated ids, stored paths) merged
	// into the wrapper's audit entry for routes that opt in.
	AuditPayload map[string]any
}

// OK builds a 200 response with the given payload.
func OK(payload map[string]any) *Response {
	return &Response{Status: http.StatusOK, Payload: payload}
}

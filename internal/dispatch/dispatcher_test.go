package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"routier/internal/platform/metrics"
	"routier/pkg/apperr"
)

// recorderStub captures audit calls so tests can assert the wrapper path
// fires exactly once per successful audited request.
type recorderStub struct {
	calls []recordedCall
}

type recordedCall struct {
	action  string
	payload map[string]any
}

func (r *recorderStub) Record(_ context.Context, action string, payload map[string]any) {
	r.calls = append(r.calls, recordedCall{action: action, payload: payload})
}

type DispatcherSuite struct {
	suite.Suite
	recorder *recorderStub
	d        *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.recorder = &recorderStub{}
	s.d = New(slog.New(slog.DiscardHandler), metrics.NewWith(prometheus.NewRegistry()), s.recorder, "/api")
}

func (s *DispatcherSuite) serve(method, target string, body string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	s.d.ServeHTTP(rec, req)

	var envelope map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func (s *DispatcherSuite) TestRouting() {
	s.d.MustRegister(
		Route{Method: http.MethodGet, Template: "/vehicule/list", Handler: func(context.Context, *Request) (*Response, error) {
			return OK(map[string]any{"which": "list"}), nil
		}},
		Route{Method: http.MethodGet, Template: "/vehicule/{id}", Handler: func(_ context.Context, req *Request) (*Response, error) {
			id, _ := req.Param(0)
			return OK(map[string]any{"which": "get", "id": id}), nil
		}},
		Route{Method: http.MethodPost, Template: "/vehicule/create", Handler: func(context.Context, *Request) (*Response, error) {
			return OK(map[string]any{"which": "create"}), nil
		}},
	)
	s.d.Seal()

	s.Run("prefix is stripped before matching", func() {
		rec, envelope := s.serve(http.MethodGet, "/api/vehicule/list", "", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("ok", envelope["status"])
		s.Equal("/vehicule/list", envelope["route"])
		s.Equal("list", envelope["which"])
	})

	s.Run("earlier registration wins over a template match", func() {
		// "list" is a valid {id} capture; the literal route registered
		// first must take it.
		_, envelope := s.serve(http.MethodGet, "/api/vehicule/list", "", nil)
		s.Equal("list", envelope["which"])
	})

	s.Run("placeholder route receives the captured segment", func() {
		_, envelope := s.serve(http.MethodGet, "/api/vehicule/42", "", nil)
		s.Equal("get", envelope["which"])
		s.Equal("42", envelope["id"])
	})

	s.Run("query route override bypasses the url path", func() {
		_, envelope := s.serve(http.MethodGet, "/api/ignored?route=/vehicule/list", "", nil)
		s.Equal("list", envelope["which"])
	})

	s.Run("form route override bypasses the url path", func() {
		form := url.Values{"route": {"/vehicule/create"}}
		header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
		_, envelope := s.serve(http.MethodPost, "/api/ignored", form.Encode(), header)
		s.Equal("create", envelope["which"])
	})

	s.Run("unmatched path echoes method and path", func() {
		rec, envelope := s.serve(http.MethodGet, "/api/nothing/here", "", nil)
		s.Equal(http.StatusNotFound, rec.Code)
		s.Equal("error", envelope["status"])
		s.Equal(http.MethodGet, envelope["method"])
		s.Equal("/nothing/here", envelope["path"])
	})

	s.Run("method mismatch is a 404 not a 405", func() {
		rec, _ := s.serve(http.MethodPost, "/api/vehicule/list", "", nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *DispatcherSuite) TestErrorTranslation() {
	s.d.MustRegister(
		Route{Method: http.MethodPost, Template: "/invalid", Handler: func(context.Context, *Request) (*Response, error) {
			return nil, apperr.New(apperr.CodeValidation, "invalid request").
				WithFields(map[string]string{"plate": "plate is required"})
		}},
		Route{Method: http.MethodGet, Template: "/missing", Handler: func(context.Context, *Request) (*Response, error) {
			return nil, apperr.New(apperr.CodeNotFound, "record not found")
		}},
		Route{Method: http.MethodGet, Template: "/boom", Handler: func(context.Context, *Request) (*Response, error) {
			panic("handler bug")
		}},
		Route{Method: http.MethodGet, Template: "/nilnil", Handler: func(context.Context, *Request) (*Response, error) {
			return nil, nil
		}},
	)
	s.d.Seal()

	s.Run("validation error carries the field map", func() {
		rec, envelope := s.serve(http.MethodPost, "/api/invalid", "", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("error", envelope["status"])
		s.Equal("invalid request", envelope["message"])
		fields, ok := envelope["fields"].(map[string]any)
		s.Require().True(ok)
		s.Equal("plate is required", fields["plate"])
	})

	s.Run("not found error maps to 404", func() {
		rec, _ := s.serve(http.MethodGet, "/api/missing", "", nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("panicking handler degrades to a 500 envelope", func() {
		rec, envelope := s.serve(http.MethodGet, "/api/boom", "", nil)
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.Equal("error", envelope["status"])
		s.NotContains(envelope["message"], "handler bug")
	})

	s.Run("nil response without error is an internal failure", func() {
		rec, _ := s.serve(http.MethodGet, "/api/nilnil", "", nil)
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}

func (s *DispatcherSuite) TestAuditWrapper() {
	s.d.MustRegister(
		Route{Method: http.MethodPost, Template: "/vehicule/create", AuditAction: "vehicule_created",
			Handler: func(context.Context, *Request) (*Response, error) {
				return &Response{Payload: map[string]any{"id": 7}, AuditPayload: map[string]any{"id": 7}}, nil
			}},
		Route{Method: http.MethodPost, Template: "/vehicule/{id}/update", AuditAction: "vehicule_updated",
			Handler: func(context.Context, *Request) (*Response, error) {
				return nil, apperr.New(apperr.CodeNotFound, "record not found")
			}},
		Route{Method: http.MethodGet, Template: "/vehicule/list", Handler: noop},
	)
	s.d.Seal()

	s.Run("successful audited route records exactly once", func() {
		s.serve(http.MethodPost, "/api/vehicule/create", "", nil)
		s.Require().Len(s.recorder.calls, 1)
		call := s.recorder.calls[0]
		s.Equal("vehicule_created", call.action)
		s.Equal("/vehicule/create", call.payload["route"])
		s.Equal(http.MethodPost, call.payload["method"])
		s.Equal(7, call.payload["id"])
	})

	s.Run("failed audited route records nothing", func() {
		s.recorder.calls = nil
		s.serve(http.MethodPost, "/api/vehicule/9/update", "", nil)
		s.Empty(s.recorder.calls)
	})

	s.Run("unaudited route records nothing", func() {
		s.recorder.calls = nil
		s.serve(http.MethodGet, "/api/vehicule/list", "", nil)
		s.Empty(s.recorder.calls)
	})
}

func (s *DispatcherSuite) TestSeal() {
	s.d.Seal()
	err := s.d.Register(Route{Method: http.MethodGet, Template: "/late", Handler: noop})
	s.Error(err)
}

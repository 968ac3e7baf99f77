package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"routier/internal/dispatch"
	"routier/internal/platform/metrics"
	"routier/internal/upload"
)

type auditCall struct {
	action  string
	payload map[string]any
}

type auditStub struct {
	calls []auditCall
}

func (a *auditStub) Record(_ context.Context, action string, payload map[string]any) {
	a.calls = append(a.calls, auditCall{action: action, payload: payload})
}

type HandlersSuite struct {
	suite.Suite
	store      *MemoryStore
	audit      *auditStub
	uploadRoot string
	d          *dispatch.Dispatcher
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

const testMaxUpload = 64

func (s *HandlersSuite) SetupTest() {
	log := slog.New(slog.DiscardHandler)
	m := metrics.NewWith(prometheus.NewRegistry())

	s.store = NewMemoryStore()
	s.audit = &auditStub{}
	s.uploadRoot = s.T().TempDir()

	ingestor := upload.NewIngestor(s.uploadRoot, log, m)
	handlers := NewHandlers(s.store, ingestor, s.audit, log, testMaxUpload)

	s.d = dispatch.New(log, m, s.audit, "/api")
	s.d.MustRegister(handlers.Routes()...)
	s.d.Seal()
}

// postJSON drives a request through the full dispatch path, the way a live
// client reaches these handlers.
func (s *HandlersSuite) postJSON(path string, body map[string]any) (int, map[string]any) {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *HandlersSuite) get(path string) (int, map[string]any) {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *HandlersSuite) postMultipart(path string, fields map[string]string, photos map[string]string) (int, map[string]any) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		s.Require().NoError(w.WriteField(k, v))
	}
	for name, content := range photos {
		fw, err := w.CreateFormFile("photos", name)
		s.Require().NoError(err)
		_, err = io.WriteString(fw, content)
		s.Require().NoError(err)
	}
	s.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.do(req)
}

func (s *HandlersSuite) do(req *http.Request) (int, map[string]any) {
	rec := httptest.NewRecorder()
	s.d.ServeHTTP(rec, req)
	var envelope map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec.Code, envelope
}

func (s *HandlersSuite) storedCount(category string) int {
	entries, err := os.ReadDir(filepath.Join(s.uploadRoot, category))
	if os.IsNotExist(err) {
		return 0
	}
	s.Require().NoError(err)
	return len(entries)
}

// ---------------------------------------------------------------------------
// Vehicles
// ---------------------------------------------------------------------------

func (s *HandlersSuite) TestVehicleLifecycle() {
	s.Run("create requires a plate", func() {
		code, envelope := s.postJSON("/api/vehicule/create", map[string]any{"brand": "Renault"})
		s.Equal(http.StatusBadRequest, code)
		fields := envelope["fields"].(map[string]any)
		s.Contains(fields, "plate")
	})

	s.Run("create, fetch, list, update", func() {
		code, envelope := s.postJSON("/api/vehicule/create", map[string]any{
			"plate": "AB-123-CD", "brand": "Renault", "model": "Clio", "color": "bleu",
		})
		s.Require().Equal(http.StatusOK, code)
		s.Equal("ok", envelope["status"])
		id := int64(envelope["id"].(float64))
		s.Positive(id)

		code, envelope = s.get(fmt.Sprintf("/api/vehicule/%d", id))
		s.Require().Equal(http.StatusOK, code)
		vehicle := envelope["vehicule"].(map[string]any)
		s.Equal("AB-123-CD", vehicle["plate"])

		code, envelope = s.get("/api/vehicule/list")
		s.Require().Equal(http.StatusOK, code)
		s.Len(envelope["vehicules"], 1)

		code, _ = s.postJSON(fmt.Sprintf("/api/vehicule/%d/update", id), map[string]any{"color": "rouge"})
		s.Require().Equal(http.StatusOK, code)

		v, err := s.store.GetVehicle(context.Background(), id)
		s.Require().NoError(err)
		s.Equal("rouge", v.Color)
		s.Equal("Clio", v.Model)
	})

	s.Run("fetching an absent vehicle is a 404", func() {
		code, envelope := s.get("/api/vehicule/9999")
		s.Equal(http.StatusNotFound, code)
		s.Equal("error", envelope["status"])
	})

	s.Run("non-numeric id is a validation failure", func() {
		code, _ := s.get("/api/vehicule/abc")
		s.Equal(http.StatusBadRequest, code)
	})
}

// ---------------------------------------------------------------------------
// Composed creation
// ---------------------------------------------------------------------------

func (s *HandlersSuite) TestCreateCompanyWithInfraction() {
	s.Run("stores both entities and the surviving photos", func() {
		oversized := strings.Repeat("x", testMaxUpload+1)
		code, envelope := s.postMultipart("/api/societe/create-with-contravention",
			map[string]string{
				"name":            "Transports Nord",
				"infraction_code": "C90",
				"fine_amount":     "45000",
			},
			map[string]string{
				"front.jpg": "photo one",
				"side.png":  "photo two",
				"huge.jpg":  oversized,
			})
		s.Require().Equal(http.StatusOK, code)
		s.Equal("ok", envelope["status"])

		companyID := int64(envelope["societe_id"].(float64))
		infractionID := int64(envelope["infraction_id"].(float64))
		s.Positive(companyID)
		s.Positive(infractionID)
		s.NotEqual(companyID, infractionID)

		photos := envelope["photos"].([]any)
		s.Len(photos, 2)
		s.Equal(2, s.storedCount("contraventions"))

		inf, err := s.store.GetInfraction(context.Background(), infractionID)
		s.Require().NoError(err)
		s.Equal(DossierCompany, inf.DossierType)
		s.Equal(companyID, inf.DossierID)
		s.Equal("C90", inf.Code)
		s.Equal(int64(45000), inf.FineAmount)

		// The route records its own ledger entry carrying both ids.
		s.Require().Len(s.audit.calls, 1)
		call := s.audit.calls[0]
		s.Equal("societe_created_with_contravention", call.action)
		s.Equal(companyID, call.payload["societe_id"])
		s.Equal(infractionID, call.payload["infraction_id"])
	})

	s.Run("dependent failure leaves nothing behind", func() {
		s.store.FailInfractionInsert = fmt.Errorf("infractions table refused the insert")
		defer func() { s.store.FailInfractionInsert = nil }()

		companies := s.store.CompanyCount()
		infractions := s.store.InfractionCount()
		stored := s.storedCount("contraventions")
		s.audit.calls = nil

		code, envelope := s.postMultipart("/api/societe/create-with-contravention",
			map[string]string{"name": "Phantom SARL", "infraction_code": "C1"},
			map[string]string{"proof.jpg": "photo"})
		s.Equal(http.StatusInternalServerError, code)
		s.Equal("error", envelope["status"])

		s.Equal(companies, s.store.CompanyCount())
		s.Equal(infractions, s.store.InfractionCount())
		s.Equal(stored, s.storedCount("contraventions"))
		s.Empty(s.audit.calls)
	})

	s.Run("missing infraction code fails before any write", func() {
		code, envelope := s.postMultipart("/api/societe/create-with-contravention",
			map[string]string{"name": "Sans Code SA"}, nil)
		s.Equal(http.StatusBadRequest, code)
		fields := envelope["fields"].(map[string]any)
		s.Contains(fields, "infraction_code")
	})
}

// ---------------------------------------------------------------------------
// Infractions
// ---------------------------------------------------------------------------

func (s *HandlersSuite) TestInfractions() {
	s.Run("create validates the dossier reference", func() {
		code, envelope := s.postJSON("/api/contravention/create", map[string]any{
			"code": "C90", "dossier_type": "planete", "dossier_id": 1,
		})
		s.Equal(http.StatusBadRequest, code)
		fields := envelope["fields"].(map[string]any)
		s.Contains(fields, "dossier_type")
	})

	s.Run("payment update flips the paid flag once", func() {
		code, envelope := s.postJSON("/api/contravention/create", map[string]any{
			"code": "C90", "dossier_type": "particulier", "dossier_id": 12, "fine_amount": 13500,
		})
		s.Require().Equal(http.StatusOK, code)
		id := int64(envelope["id"].(float64))

		code, envelope = s.postJSON(fmt.Sprintf("/api/contravention/%d/update-payment", id), nil)
		s.Require().Equal(http.StatusOK, code)
		s.Equal(true, envelope["paid"])

		inf, err := s.store.GetInfraction(context.Background(), id)
		s.Require().NoError(err)
		s.True(inf.Paid)
		s.NotNil(inf.PaidAt)
	})

	s.Run("payment update on an absent infraction is a 404", func() {
		code, _ := s.postJSON("/api/contravention/424242/update-payment", nil)
		s.Equal(http.StatusNotFound, code)
	})
}

// ---------------------------------------------------------------------------
// Accidents
// ---------------------------------------------------------------------------

func (s *HandlersSuite) TestAccidents() {
	s.Run("create splits scene and implicant photos", func() {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		s.Require().NoError(w.WriteField("location", "A6 km 112"))
		s.Require().NoError(w.WriteField("occurred_at", "2026-08-30"))
		s.Require().NoError(w.WriteField("description", "carambolage"))
		for field, name := range map[string]string{"photos": "scene.jpg", "photos_implicants": "conducteur.jpg"} {
			fw, err := w.CreateFormFile(field, name)
			s.Require().NoError(err)
			_, err = io.WriteString(fw, "jpeg bytes")
			s.Require().NoError(err)
		}
		s.Require().NoError(w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/accident/create", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		code, envelope := s.do(req)
		s.Require().Equal(http.StatusOK, code)
		s.Len(envelope["photos"], 1)
		s.Len(envelope["photos_implicants"], 1)
		s.Equal(1, s.storedCount("accidents"))
		s.Equal(1, s.storedCount("implicants"))

		id := int64(envelope["id"].(float64))
		code, envelope = s.get(fmt.Sprintf("/api/accident/%d", id))
		s.Require().Equal(http.StatusOK, code)
		accident := envelope["accident"].(map[string]any)
		s.Equal("A6 km 112", accident["location"])
		s.Len(accident["implicant_photos"], 1)
	})

	s.Run("create rejects a malformed date", func() {
		code, envelope := s.postJSON("/api/accident/create", map[string]any{
			"location": "D40", "occurred_at": "hier",
		})
		s.Equal(http.StatusBadRequest, code)
		fields := envelope["fields"].(map[string]any)
		s.Contains(fields, "occurred_at")
	})
}

// ---------------------------------------------------------------------------
// Bulletins and permits
// ---------------------------------------------------------------------------

func (s *HandlersSuite) TestBulletins() {
	code, envelope := s.postJSON("/api/avis-recherche/create", map[string]any{
		"target_type": "vehicule", "target_id": 3, "reason": "fuite apres accident",
	})
	s.Require().Equal(http.StatusOK, code)
	id := int64(envelope["id"].(float64))

	code, envelope = s.get("/api/avis-recherche/list")
	s.Require().Equal(http.StatusOK, code)
	bulletins := envelope["avis_recherche"].([]any)
	s.Require().Len(bulletins, 1)
	s.Equal(true, bulletins[0].(map[string]any)["active"])

	code, _ = s.postJSON(fmt.Sprintf("/api/avis-recherche/%d/close", id), nil)
	s.Require().Equal(http.StatusOK, code)

	_, envelope = s.get("/api/avis-recherche/list")
	bulletins = envelope["avis_recherche"].([]any)
	s.Equal(false, bulletins[0].(map[string]any)["active"])
}

func (s *HandlersSuite) TestPermits() {
	s.Run("rejects an inverted validity window", func() {
		code, envelope := s.postJSON("/api/permis-temporaire/create", map[string]any{
			"individual_id": 4, "plate": "XY-987-ZW",
			"valid_from": "2026-04-10", "valid_to": "2026-04-01",
		})
		s.Equal(http.StatusBadRequest, code)
		fields := envelope["fields"].(map[string]any)
		s.Contains(fields, "valid_to")
	})

	s.Run("accepts a well-formed permit", func() {
		code, envelope := s.postJSON("/api/permis-temporaire/create", map[string]any{
			"individual_id": 4, "plate": "XY-987-ZW",
			"valid_from": "2026-04-01", "valid_to": "2026-04-10",
		})
		s.Require().Equal(http.StatusOK, code)
		s.Positive(envelope["id"].(float64))
	})
}

// ---------------------------------------------------------------------------
// Audit wrapper integration
// ---------------------------------------------------------------------------

func (s *HandlersSuite) TestAuditedRoutes() {
	code, _ := s.postJSON("/api/vehicule/create", map[string]any{"plate": "AA-111-AA"})
	s.Require().Equal(http.StatusOK, code)

	s.Require().Len(s.audit.calls, 1)
	s.Equal("vehicule_created", s.audit.calls[0].action)
	s.Equal("/vehicule/create", s.audit.calls[0].payload["route"])

	// Reads stay out of the ledger.
	s.audit.calls = nil
	s.get("/api/vehicule/list")
	s.Empty(s.audit.calls)
}

package auth

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"routier/internal/dispatch"
	"routier/internal/platform/database"
	"routier/internal/platform/metrics"
	"routier/pkg/apperr"
	"routier/pkg/requestcontext"
	"routier/pkg/testutil/sqlstub"
)

var authStub = sqlstub.New()

func init() {
	sqlstub.Register("auth-stub", authStub)
}

type AuthSuite struct {
	suite.Suite
	tokens  *TokenService
	service *Service
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthSuite))
}

func (s *AuthSuite) SetupTest() {
	authStub.QueryHook = nil

	manager := database.NewManager(database.Options{
		Logger:     slog.New(slog.DiscardHandler),
		Metrics:    metrics.NewWith(prometheus.NewRegistry()),
		Primary:    database.Target{Name: "primary", DSN: "auth-dsn"},
		DriverName: "auth-stub",
	})
	s.tokens = NewTokenService("test-signing-key", time.Hour)
	s.service = NewService(database.NewHandle(manager), s.tokens, slog.New(slog.DiscardHandler))
}

// userRow scripts the users lookup to return one stored account.
func (s *AuthSuite) userRow(username, password, role string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	s.Require().NoError(err)
	authStub.QueryHook = func(query string) ([]string, [][]driver.Value, error) {
		return []string{"id", "username", "password_hash", "full_name", "role"},
			[][]driver.Value{{int64(1), username, string(hash), "Agent Dupont", role}}, nil
	}
}

func (s *AuthSuite) noUserRow() {
	authStub.QueryHook = func(query string) ([]string, [][]driver.Value, error) {
		return []string{"id", "username", "password_hash", "full_name", "role"}, nil, nil
	}
}

func (s *AuthSuite) TestLogin() {
	s.Run("valid credentials return a token and the user", func() {
		s.userRow("agent.dupont", "s3cret", "admin")
		token, user, err := s.service.Login(context.Background(), "agent.dupont", "s3cret")
		s.Require().NoError(err)
		s.NotEmpty(token)
		s.Equal("agent.dupont", user.Username)
		s.Equal("admin", user.Role)

		claims, err := s.tokens.Validate(token)
		s.Require().NoError(err)
		s.Equal("agent.dupont", claims.Username)
		s.Equal("admin", claims.Role)
	})

	s.Run("wrong password is a generic unauthorized", func() {
		s.userRow("agent.dupont", "s3cret", "agent")
		_, _, err := s.service.Login(context.Background(), "agent.dupont", "wrong")
		s.Require().Error(err)
		s.Equal(apperr.CodeUnauthorized, apperr.CodeOf(err))
		s.Equal("invalid credentials", apperr.MessageOf(err))
	})

	s.Run("unknown user gets the same generic message", func() {
		s.noUserRow()
		_, _, err := s.service.Login(context.Background(), "nobody", "whatever")
		s.Require().Error(err)
		s.Equal(apperr.CodeUnauthorized, apperr.CodeOf(err))
		s.Equal("invalid credentials", apperr.MessageOf(err))
	})

	s.Run("empty credentials fail validation before any lookup", func() {
		for _, c := range []struct{ username, password string }{
			{"", ""},
			{"agent.dupont", ""},
			{"   ", "s3cret"},
		} {
			_, _, err := s.service.Login(context.Background(), c.username, c.password)
			s.Require().Error(err)
			s.Equal(apperr.CodeValidation, apperr.CodeOf(err))
			s.Equal("username and password are required", apperr.FieldsOf(err)["credentials"])
		}
	})
}

func (s *AuthSuite) TestTokens() {
	s.Run("expired token is rejected", func() {
		expired := NewTokenService("test-signing-key", -time.Minute)
		token, err := expired.Generate("agent.dupont", "agent")
		s.Require().NoError(err)
		_, err = s.tokens.Validate(token)
		s.Error(err)
	})

	s.Run("token signed with another key is rejected", func() {
		other := NewTokenService("other-key", time.Hour)
		token, err := other.Generate("agent.dupont", "agent")
		s.Require().NoError(err)
		_, err = s.tokens.Validate(token)
		s.Error(err)
	})

	s.Run("garbage token is rejected", func() {
		_, err := s.tokens.Validate("not-a-jwt")
		s.Error(err)
	})
}

func (s *AuthSuite) TestMiddleware() {
	var actor string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = requestcontext.Actor(r.Context())
	})
	handler := Middleware(s.tokens)(next)

	s.Run("valid bearer token resolves the actor", func() {
		token, err := s.tokens.Generate("agent.martin", "agent")
		s.Require().NoError(err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		s.Equal("agent.martin", actor)
	})

	s.Run("absent header stays anonymous", func() {
		actor = "stale"
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		s.Empty(actor)
	})

	s.Run("invalid token stays anonymous rather than failing", func() {
		actor = "stale"
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		s.Empty(actor)
	})
}

func (s *AuthSuite) TestLoginRoute() {
	recorder := &recorderStub{}
	d := dispatch.New(slog.New(slog.DiscardHandler), metrics.NewWith(prometheus.NewRegistry()), recorder, "/api")
	d.MustRegister(NewHandler(s.service).Routes()...)
	d.Seal()

	post := func(body map[string]any) (int, map[string]any) {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, req)
		var envelope map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &envelope))
		return rec.Code, envelope
	}

	s.Run("empty password is a field-level validation failure", func() {
		code, envelope := post(map[string]any{"username": "agent.dupont", "password": ""})
		s.Equal(http.StatusBadRequest, code)
		s.Equal("error", envelope["status"])
		fields := envelope["fields"].(map[string]any)
		s.Equal("username and password are required", fields["credentials"])
		s.Empty(recorder.calls)
	})

	s.Run("successful login is audited with the username", func() {
		s.userRow("agent.dupont", "s3cret", "agent")
		code, envelope := post(map[string]any{"username": "agent.dupont", "password": "s3cret"})
		s.Require().Equal(http.StatusOK, code)
		s.Equal("ok", envelope["status"])
		s.NotEmpty(envelope["token"])

		s.Require().Len(recorder.calls, 1)
		s.Equal("user_login", recorder.calls[0].action)
		s.Equal("agent.dupont", recorder.calls[0].payload["username"])
	})
}

// recorderStub captures audit wrapper calls.
type recorderStub struct {
	calls []struct {
		action  string
		payload map[string]any
	}
}

func (r *recorderStub) Record(_ context.Context, action string, payload map[string]any) {
	r.calls = append(r.calls, struct {
		action  string
		payload map[string]any
	}{action, payload})
}

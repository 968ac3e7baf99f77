package dispatch

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
)

type RouteSuite struct {
	suite.Suite
}

func TestRouteSuite(t *testing.T) {
	suite.Run(t, new(RouteSuite))
}

func noop(context.Context, *Request) (*Response, error) {
	return OK(nil), nil
}

func (s *RouteSuite) compileTemplate(template string) compiledRoute {
	cr, err := compile(Route{Method: http.MethodGet, Template: template, Handler: noop})
	s.Require().NoError(err)
	return cr
}

func (s *RouteSuite) TestCompile() {
	s.Run("rejects nil handler", func() {
		_, err := compile(Route{Method: http.MethodGet, Template: "/x"})
		s.Error(err)
	})

	s.Run("rejects relative template", func() {
		_, err := compile(Route{Method: http.MethodGet, Template: "x/y", Handler: noop})
		s.Error(err)
	})

	s.Run("rejects partial-segment braces", func() {
		for _, template := range []string{"/x/{id", "/x/id}", "/x/a{id}b", "/x/{}"} {
			_, err := compile(Route{Method: http.MethodGet, Template: template, Handler: noop})
			s.Error(err, template)
		}
	})

	s.Run("accepts multi-placeholder template", func() {
		cr := s.compileTemplate("/a/{x}/b/{y}")
		s.Len(cr.segments, 4)
	})
}

func (s *RouteSuite) TestMatch() {
	s.Run("literal template matches exactly", func() {
		cr := s.compileTemplate("/vehicule/list")
		params, ok := cr.match("/vehicule/list")
		s.True(ok)
		s.Empty(params)

		_, ok = cr.match("/vehicule/list/extra")
		s.False(ok)
		_, ok = cr.match("/vehicule")
		s.False(ok)
	})

	s.Run("placeholders capture in template order", func() {
		cr := s.compileTemplate("/dossier/{type}/{id}/pieces/{piece}")
		params, ok := cr.match("/dossier/societe/42/pieces/7")
		s.True(ok)
		s.Equal([]string{"societe", "42", "7"}, params)
	})

	s.Run("placeholder never spans segments", func() {
		cr := s.compileTemplate("/vehicule/{id}")
		_, ok := cr.match("/vehicule/1/2")
		s.False(ok)
	})

	s.Run("trailing slash is equivalent", func() {
		cr := s.compileTemplate("/vehicule/list")
		_, ok := cr.match("/vehicule/list/")
		s.True(ok)
	})
}

package dispatch

import (
	"context"
	"fmt"
	"strings"
)

// HandlerFunc is the shape every business handler implements. Handlers return
// a typed result; they never touch the ResponseWriter. The dispatcher alone
// translates errors into envelopes.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Route pairs an HTTP method and a path template with a handler. Templates
// are literal paths with brace-delimited placeholders:
//
//	/vehicule/{id}/update
//
// A placeholder spans exactly one segment and never contains '/'.
type Route struct {
	Method   string
	Template string
	Handler  HandlerFunc

	// AuditAction opts the route into the audit wrapper: after a successful
	// call, exactly one ledger entry is appended under this label. Routes
	// whose handlers record directly leave it empty.
	AuditAction string
}

type segment struct {
	literal     string
	placeholder bool
}

// compiledRoute is a Route pre-split into segments at registration time so
// matching is segment-count plus literal-equality, no regexp involved.
type compiledRoute struct {
	method      string
	template    string
	segments    []segment
	auditAction string
	handler     HandlerFunc
}

func compile(r Route) (compiledRoute, error) {
	if r.Handler == nil {
		return compiledRoute{}, fmt.Errorf("route %s %s: nil handler", r.Method, r.Template)
	}
	if !strings.HasPrefix(r.Template, "/") {
		return compiledRoute{}, fmt.Errorf("route %s %s: template must start with '/'", r.Method, r.Template)
	}

	parts := splitPath(r.Template)
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" || strings.ContainsAny(name, "{}/") {
				return compiledRoute{}, fmt.Errorf("route %s %s: bad placeholder %q", r.Method, r.Template, part)
			}
			segments = append(segments, segment{placeholder: true})
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return compiledRoute{}, fmt.Errorf("route %s %s: braces must delimit a whole segment", r.Method, r.Template)
		}
		segments = append(segments, segment{literal: part})
	}

	return compiledRoute{
		method:      r.Method,
		template:    r.Template,
		segments:    segments,
		auditAction: r.AuditAction,
		handler:     r.Handler,
	}, nil
}

// match reports whether path matches the template and returns placeholder
// values in left-to-right order. Matching is anchored at both ends.
func (cr compiledRoute) match(path string) ([]string, bool) {
	parts := splitPath(path)
	if len(parts) != len(cr.segments) {
		return nil, false
	}

	var params []string
	for i, seg := range cr.segments {
		if seg.placeholder {
			params = append(params, parts[i])
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

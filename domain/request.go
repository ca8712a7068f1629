package domain

import (
	"net/http"
	"net/url"
)

// Query parameters and headers consulted by the authorization flow.
const (
	ParamCode             = "code"
	ParamState            = "state"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
	HeaderReferer         = "Referer"
)

// RequestToken wraps an inbound authentication request. It is read-only and lives for a
// single pass through the flow.
type RequestToken struct {
	Query  url.Values
	Header http.Header
}

// NewRequestToken captures the query and headers of r.
func NewRequestToken(r *http.Request) *RequestToken {
	return &RequestToken{
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	}
}

func (r *RequestToken) param(name string) string {
	if r == nil || r.Query == nil {
		return ""
	}
	return r.Query.Get(name)
}

func (r *RequestToken) Code() string             { return r.param(ParamCode) }
func (r *RequestToken) State() string            { return r.param(ParamState) }
func (r *RequestToken) Error() string            { return r.param(ParamError) }
func (r *RequestToken) ErrorDescription() string { return r.param(ParamErrorDescription) }

// Referer returns the first Referer header value, used as the post-login target.
func (r *RequestToken) Referer() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get(HeaderReferer)
}

package ckan

import (
	"encoding/base64"
	"net/http"
)

// Authenticator applies authentication to outgoing catalog requests.
type Authenticator interface {
	Apply(req *http.Request)
}

// NoAuth applies no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request) {}

// BasicAuth implements HTTP basic authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements the Authenticator interface for BasicAuth.
func (a *BasicAuth) Apply(req *http.Request) {
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+credentials)
}

// HeaderAuth implements custom header authentication.
type HeaderAuth struct {
	Header string
	Key    string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request) {
	if a.Key == "" {
		return
	}
	req.Header.Set(a.Header, a.Key)
}

// APIKeyHeader is the header CKAN reads datastore API keys from.
const APIKeyHeader = "X-CKAN-API-Key"

// APIKeyAuth returns a HeaderAuth for the standard CKAN API key header.
func APIKeyAuth(key string) *HeaderAuth {
	return &HeaderAuth{Header: APIKeyHeader, Key: key}
}

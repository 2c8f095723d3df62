// -------------------------------------------------------------------------------
// Authentication - Caller Identity and Credential Extraction
//
// Author: Alex Freidah
//
// Resolves the caller identity and authentication method for incoming REST
// requests. HTTP Basic credentials are passed through to the broker as
// SCRAM-SHA-256 SASL credentials; the proxy itself never verifies secrets,
// the broker does that on connect. Requests without an Authorization header
// fall back to the shared anonymous identity configured for the proxy.
// -------------------------------------------------------------------------------

package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Method identifies how a request authenticated to the proxy.
type Method int

const (
	// MethodNone means the request carried no credentials; the broker client
	// uses the proxy's configured anonymous identity.
	MethodNone Method = iota

	// MethodBasic means the request carried HTTP Basic credentials, which are
	// overlaid onto the broker client as SCRAM-SHA-256.
	MethodBasic
)

// String returns the method name for logs and span attributes.
func (m Method) String() string {
	switch m {
	case MethodBasic:
		return "http_basic"
	default:
		return "none"
	}
}

// Credentials is a caller principal and its secret. The name is the client
// cache key; the secret is only ever handed to the broker client.
type Credentials struct {
	Name string
	Pass string
}

// FromRequest extracts the caller credentials and authentication method from
// an HTTP request. Requests without an Authorization header resolve to
// MethodNone with empty credentials. Unsupported schemes and malformed Basic
// headers are errors.
func FromRequest(r *http.Request) (Credentials, Method, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Credentials{}, MethodNone, nil
	}

	if !strings.HasPrefix(header, "Basic ") {
		scheme, _, _ := strings.Cut(header, " ")
		return Credentials{}, MethodNone, fmt.Errorf("unsupported authorization scheme %q", scheme)
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return Credentials{}, MethodNone, fmt.Errorf("malformed Basic authorization header")
	}
	if user == "" {
		return Credentials{}, MethodNone, fmt.Errorf("empty username in Basic authorization header")
	}

	return Credentials{Name: user, Pass: pass}, MethodBasic, nil
}

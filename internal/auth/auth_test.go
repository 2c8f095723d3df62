// -------------------------------------------------------------------------------
// Authentication Tests - Credential Extraction
//
// Author: Alex Freidah
//
// Unit tests for Authorization header parsing: Basic credentials, anonymous
// fallback, unsupported schemes, and malformed headers.
// -------------------------------------------------------------------------------

package auth

import (
	"encoding/base64"
	"net/http/httptest"
	"testing"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		wantCreds  Credentials
		wantMethod Method
		wantErr    bool
	}{
		{
			name:       "no header is anonymous",
			authHeader: "",
			wantCreds:  Credentials{},
			wantMethod: MethodNone,
		},
		{
			name:       "basic credentials",
			authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret")),
			wantCreds:  Credentials{Name: "alice", Pass: "secret"},
			wantMethod: MethodBasic,
		},
		{
			name:       "basic with empty password",
			authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:")),
			wantCreds:  Credentials{Name: "alice"},
			wantMethod: MethodBasic,
		},
		{
			name:       "empty username rejected",
			authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(":secret")),
			wantErr:    true,
		},
		{
			name:       "malformed base64 rejected",
			authHeader: "Basic !!!not-base64!!!",
			wantErr:    true,
		},
		{
			name:       "bearer scheme rejected",
			authHeader: "Bearer sometoken",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/topics/events", nil)
			if tt.authHeader != "" {
				r.Header.Set("Authorization", tt.authHeader)
			}

			creds, method, err := FromRequest(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FromRequest: %v", err)
			}
			if creds != tt.wantCreds {
				t.Errorf("creds = %+v, want %+v", creds, tt.wantCreds)
			}
			if method != tt.wantMethod {
				t.Errorf("method = %v, want %v", method, tt.wantMethod)
			}
		})
	}
}

func TestMethodString(t *testing.T) {
	if MethodNone.String() != "none" {
		t.Errorf("MethodNone = %q", MethodNone.String())
	}
	if MethodBasic.String() != "http_basic" {
		t.Errorf("MethodBasic = %q", MethodBasic.String())
	}
}

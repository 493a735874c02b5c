package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret-key-for-unit-tests-only"
	testIssuer = "teleconsulta-test"
)

func signed(t *testing.T, claims Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func validClaims(subject string, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
}

func TestIssueAndVerify(t *testing.T) {
	id := uuid.New()
	tok, err := IssueToken(testSecret, testIssuer, id, RolePractitioner, time.Hour)
	require.NoError(t, err)

	p, err := NewVerifier(testSecret, testIssuer).Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Subject: id, Role: RolePractitioner}, p)

	_, err = IssueToken(testSecret, testIssuer, id, "root", time.Hour)
	assert.Error(t, err)
}

func TestVerify_Rejections(t *testing.T) {
	v := NewVerifier(testSecret, testIssuer)
	id := uuid.NewString()

	expired := validClaims(id, RolePatient)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims(id, RolePatient)
	noExpiry.ExpiresAt = nil

	otherIssuer := validClaims(id, RolePatient)
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", signed(t, validClaims(id, RolePatient), jwt.SigningMethodHS256, []byte("other"))},
		{"wrong algorithm", signed(t, validClaims(id, RolePatient), jwt.SigningMethodHS512, []byte(testSecret))},
		{"expired", signed(t, expired, jwt.SigningMethodHS256, []byte(testSecret))},
		{"no expiry", signed(t, noExpiry, jwt.SigningMethodHS256, []byte(testSecret))},
		{"other issuer", signed(t, otherIssuer, jwt.SigningMethodHS256, []byte(testSecret))},
		{"subject not uuid", signed(t, validClaims("user-42", RolePatient), jwt.SigningMethodHS256, []byte(testSecret))},
		{"unknown role", signed(t, validClaims(id, "nurse"), jwt.SigningMethodHS256, []byte(testSecret))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(testSecret, testIssuer)
	id := uuid.New()
	tok, err := IssueToken(testSecret, testIssuer, id, RolePatient, time.Hour)
	require.NoError(t, err)

	var seen Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		allowQuery bool
		header     string
		query      string
		wantStatus int
	}{
		{"bearer header", false, "Bearer " + tok, "", http.StatusNoContent},
		{"lowercase scheme", false, "bearer " + tok, "", http.StatusNoContent},
		{"missing", false, "", "", http.StatusUnauthorized},
		{"basic auth", false, "Basic dXNlcjpwYXNz", "", http.StatusUnauthorized},
		{"empty bearer", false, "Bearer ", "", http.StatusUnauthorized},
		{"invalid token", false, "Bearer abc.def.ghi", "", http.StatusUnauthorized},
		{"query not allowed", false, "", tok, http.StatusUnauthorized},
		{"query allowed", true, "", tok, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = Principal{}
			target := "/"
			if tt.query != "" {
				target += "?" + QueryTokenParam + "=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			v.Middleware(tt.allowQuery)(next).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "unauthorized", body["code"])
				assert.NotEmpty(t, body["error"])
				assert.Equal(t, Principal{}, seen)
				return
			}
			assert.Equal(t, id, seen.Subject)
			assert.Equal(t, RolePatient, seen.Role)
		})
	}
}

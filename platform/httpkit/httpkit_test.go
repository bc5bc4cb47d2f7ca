package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sales_pipeline_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testJWTConfig struct{ secret string }

func (c testJWTConfig) GetJWTAccessSecret() string { return c.secret }

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthRequiredPopulatesIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	tenantID := uuid.New()

	var got Identity
	var gotTenant uuid.UUID
	r := gin.New()
	r.GET("/me", AuthRequired(testJWTConfig{secret: "s3cret"}), func(c *gin.Context) {
		id, tenant, ok := MustGetTenantID(c)
		if !ok {
			return
		}
		got = id
		gotTenant = tenant
		c.Status(http.StatusNoContent)
	})

	token := signToken(t, "s3cret", jwt.MapClaims{
		"sub":       userID.String(),
		"tenant_id": tenantID.String(),
		"name":      "Dana Reyes",
		"roles":     []any{"admin"},
		"type":      "access",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UserID() != userID || gotTenant != tenantID {
		t.Fatalf("identity not populated: %v %v", got.UserID(), gotTenant)
	}
	if !got.HasRole(RoleAdmin) || got.Name() != "Dana Reyes" {
		t.Fatalf("unexpected identity roles=%v name=%q", got.Roles(), got.Name())
	}
}

func TestAuthRequiredRejectsWrongSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthRequired(testJWTConfig{secret: "right"}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	token := signToken(t, "wrong", jwt.MapClaims{"sub": uuid.NewString(), "type": "access"})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMustGetTenantIDRequiresOrganization(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthRequired(testJWTConfig{secret: "k"}), func(c *gin.Context) {
		if _, _, ok := MustGetTenantID(c); !ok {
			return
		}
		c.Status(http.StatusNoContent)
	})

	token := signToken(t, "k", jwt.MapClaims{"sub": uuid.NewString(), "type": "access"})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleErrorMapsWrappedKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{fmt.Errorf("move: %w", apperr.Conflict("deal was modified concurrently")), http.StatusConflict, "deal was modified concurrently"},
		{apperr.NotFound("deal not found"), http.StatusNotFound, "deal not found"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		if !HandleError(c, tc.err) {
			t.Fatalf("expected error to be handled")
		}
		if rec.Code != tc.wantStatus {
			t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
		}
		var body ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error != tc.wantMsg {
			t.Fatalf("expected %q, got %q", tc.wantMsg, body.Error)
		}
	}
}

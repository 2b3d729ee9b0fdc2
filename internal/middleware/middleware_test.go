package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/models"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type recordingObserver struct {
	method string
	path   string
	status int
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.method, r.path, r.status = method, path, status
}

func serve(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRBAC(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleStaff}}

	router := gin.New()
	router.GET("/staff/:id", JWT(validator), RBAC(string(models.RoleManagement), SelfParam), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})
	router.GET("/management", JWT(validator), RequireRoles(models.RoleManagement), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "missing header", path: "/staff/u-1", want: http.StatusUnauthorized},
		{name: "malformed header", path: "/staff/u-1", header: "Token good", want: http.StatusUnauthorized},
		{name: "bad token", path: "/staff/u-1", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "self access", path: "/staff/u-1", header: "Bearer good", want: http.StatusOK},
		{name: "other user", path: "/staff/u-2", header: "Bearer good", want: http.StatusForbidden},
		{name: "role mismatch", path: "/management", header: "Bearer good", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			rec := serve(router, http.MethodGet, tc.path, headers)
			if rec.Code != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOptionalJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent}}

	router := gin.New()
	router.GET("/", OptionalJWT(validator), func(c *gin.Context) {
		if claims := Claims(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	if rec := serve(router, http.MethodGet, "/", nil); rec.Body.String() != "anonymous" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if rec := serve(router, http.MethodGet, "/", map[string]string{"Authorization": "Bearer nope"}); rec.Body.String() != "anonymous" {
		t.Fatalf("invalid token should be ignored, got %s", rec.Body.String())
	}
	if rec := serve(router, http.MethodGet, "/", map[string]string{"Authorization": "Bearer good"}); rec.Body.String() != "u-1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestGatewaySecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/payments/events", GatewaySecret("s3cret"), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	closed := gin.New()
	closed.POST("/payments/events", GatewaySecret(""), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	if rec := serve(router, http.MethodPost, "/payments/events", map[string]string{GatewaySecretHeader: "s3cret"}); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/payments/events", map[string]string{GatewaySecretHeader: "guess"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if rec := serve(closed, http.MethodPost, "/payments/events", map[string]string{GatewaySecretHeader: ""}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when unconfigured, got %d", rec.Code)
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/instances/:id", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusTeapot)
	})

	serve(router, http.MethodGet, "/instances/yoga_202401020900", nil)
	if observer.path != "/instances/:id" || observer.status != http.StatusTeapot || observer.method != http.MethodGet {
		t.Fatalf("unexpected observation: %+v", observer)
	}

	serve(router, http.MethodGet, "/nowhere", nil)
	if observer.path != "unmatched" || observer.status != http.StatusNotFound {
		t.Fatalf("unexpected observation: %+v", observer)
	}
}

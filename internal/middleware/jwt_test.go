package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/cinema-booking-backend/internal/model"
    "github.com/iliyamo/cinema-booking-backend/internal/utils"
)

const testSecret = "test-jwt-secret"

func protectedApp(extra ...echo.MiddlewareFunc) *echo.Echo {
    e := echo.New()
    mws := append([]echo.MiddlewareFunc{JWTAuth(testSecret)}, extra...)
    e.GET("/protected", func(c echo.Context) error {
        return c.JSON(http.StatusOK, echo.Map{
            "user_id": UserID(c),
            "role":    Role(c),
        })
    }, mws...)
    return e
}

func doReq(e *echo.Echo, authorization string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(http.MethodGet, "/protected", nil)
    if authorization != "" {
        req.Header.Set("Authorization", authorization)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
    tok, err := utils.NewAccessToken(testSecret, 7, model.RoleCustomer, 15)
    require.NoError(t, err)

    rec := doReq(protectedApp(), "Bearer "+tok.Token)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"user_id":7`)
    assert.Contains(t, rec.Body.String(), `"role":"CUSTOMER"`)
}

func TestJWTAuthRejects(t *testing.T) {
    wrongKey, err := utils.NewAccessToken("other-secret", 7, model.RoleCustomer, 15)
    require.NoError(t, err)
    expired, err := utils.NewAccessToken(testSecret, 7, model.RoleCustomer, -5)
    require.NoError(t, err)

    tests := []struct {
        name   string
        header string
    }{
        {"missing header", ""},
        {"not bearer", "Basic abc"},
        {"garbage token", "Bearer not.a.jwt"},
        {"wrong key", "Bearer " + wrongKey.Token},
        {"expired", "Bearer " + expired.Token},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            rec := doReq(protectedApp(), tt.header)
            assert.Equal(t, http.StatusUnauthorized, rec.Code)
        })
    }
}

func TestRequireRole(t *testing.T) {
    staffOnly := protectedApp(RequireRole(model.RoleStaff, model.RoleAdmin))

    customer, err := utils.NewAccessToken(testSecret, 7, model.RoleCustomer, 15)
    require.NoError(t, err)
    staff, err := utils.NewAccessToken(testSecret, 8, model.RoleStaff, 15)
    require.NoError(t, err)

    assert.Equal(t, http.StatusForbidden, doReq(staffOnly, "Bearer "+customer.Token).Code)
    assert.Equal(t, http.StatusOK, doReq(staffOnly, "Bearer "+staff.Token).Code)
}

func TestIdentityHelpersAnonymous(t *testing.T) {
    e := echo.New()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

    assert.Zero(t, UserID(c))
    assert.Empty(t, Role(c))
    assert.False(t, Privileged(c))
    assert.Equal(t, "anon", rateKeyUser(c))
}

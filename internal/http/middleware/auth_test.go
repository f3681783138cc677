package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nurpe/aquaroute/internal/model"
)

type stubParser map[string]model.Principal

func (s stubParser) Parse(token string) (model.Principal, error) {
	p, ok := s[token]
	if !ok {
		return model.Principal{}, errors.New("bad token")
	}
	return p, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	parser := stubParser{
		"company-token": {UserID: "1", Role: model.RoleCompany},
		"driver-token":  {UserID: "2", Role: model.RoleDriver},
	}
	group := router.Group("/", Auth(parser))
	group.GET("/any", func(c *gin.Context) {
		p, _ := MustPrincipal(c)
		c.String(http.StatusOK, string(p.Role))
	})
	group.GET("/company", RequireCompany(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func TestAuth(t *testing.T) {
	router := newTestRouter()
	cases := []struct {
		path   string
		header string
		want   int
	}{
		{"/any", "", http.StatusUnauthorized},
		{"/any", "Bearer nope", http.StatusUnauthorized},
		{"/any", "company-token", http.StatusUnauthorized},
		{"/any", "Bearer driver-token", http.StatusOK},
		{"/company", "Bearer driver-token", http.StatusForbidden},
		{"/company", "Bearer company-token", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s with %q: expected %d, got %d", tc.path, tc.header, tc.want, rec.Code)
		}
	}
}

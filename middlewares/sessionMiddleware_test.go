package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/exchange_backend/utils"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/open", func(c *gin.Context) {
		id, _ := utils.GetUserIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	r.GET("/member", RequireSession(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r *gin.Engine, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestSessionMiddlewareRoles(t *testing.T) {
	t.Setenv("API_SECRET", "middleware-test")
	r := newTestRouter()

	member, err := utils.JwtGenerate(7, "pilot", "M")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	admin, err := utils.JwtGenerate(1, "director", "A")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	cases := []struct {
		path  string
		token string
		want  int
	}{
		{"/open", "", http.StatusOK},
		{"/open", "garbage", http.StatusUnauthorized},
		{"/member", "", http.StatusUnauthorized},
		{"/member", member, http.StatusNoContent},
		{"/admin", member, http.StatusForbidden},
		{"/admin", admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		if got := do(r, tc.path, tc.token); got != tc.want {
			t.Errorf("%s with token %q: expected %d, got %d", tc.path, tc.token, tc.want, got)
		}
	}
}

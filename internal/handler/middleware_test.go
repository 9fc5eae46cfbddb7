package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/auth"
)

var testSecret = []byte("handler-test-secret")

func newAuthedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", AuthRequired(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId":   c.GetString(CtxUserID),
			"username": c.GetString(CtxUsername),
		})
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	router := newAuthedRouter()
	valid, err := auth.NewToken(testSecret, "u1", "aisha", "teacher", time.Hour)
	if err != nil {
		t.Fatalf("NewToken() failed: %v", err)
	}
	expired, _ := auth.NewToken(testSecret, "u1", "aisha", "teacher", -time.Hour)

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{name: "no header", wantCode: http.StatusUnauthorized},
		{name: "not bearer", header: valid, wantCode: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantCode: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"userId":"u1"`)
				assert.Contains(t, rec.Body.String(), `"username":"aisha"`)
			}
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceOf(t *testing.T, header string) (body, responseHeader string) {
	t.Helper()
	r := gin.New()
	r.Use(TraceID())
	r.GET("/trace", func(c *gin.Context) { c.String(http.StatusOK, GetTraceID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	if header != "" {
		req.Header.Set(TraceIDHeader, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String(), w.Header().Get(TraceIDHeader)
}

func TestTraceID_Generated(t *testing.T) {
	id, header := traceOf(t, "")
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, header)
}

func TestTraceID_ReusesValidUUID(t *testing.T) {
	in := uuid.NewString()
	id, header := traceOf(t, in)
	assert.Equal(t, in, id)
	assert.Equal(t, in, header)
}

func TestTraceID_ReplacesGarbage(t *testing.T) {
	id, _ := traceOf(t, "my-custom-trace")
	assert.NotEqual(t, "my-custom-trace", id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestTraceID_UniquePerRequest(t *testing.T) {
	a, _ := traceOf(t, "")
	b, _ := traceOf(t, "")
	assert.NotEqual(t, a, b)
}

func TestGetTraceID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
}

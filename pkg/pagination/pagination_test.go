package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewClamps(t *testing.T) {
	p := New(0, 0)
	assert.Equal(t, DefaultPage, p.Page)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, 0, p.Offset)

	p = New(3, 500)
	assert.Equal(t, MaxLimit, p.Limit)
	assert.Equal(t, 200, p.Offset)
}

func TestParseFromQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/finance?page=2&limit=10", nil)

	p := Parse(c)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 10, p.Offset)
}

func TestMetaFor(t *testing.T) {
	m := New(1, 20).MetaFor(41)
	assert.Equal(t, int64(3), m.TotalPages)
	assert.Equal(t, int64(41), m.Total)

	assert.Equal(t, int64(0), New(1, 20).MetaFor(0).TotalPages)
}

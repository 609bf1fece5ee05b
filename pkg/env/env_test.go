package env

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionHandler(t *testing.T) {
	assert := assert.New(t)
	assert.False(IsProd())

	Version = "v1.2.3"
	defer func() { Version = unset }()
	assert.True(IsProd())

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest("GET", "/version", nil))
	assert.Equal("v1.2.3\n", rec.Body.String())
}

package Token

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWithRequest(req *http.Request) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func TestGenerateAndExtract(t *testing.T) {
	Configure("test-secret", 1)

	token, err := GenerateToken(42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := contextWithRequest(req)

	require.NoError(t, TokenValid(c))
	id, err := ExtractTokenID(c)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestExtractFromQuery(t *testing.T) {
	Configure("test-secret", 1)

	token, err := GenerateToken(7)
	require.NoError(t, err)

	c := contextWithRequest(httptest.NewRequest(http.MethodGet, "/?token="+token, nil))
	id, err := ExtractTokenID(c)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestRejectsForeignSignature(t *testing.T) {
	Configure("first-secret", 1)
	token, err := GenerateToken(1)
	require.NoError(t, err)

	Configure("second-secret", 1)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Error(t, TokenValid(contextWithRequest(req)))
}

func TestMissingToken(t *testing.T) {
	Configure("test-secret", 1)
	assert.Error(t, TokenValid(contextWithRequest(httptest.NewRequest(http.MethodGet, "/", nil))))
}

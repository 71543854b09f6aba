package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Symbol string  `json:"symbol" validate:"required"`
	Start  string  `json:"start" validate:"required,datetime=2006-01-02"`
	Size   float64 `json:"size" default:"10000" validate:"gt=0"`
}

func newContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestDataResponseWritesStatusCode(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	require.NoError(t, AcceptedResponse(c, map[string]string{"sim_id": "x"}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusAccepted, body.Status)
	assert.Equal(t, "Accepted", body.Message)
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	require.NoError(t, AppErrorResponse(c, NotFoundErrorf("simulation %s not found", "abc")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "simulation abc not found")

	c, rec = newContext(http.MethodGet, "")
	require.NoError(t, AppErrorResponse(c, assert.AnError))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReadAndValidateRequest(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"symbol":"SPY","start":"2024-01-02"}`)
	var req sampleRequest
	assert.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, 10000.0, req.Size)

	c, _ = newContext(http.MethodPost, `{"symbol":"SPY","start":"01/02/2024"}`)
	req = sampleRequest{}
	errs := ReadAndValidateRequest(c, &req)
	require.NotNil(t, errs)
	verrs, ok := errs.([]ValidationError)
	require.True(t, ok)
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_DATETIME", verrs[0].Code)
	assert.Equal(t, "2006-01-02", verrs[0].Params["layout"])
}

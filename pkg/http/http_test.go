package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name   string `json:"name" validate:"required"`
	Source string `json:"source" default:"api" validate:"oneof=api upload manual"`
}

func newContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequest(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"name":"kepler"}`)
	var req sampleRequest
	require.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, "api", req.Source)

	c, _ = newContext(http.MethodPost, `{"name":"kepler","source":"fax"}`)
	errs := ReadAndValidateRequest(c, &sampleRequest{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "Source", errs[0].Field)

	c, _ = newContext(http.MethodPost, `{"name":`)
	errs = ReadAndValidateRequest(c, &sampleRequest{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}

func TestErrorResponse_UsesStatus(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	require.NoError(t, ErrorResponse(c, http.StatusGatewayTimeout, "TIMEOUT", "too slow", map[string]int{"candidateCount": 2}))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var body struct {
		Status int `json:"status"`
		Data   struct {
			Error    ErrorDetail    `json:"error"`
			Metadata map[string]int `json:"metadata"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusGatewayTimeout, body.Status)
	assert.Equal(t, "TIMEOUT", body.Data.Error.Code)
	assert.Equal(t, 2, body.Data.Metadata["candidateCount"])
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	require.NoError(t, AppErrorResponse(c, TooManyRequestsError("slow down")))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	c, rec = newContext(http.MethodGet, "")
	require.NoError(t, AppErrorResponse(c, assert.AnError))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
}

func TestClient_AgainstServer(t *testing.T) {
	srv := NewServer(nil, []Handler{pingHandler{}, nil}, WithCORSOrigins([]string{"*"}), WithMetricsPath(""))
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL+"/"), WithTimeout(2*time.Second))
	var out APIResponse
	require.NoError(t, client.SendAndParse(context.Background(), &RequestOptions{Path: "/ping"}, &out))
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "pong", out.Data)

	err := client.SendAndParse(context.Background(), &RequestOptions{Path: "/missing"}, nil)
	assert.ErrorContains(t, err, "unexpected status 404")
}

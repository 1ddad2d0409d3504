package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaLM/override-api/internal/types"
)

func apiEvent(method, path, body string) events.APIGatewayV2HTTPRequest {
	ev := events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"content-type": "application/json"},
	}
	ev.RequestContext.HTTP.Method = method
	ev.RequestContext.HTTP.SourceIP = "203.0.113.9"
	ev.RequestContext.RequestID = "apigw-req-1"
	return ev
}

func TestLambdaHandler_TranslatesRequestAndResponse(t *testing.T) {
	var got struct {
		method, path, query, body, ip, reqID string
	}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.method, got.path, got.query, got.body = r.Method, r.URL.Path, r.URL.RawQuery, string(b)
		got.ip, got.reqID = r.RemoteAddr, r.Header.Get("X-Request-Id")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Set-Cookie", "a=1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	ev := apiEvent(http.MethodPost, "/api/create-adas-override", `{"point_ids":[]}`)
	ev.RawQueryString = "dry=1"
	resp, err := lambdaHandler(h)(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/create-adas-override", got.path)
	assert.Equal(t, "dry=1", got.query)
	assert.Equal(t, `{"point_ids":[]}`, got.body)
	assert.Equal(t, "203.0.113.9", got.ip)
	assert.Equal(t, "apigw-req-1", got.reqID)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, []string{"a=1"}, resp.Cookies)
	assert.JSONEq(t, `{"ok":true}`, resp.Body)
}

func TestLambdaHandler_Base64Body(t *testing.T) {
	var body string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	})

	ev := apiEvent(http.MethodPost, "/", base64.StdEncoding.EncodeToString([]byte(`{"x":1}`)))
	ev.IsBase64Encoded = true
	resp, err := lambdaHandler(h)(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ev.Body = "%%%"
	_, err = lambdaHandler(h)(context.Background(), ev)
	assert.Error(t, err)
}

func TestLambdaHandler_FullRouter(t *testing.T) {
	srv := buildTestServer(t)

	resp, err := lambdaHandler(srv.Handler())(context.Background(),
		apiEvent(http.MethodPost, "/api/create-cluster-override", `{"cluster_ids":[]}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var report types.BatchReport
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &report))
	assert.False(t, report.Success)
	assert.Equal(t, "apigw-req-1", report.RequestID)
}

func TestIsLambdaEnvironment(t *testing.T) {
	for _, k := range []string{"AWS_LAMBDA_RUNTIME_API", "_LAMBDA_SERVER_PORT"} {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { _ = os.Setenv(k, v) })
		}
		_ = os.Unsetenv(k)
	}
	assert.False(t, isLambdaEnvironment())

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	assert.True(t, isLambdaEnvironment())
}

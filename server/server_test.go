package server_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolgram"
	"github.com/skosovsky/toolgram/server"
	"github.com/skosovsky/toolgram/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newHandler(t *testing.T, engine toolgram.Engine, opts ...server.Option) (http.Handler, *toolgram.Pipeline) {
	t.Helper()
	p, err := toolgram.NewPipeline(testutil.NewTestRegistry(), engine, toolgram.WithGenerateTimeout(time.Second))
	require.NoError(t, err)
	return server.New(p, opts...).Handler(), p
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) toolgram.Response {
	t.Helper()
	var resp toolgram.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAsk(t *testing.T) {
	t.Parallel()
	engine := &testutil.MockEngine{Outputs: []string{"add(2, 3)"}}
	h, p := newHandler(t, engine)

	rec := do(t, h, http.MethodPost, "/ask", `{"question":"what is 2+3?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decodeResponse(t, rec)
	assert.True(t, resp.OK())
	assert.InDelta(t, 5, resp.Result, 0)

	reqs := engine.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].Prompt, "\nwhat is 2+3?"))
	assert.Equal(t, p.Registry().Grammar().String(), reqs[0].Grammar)
}

func TestAsk_BadRequests(t *testing.T) {
	t.Parallel()
	h, _ := newHandler(t, &testutil.MockEngine{})

	rec := do(t, h, http.MethodPost, "/ask", `{"question":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/ask", `{"question":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question is required")
	rec = do(t, h, http.MethodPost, "/ask", `{"question":"`+strings.Repeat("a", 2<<20)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	rec = do(t, h, http.MethodGet, "/ask", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAsk_EngineFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		engine *testutil.MockEngine
		status int
		code   toolgram.ErrorCode
	}{
		{"engine error", &testutil.MockEngine{Err: errors.New("connection refused")}, http.StatusBadGateway, toolgram.CodeEngine},
		{"timeout", &testutil.MockEngine{Delay: time.Hour}, http.StatusGatewayTimeout, toolgram.CodeTimeout},
		{"garbage output", &testutil.MockEngine{Fallback: "rm -rf /"}, http.StatusUnprocessableEntity, toolgram.CodeParse},
		{"handler error", &testutil.MockEngine{Fallback: "fail()"}, http.StatusInternalServerError, toolgram.CodeExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := toolgram.NewPipeline(testutil.NewTestRegistry(), tt.engine,
				toolgram.WithGenerateTimeout(30*time.Millisecond))
			require.NoError(t, err)
			rec := do(t, server.New(p).Handler(), http.MethodPost, "/ask", `{"question":"q"}`)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeResponse(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, int64(1), p.Stats().Failures)
		})
	}
}

func TestExec(t *testing.T) {
	t.Parallel()
	engine := &testutil.MockEngine{}
	h, _ := newHandler(t, engine)

	tests := []struct {
		text   string
		status int
		code   toolgram.ErrorCode
	}{
		{`greet("Ann")`, http.StatusOK, ""},
		{`nope(1)`, http.StatusUnprocessableEntity, toolgram.CodeUnknownTool},
		{`add(1)`, http.StatusUnprocessableEntity, toolgram.CodeArity},
		{`add("x", 1)`, http.StatusUnprocessableEntity, toolgram.CodeType},
		{`add(1, 2`, http.StatusUnprocessableEntity, toolgram.CodeParse},
	}
	for _, tt := range tests {
		body, err := json.Marshal(map[string]string{"text": tt.text})
		require.NoError(t, err)
		rec := do(t, h, http.MethodPost, "/exec", string(body))
		assert.Equal(t, tt.status, rec.Code, tt.text)
		assert.Equal(t, tt.code, decodeResponse(t, rec).Code, tt.text)
	}
	assert.Zero(t, engine.Calls())
}

func TestGrammar(t *testing.T) {
	t.Parallel()
	h, p := newHandler(t, &testutil.MockEngine{})
	rec := do(t, h, http.MethodGet, "/grammar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, p.Registry().Grammar().String(), rec.Body.String())
	assert.Contains(t, rec.Body.String(), `<root> ::= <add> | <echo> | <greet> | <fail>`)
}

func TestTools(t *testing.T) {
	t.Parallel()
	h, _ := newHandler(t, &testutil.MockEngine{})
	rec := do(t, h, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tools []struct {
		Name        string `json:"name"`
		Signature   string `json:"signature"`
		Description string `json:"description"`
		Rule        string `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	require.Len(t, tools, 4)
	assert.Equal(t, "greet", tools[2].Name)
	assert.Equal(t, `(name: string, punct: string = "!")`, tools[2].Signature)
	assert.Equal(t, "Greet someone", tools[2].Description)
	assert.True(t, strings.HasPrefix(tools[0].Rule, "<add> ::= "))
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	engine := &testutil.MockEngine{Outputs: []string{"add(1, 1)", "nope()"}}
	h, _ := newHandler(t, engine)
	do(t, h, http.MethodPost, "/ask", `{"question":"a"}`)
	do(t, h, http.MethodPost, "/ask", `{"question":"b"}`)
	do(t, h, http.MethodPost, "/exec", `{"text":"add(1"}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m struct {
		Requests   int64  `json:"requests"`
		Failures   int64  `json:"failures"`
		Memory     uint64 `json:"memory"`
		Goroutines int    `json:"goroutines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, int64(3), m.Requests)
	assert.Equal(t, int64(2), m.Failures)
	assert.Positive(t, m.Memory)
	assert.Positive(t, m.Goroutines)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h, _ := newHandler(t, &testutil.MockEngine{})
	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down, _ := newHandler(t, &testutil.MockEngine{}, server.WithHealthCheck(func(context.Context) error {
		return errors.New("engine unreachable")
	}))
	rec = do(t, down, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","error":"engine unreachable"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	t.Parallel()
	h, _ := newHandler(t, &testutil.MockEngine{}, server.WithAllowedOrigins("http://ui.local"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://ui.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://ui.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusOK, server.StatusFor(""))
	assert.Equal(t, http.StatusUnprocessableEntity, server.StatusFor(toolgram.CodeArity))
	assert.Equal(t, http.StatusInternalServerError, server.StatusFor(toolgram.CodeExecution))
	assert.Equal(t, http.StatusInternalServerError, server.StatusFor(toolgram.CodeRegistration))
	assert.Equal(t, http.StatusBadGateway, server.StatusFor(toolgram.CodeEngine))
	assert.Equal(t, http.StatusGatewayTimeout, server.StatusFor(toolgram.CodeTimeout))
}

func TestCORS_Preflight(t *testing.T) {
	t.Parallel()
	h, _ := newHandler(t, &testutil.MockEngine{})

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-appkit/log/logtest"
	"github.com/acronis/go-appkit/restapi"
	"github.com/acronis/go-appkit/testutil"

	"github.com/LimJW/go-large-file-uploader/limiter"
)

type testEnv struct {
	registry *limiter.OperationRegistry
	store    *limiter.RequestConfigStore
	master   *limiter.MasterRateConfig
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := limiter.NewRequestConfigStore(nil, nil, limiter.RequestConfigStoreOpts{})
	require.NoError(t, err)
	env := &testEnv{
		registry: limiter.NewOperationRegistry(),
		store:    store,
		master:   limiter.NewMasterRateConfig(1024, 4096),
		router:   chi.NewRouter(),
	}
	NewHandler(env.registry, env.store, env.master, logtest.NewLogger()).Routes(env.router)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", restapi.ContentTypeAppJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func TestHandler_RateLimits(t *testing.T) {
	env := newTestEnv(t)
	env.master.SetInstantRateInBytes(777)

	resp := env.do(http.MethodGet, "/rate-limits", "")
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(t, resp,
		`{"maximumRatePerClientInKiloBytes":1024,"maximumOverAllRateInKiloBytes":4096,"instantRateInBytes":777}`)

	resp = env.do(http.MethodPut, "/rate-limits", `{"maximumRatePerClientInKiloBytes":512}`)
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(t, resp,
		`{"maximumRatePerClientInKiloBytes":512,"maximumOverAllRateInKiloBytes":4096,"instantRateInBytes":777}`)
	require.EqualValues(t, 512, env.master.MaximumRatePerClientInKiloBytes())

	resp = env.do(http.MethodPut, "/rate-limits", `{"maximumRatePerClientInKiloBytes":0,"maximumOverAllRateInKiloBytes":100}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Zero(t, env.master.MaximumRatePerClientInKiloBytes())
	require.EqualValues(t, 100, env.master.MaximumOverAllRateInKiloBytes())
}

func TestHandler_RateLimitsErrors(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPut, "/rate-limits", `{"maximumOverAllRateInKiloBytes":-1}`)
	testutil.RequireErrorInRecorder(t, resp, http.StatusBadRequest, ErrorDomain, ErrCodeInvalidRate)
	require.EqualValues(t, 4096, env.master.MaximumOverAllRateInKiloBytes())

	resp = env.do(http.MethodPut, "/rate-limits", `{"maximumRatePerClientInKiloBytes":`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.EqualValues(t, 1024, env.master.MaximumRatePerClientInKiloBytes())
}

func TestHandler_Requests(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	resp := env.do(http.MethodGet, "/requests/"+id.String(), "")
	testutil.RequireErrorInRecorder(t, resp, http.StatusNotFound, ErrorDomain, restapi.ErrCodeNotFound)

	cfg := env.store.UploadProcessingConfiguration(id)
	cfg.SetProcessing(true)
	env.store.AssignRateToRequest(id, 500)

	resp = env.do(http.MethodGet, "/requests/"+id.String(), "")
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(t, resp, fmt.Sprintf(`{"id":%q,"state":"processing","processing":true,`+
		`"cancelRequested":false,"paused":false,"rateInKiloBytes":500,"instantRateInBytes":0}`, id))

	resp = env.do(http.MethodGet, "/requests", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list []Request
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, id, list[0].ID)
	require.Equal(t, limiter.RequestStateProcessing, list[0].State)
}

func TestHandler_CancelAndReset(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	resp := env.do(http.MethodPost, "/requests/"+id.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(t, resp, `{"cancelled":false}`)
	_, tracked := env.store.Lookup(id)
	require.False(t, tracked)

	cfg := env.store.UploadProcessingConfiguration(id)
	cfg.SetProcessing(true)
	resp = env.do(http.MethodPost, "/requests/"+id.String()+"/cancel", "")
	testutil.RequireStringJSONInRecorder(t, resp, `{"cancelled":true}`)
	require.True(t, env.store.RequestHasToBeCancelled(id))

	cfg.SetProcessing(false)
	require.True(t, env.store.RequestIsReset(id))
	resp = env.do(http.MethodPost, "/requests/"+id.String()+"/reset", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.False(t, env.store.RequestIsReset(id))
	require.Equal(t, limiter.RequestStateIdle, cfg.State())
}

func TestHandler_PauseResume(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	resp := env.do(http.MethodPost, "/requests/"+id.String()+"/pause", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, env.store.UploadProcessingConfiguration(id).IsPaused())

	resp = env.do(http.MethodPost, "/requests/"+id.String()+"/resume", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.False(t, env.store.UploadProcessingConfiguration(id).IsPaused())
}

func TestHandler_Client(t *testing.T) {
	env := newTestEnv(t)
	c, r := uuid.New(), uuid.New()

	resp := env.do(http.MethodGet, "/clients/"+c.String(), "")
	require.Equal(t, http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(t, resp, fmt.Sprintf(`{"id":%q,"active":false,"activeRequests":[]}`, c))

	env.registry.StartOperation(c, r)
	resp = env.do(http.MethodGet, "/clients/"+c.String(), "")
	testutil.RequireStringJSONInRecorder(t, resp, fmt.Sprintf(`{"id":%q,"active":true,"activeRequests":[%q]}`, c, r))
}

func TestHandler_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/requests/not-a-uuid"},
		{http.MethodPost, "/requests/123/cancel"},
		{http.MethodPost, "/requests/xyz/pause"},
		{http.MethodGet, "/clients/abc"},
	} {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := env.do(tt.method, tt.path, "")
			testutil.RequireErrorInRecorder(t, resp, http.StatusBadRequest, ErrorDomain, ErrCodeInvalidID)
		})
	}
}

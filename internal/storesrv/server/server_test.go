package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeforge/storeforge/internal/storesrv/config"
	"github.com/storeforge/storeforge/internal/storesrv/storecommon"
)

const testConfig = `
format_version = "0.1"
server_port = "0"
handle_cors = true

[resolution]
strategy = "composite"
default_tenant_key = "default-store"

[migrations]
registry_dir = "%s"
tenant_dir = "%s"

[identity]
base_url = "http://localhost:8880"
realm = "storeforge"
admin_user = "storesrv-admin"

[db]
host = "localhost"
port = 5432
dbname = "storeforge"
user = "storesrv"
password = "test"
sslmode = "disable"
`

func newTestServer(t *testing.T) *StoreServer {
	t.Helper()
	dir := t.TempDir()
	conf := filepath.Join(dir, "storesrv.conf")
	body := []byte(fmt.Sprintf(testConfig, dir, dir))
	require.NoError(t, os.WriteFile(conf, body, 0o600))
	require.NoError(t, config.LoadConfig(conf))
	config.SetTestMode(true)

	s, err := CreateNewServer()
	require.NoError(t, err)
	s.MountHandlers()
	return s
}

func TestGetVersion(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var rsp GetVersionRsp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rsp))
	assert.Equal(t, "Storeforge Store Server: "+storecommon.ServerVersion, rsp.ServerVersion)
	assert.Equal(t, storecommon.ApiVersion, rsp.ApiVersion)
}

func TestGetReadinessWithoutDatabase(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var rsp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rsp))
	assert.Equal(t, "not ready", rsp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

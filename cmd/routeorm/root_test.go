package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
data-sources:
  main:
    db-type: mysql
    dsn: "root:root@tcp(127.0.0.1:3306)/app"
    description: primary
  replica:
    db-type: mysql
    dsn: "root:root@tcp(127.0.0.2:3306)/app"
routing:
  default-data-source: main
  read-write:
    enabled: true
    master: main
    slaves: [replica]
  sharding:
    - table: orders
      table-sharding-parameter: user_id
      algorithm: mod
      shard-count: 4
`

const tenantConfig = testConfig + `
  multi-tenant:
    enabled: true
    strategy: datasource
    tenant-key: X-Tenant-Id
    data-sources:
      acme: acme
`

func run(t *testing.T, doc string, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routeorm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(append(args, "--config", path))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestDataSources(t *testing.T) {
	out, err := run(t, tenantConfig, "datasources")
	require.NoError(t, err)
	assert.Equal(t, "acme\t(not configured)\nmain\tmysql\tprimary\nreplica\tmysql\t\n", out)
}

func TestCaps(t *testing.T) {
	out, err := run(t, tenantConfig, "caps")
	require.NoError(t, err)
	assert.Contains(t, out, "default-data-source\tmain\n")
	assert.Contains(t, out, "read-write-split\ttrue\n")
	assert.Contains(t, out, "multi-tenant\ttrue\n")
	assert.Contains(t, out, "sharding\ttrue\n")
	assert.Contains(t, out, "custom-rules\t0\n")
}

func TestRouteRead(t *testing.T) {
	out, err := run(t, testConfig, "route", "--table", "orders", "--param", "user_id=7")
	require.NoError(t, err)
	assert.Contains(t, out, "data-source\treplica\n")
	assert.Contains(t, out, "table\torders_3\n")
}

func TestRouteTenantWrite(t *testing.T) {
	out, err := run(t, tenantConfig, "route", "-t", "orders", "-o", "insert", "-p", "user_id=2", "-H", "X-Tenant-Id=acme")
	require.NoError(t, err)
	assert.Contains(t, out, "data-source\tacme\n")
	assert.Contains(t, out, "table\torders_2\n")
}

func TestRouteContextOverride(t *testing.T) {
	out, err := run(t, testConfig, "route", "-t", "orders", "-p", "user_id=1", "--data-source", "main")
	require.NoError(t, err)
	assert.Contains(t, out, "data-source\tmain\n")
	assert.Contains(t, out, "reason\tcontext override\n")
}

func TestRouteBadParam(t *testing.T) {
	_, err := run(t, testConfig, "route", "-t", "orders", "-p", "user_id")
	assert.Error(t, err)
}

func TestMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs([]string{"caps", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, cmd.Execute())
}

func TestParamValue(t *testing.T) {
	assert.Equal(t, int64(42), paramValue("42"))
	assert.Equal(t, int64(-3), paramValue("-3"))
	assert.Equal(t, "eu-1", paramValue("eu-1"))
	assert.Equal(t, "", paramValue(""))
}

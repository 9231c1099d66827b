package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const treeYAML = `
vsys:
  vsys1:
    address:
      - name: web
        ip-netmask: 10.0.0.1/32
      - name: db
        ip-netmask: 10.0.0.2/32
`

func writeTree(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(treeYAML), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVerify(t *testing.T) {
	out, err := execute(t, "verify", `MATCH (a:address) RETURN a.name`)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = execute(t, "verify", `MATCH (a:address)-[:x]->(b:address) RETURN a`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relationship")
}

func TestQuery(t *testing.T) {
	path := writeTree(t)

	out, err := execute(t, "query", "--config", path, `MATCH (a:address) WHERE a.name == "web" RETURN a.name, a.value`)
	require.NoError(t, err)

	var res struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"a.name", "a.value"}, res.Columns)
	assert.Equal(t, [][]any{{"web", "10.0.0.1/32"}}, res.Rows)
}

func TestQuery_Records(t *testing.T) {
	path := writeTree(t)

	out, err := execute(t, "query", "--config", path, "--records", `MATCH (a:address) RETURN COUNT(*) AS n`)
	require.NoError(t, err)

	var recs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	assert.Equal(t, []map[string]any{{"n": float64(2)}}, recs)
}

func TestQuery_Errors(t *testing.T) {
	path := writeTree(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing config flag", args: []string{"query", `MATCH (a:address) RETURN a`}, wantErr: "config"},
		{name: "bad device kind", args: []string{"query", "--config", path, "--device-kind", "router", `MATCH (a:address) RETURN a`}, wantErr: "device kind"},
		{name: "vsys on panorama", args: []string{"query", "--config", path, "--device-kind", "panorama", `MATCH (a:address) RETURN a`}, wantErr: "vsys scope requires firewall"},
		{name: "missing tree file", args: []string{"query", "--config", filepath.Join(t.TempDir(), "none.yaml"), `MATCH (a:address) RETURN a`}, wantErr: "none.yaml"},
		{name: "unknown node type", args: []string{"query", "--config", path, `MATCH (a:router) RETURN a`}, wantErr: "UNKNOWN_NODE_TYPE"},
		{name: "missing engine config", args: []string{"query", "--pql-config", filepath.Join(t.TempDir(), "nope"), "--config", path, `MATCH (a:address) RETURN a`}, wantErr: "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeTree(t)
	url := "redis://" + mr.Addr()

	out, err := execute(t, "health", "--config", path, "--redis-url", url)
	require.Error(t, err, "no workers")

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "unhealthy", status["status"])

	require.NoError(t, mr.Set("pql:workers", "1"))
	require.NoError(t, mr.Set("pql:health", "ok"))

	out, err = execute(t, "health", "--config", path, "--redis-url", url)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "degraded", status["status"], "tree is not served by any worker")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/roost/internal/mockbase"
	"github.com/birbparty/roost/sdk"
	"github.com/birbparty/roost/sessionstore"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "(a,b,c)", want: []string{"a", "b", "c"}},
		{in: `(robin,"blue jay")`, want: []string{"robin", "blue jay"}},
		{in: `("a,b",c)`, want: []string{"a,b", "c"}},
		{in: `("say \"hi\"")`, want: []string{`say "hi"`}},
		{in: "a,b", wantErr: true},
		{in: "()", wantErr: true},
		{in: `("open)`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseList(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testQuery(t *testing.T) sdk.Query {
	t.Helper()
	client, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL("http://127.0.0.1:1").
		WithAPIKey("ik_test").
		WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client.From("birds")
}

func TestApplyFilter(t *testing.T) {
	base := testQuery(t)

	q, err := applyFilter(base, "wingspan=gte.20")
	require.NoError(t, err)
	require.Len(t, q.Filters(), 1)
	assert.Equal(t, sdk.Filter{Column: "wingspan", Operator: sdk.OpGte, Value: "20"}, q.Filters()[0])

	// only the first dot separates the operator
	q, err = applyFilter(base, "version=eq.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", q.Filters()[0].Value)

	q, err = applyFilter(base, `name=in.(robin,"blue jay")`)
	require.NoError(t, err)
	assert.Equal(t, []string{"robin", "blue jay"}, q.Filters()[0].Values)

	q, err = applyFilter(base, "deleted_at=is.null")
	require.NoError(t, err)
	assert.Equal(t, sdk.IsNull, q.Filters()[0].IsValue)

	q, err = applyFilter(base, "deleted_at=is.maybe")
	require.NoError(t, err)
	assert.ErrorIs(t, q.Err(), sdk.ErrInvalidFilter)

	for _, bad := range []string{"wingspan", "=eq.1", "wingspan=20", "wingspan=about.20", "name=in.robin"} {
		_, err := applyFilter(base, bad)
		assert.Error(t, err, bad)
	}
}

func TestApplyOrder(t *testing.T) {
	base := testQuery(t)

	q, err := applyOrder(base, "name")
	require.NoError(t, err)
	q, err = applyOrder(q, "wingspan.desc")
	require.NoError(t, err)
	assert.Contains(t, q.Encode(), "order=name.asc,wingspan.desc")

	_, err = applyOrder(base, "name.sideways")
	assert.Error(t, err)
}

func TestReadPayload(t *testing.T) {
	v, err := readPayload(`{"name": "robin", /* comment */ "wingspan": 25,}`, "", nil)
	require.NoError(t, err)
	obj, ok := v.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "robin", obj["name"])
	assert.Equal(t, json.Number("25"), obj["wingspan"])

	path := filepath.Join(t.TempDir(), "rows.hujson")
	require.NoError(t, os.WriteFile(path, []byte("[\n  {\"a\": 1}, // first\n  {\"a\": 2},\n]"), 0o600))
	v, err = readPayload("", path, nil)
	require.NoError(t, err)
	assert.Len(t, v, 2)

	v, err = readPayload("", "-", strings.NewReader(`{"from": "stdin"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"from": "stdin"}, v)

	v, err = readPayload("", "", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = readPayload("{}", path, nil)
	assert.Error(t, err)
	_, err = readPayload("{nope", "", nil)
	assert.Error(t, err)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type harness struct {
	t       *testing.T
	srv     *mockbase.Server
	baseURL string
	session string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// keep a developer's own config and credentials out of the run
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"ROOST_API_KEY", "ROOST_BASE_URL", "ROOST_PASSWORD", "OTEL_EXPORTER_OTLP_ENDPOINT", "ROOST_TRACES_FILE"} {
		t.Setenv(key, "")
	}

	srv, err := mockbase.New(mockbase.DefaultConfig(), quietLogger())
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &harness{
		t:       t,
		srv:     srv,
		baseURL: "http://" + ln.Addr().String(),
		session: filepath.Join(t.TempDir(), "session.json"),
	}
}

// run executes the CLI with the connection flags and returns exit code,
// stdout and stderr
func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	full := append(args,
		"--base-url", h.baseURL,
		"--api-key", mockbase.DefaultConfig().APIKey,
		"--session-file", h.session,
		"--log-level", "error",
	)
	var out, errOut bytes.Buffer
	code := run(full, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	code, out, errOut := h.run(stdin, args...)
	require.Equal(h.t, 0, code, "roost %s failed: %s", strings.Join(args, " "), errOut)
	return out
}

func decodeRows(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows), out)
	return rows
}

func names(rows []map[string]interface{}) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i], _ = row["name"].(string)
	}
	return out
}

func TestCLI_Records(t *testing.T) {
	h := newHarness(t)

	rows := decodeRows(t, h.mustRun("", "insert", "birds", "--data", `{"name": "robin", "wingspan": 25,}`))
	require.Len(t, rows, 1)
	assert.Equal(t, "robin", rows[0]["name"])
	assert.NotEmpty(t, rows[0]["id"])

	rows = decodeRows(t, h.mustRun(`[
		{"name": "blue jay", "wingspan": 40},
		{"name": "wren", "wingspan": 15}, // tiny
	]`, "insert", "birds", "--file", "-"))
	assert.Len(t, rows, 2)

	rows = decodeRows(t, h.mustRun("", "query", "birds", "--order", "name"))
	assert.Equal(t, []string{"blue jay", "robin", "wren"}, names(rows))

	rows = decodeRows(t, h.mustRun("", "query", "birds",
		"--filter", "wingspan=gt.20", "--order", "wingspan.desc", "--select", "name,wingspan"))
	assert.Equal(t, []string{"blue jay", "robin"}, names(rows))
	assert.NotContains(t, rows[0], "id")

	rows = decodeRows(t, h.mustRun("", "query", "birds",
		"--filter", `name=in.(wren,"blue jay")`, "--order", "name", "--limit", "1", "--offset", "1"))
	assert.Equal(t, []string{"wren"}, names(rows))

	code, _, errOut := h.run("", "update", "birds", "--data", `{"wingspan": 1}`)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "refusing to update every row")

	rows = decodeRows(t, h.mustRun("", "update", "birds", "--filter", "name=eq.robin", "--data", `{"wingspan": 30}`))
	require.Len(t, rows, 1)
	assert.EqualValues(t, 30, rows[0]["wingspan"])

	code, _, errOut = h.run("", "delete", "birds")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "refusing to delete every row")

	out := h.mustRun("", "delete", "birds", "--filter", "wingspan=lt.20")
	assert.JSONEq(t, `{"table": "birds", "deleted": true}`, out)

	rows = decodeRows(t, h.mustRun("", "query", "birds", "--order", "name"))
	assert.Equal(t, []string{"blue jay", "robin"}, names(rows))

	h.mustRun("", "delete", "birds", "--all")
	assert.Empty(t, decodeRows(t, h.mustRun("", "query", "birds")))
}

func TestCLI_InvokeAndUpload(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("", "invoke", "echo", "--data", `{"hello": "world"}`)
	assert.JSONEq(t, `{"hello": "world"}`, out)

	out = h.mustRun("", "invoke", "echo")
	assert.JSONEq(t, `null`, out)

	code, _, errOut := h.run("", "invoke", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")

	path := filepath.Join(t.TempDir(), "nest.txt")
	require.NoError(t, os.WriteFile(path, []byte("twigs and moss"), 0o600))
	out = h.mustRun("", "upload", "photos", "nests/first.txt", path)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &obj))
	assert.Equal(t, "photos", obj["bucket"])
	assert.Equal(t, "nests/first.txt", obj["key"])
	assert.EqualValues(t, len("twigs and moss"), obj["size"])
}

func TestCLI_LoginLogout(t *testing.T) {
	h := newHarness(t)
	_, err := h.srv.CreateUser("ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)

	code, _, errOut := h.run("wrong\n", "login", "ada@example.com")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")
	assert.NoFileExists(t, h.session)

	out := h.mustRun("correct horse\n", "login", "ada@example.com")
	var login struct {
		User      sdk.User  `json:"user"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &login))
	assert.Equal(t, "ada@example.com", login.User.Email)
	assert.True(t, login.ExpiresAt.After(time.Now()))
	assert.FileExists(t, h.session)

	out = h.mustRun("", "logout")
	assert.JSONEq(t, `{"signed_out": true}`, out)
	assert.NoFileExists(t, h.session)

	out = h.mustRun("", "logout")
	assert.JSONEq(t, `{"signed_out": false}`, out)
}

func TestCLI_PasswordFromEnv(t *testing.T) {
	h := newHarness(t)
	_, err := h.srv.CreateUser("bo@example.com", "s3cret", "")
	require.NoError(t, err)
	t.Setenv("ROOST_PASSWORD", "s3cret")

	h.mustRun("", "login", "bo@example.com")
	assert.FileExists(t, h.session)
}

func TestCLI_Config(t *testing.T) {
	h := newHarness(t)
	h.srv.CreateTable("birds")

	var out, errOut bytes.Buffer
	code := run([]string{"query", "birds", "--base-url", h.baseURL}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "API key is required")

	// values from the environment and a config file
	t.Setenv("ROOST_API_KEY", mockbase.DefaultConfig().APIKey)
	cfgPath := filepath.Join(t.TempDir(), "roost.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("base-url: "+h.baseURL+"\nlog-level: error\n"), 0o600))

	out.Reset()
	errOut.Reset()
	code = run([]string{"query", "birds", "--config", cfgPath, "--session-file", h.session},
		strings.NewReader(""), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.JSONEq(t, `[]`, out.String())

	errOut.Reset()
	code = run([]string{"query", "birds", "--config", filepath.Join(t.TempDir(), "missing.yaml")},
		strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "reading config")

	errOut.Reset()
	code = h.runRaw(&errOut, "query", "birds", "--timeout=-1s")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "invalid timeout")
}

func (h *harness) runRaw(errOut io.Writer, args ...string) int {
	full := append(args, "--base-url", h.baseURL, "--session-file", h.session)
	return run(full, strings.NewReader(""), io.Discard, errOut)
}

func TestCLI_ArchiveNeedsCredentials(t *testing.T) {
	h := newHarness(t)
	t.Setenv("ROOST_SPACES_ACCESS_KEY", "")
	t.Setenv("ROOST_SPACES_SECRET_KEY", "")

	code, _, errOut := h.run("", "archive", "birds", "--bucket", "backups")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "spaces credentials are required")

	code, _, errOut = h.run("", "archive", "birds", "--page-size", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid page size")
}

func TestOpenSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, release, err := openSessionStore(context.Background(), cliConfig{SessionStore: "file", SessionFile: path})
	require.NoError(t, err)
	defer release()
	require.IsType(t, &sessionstore.FileStore{}, store)
	assert.Equal(t, path, store.(*sessionstore.FileStore).Path())

	_, _, err = openSessionStore(context.Background(), cliConfig{SessionStore: "etcd"})
	assert.ErrorContains(t, err, "unknown session store")
}

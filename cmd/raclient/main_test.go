package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natserract/raclients/internal/authtest"
	"github.com/natserract/raclients/pkg/modelclient"
)

func setEnv(t *testing.T, kc *authtest.Keycloak) {
	t.Helper()
	t.Setenv("CLIENT_ID", authtest.ClientID)
	t.Setenv("CLIENT_SECRET", authtest.ClientSecret)
	t.Setenv("AUTH_SERVER", kc.AuthServer())
	t.Setenv("AUTH_REALM", authtest.Realm)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReadObjects(t *testing.T) {
	yamlFile := writeFile(t, "objs.yaml", `
- type: org_unit
  uuid: f06ee470-9f17-566f-acbe-e938112d46d9
  name: Hogwarts
- type: employee
  givenname: Harry
`)
	objs, err := readObjects(yamlFile)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, modelclient.Kind("org_unit"), objs[0].Kind)
	assert.Equal(t, "f06ee470-9f17-566f-acbe-e938112d46d9", objs[0].UUID.String())
	assert.Equal(t, map[string]any{"name": "Hogwarts"}, objs[0].Fields)
	assert.Nil(t, objs[1].UUID)

	jsonFile := writeFile(t, "objs.json", `[{"type":"klasse","uuid":"f06ee470-9f17-566f-acbe-e938112d46d9"}]`)
	objs, err = readObjects(jsonFile)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, modelclient.Kind("klasse"), objs[0].Kind)

	_, err = readObjects(writeFile(t, "objs.txt", "[]"))
	assert.Error(t, err)

	_, err = readObjects(writeFile(t, "objs.json", `[{"name":"no type"}]`))
	assert.Error(t, err)
}

func TestTokenEndpointCommand(t *testing.T) {
	kc := authtest.NewKeycloak(t)
	setEnv(t, kc)

	out, err := run(t, "token-endpoint")
	require.NoError(t, err)
	assert.Equal(t, kc.AuthServer()+"/realms/mordor/protocol/openid-connect/token\n", out)
}

func TestCommandsRequireSettings(t *testing.T) {
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")
	t.Setenv("AUTH_SERVER", "")
	t.Setenv("AUTH_REALM", "")

	_, err := run(t, "token-endpoint")
	assert.ErrorContains(t, err, "CLIENT_ID")
}

func TestUploadCommand(t *testing.T) {
	kc := authtest.NewKeycloak(t)
	setEnv(t, kc)

	paths := make(chan string, 2)
	mo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != authtest.BearerHeader() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		paths <- r.URL.RequestURI()
		_ = json.NewEncoder(w).Encode(body["uuid"])
	}))
	t.Cleanup(mo.Close)
	t.Setenv("MO_URL", mo.URL)

	file := writeFile(t, "objs.json", `[
		{"type": "org_unit", "uuid": "f06ee470-9f17-566f-acbe-e938112d46d9", "name": "Hogwarts"},
		{"type": "employee", "uuid": "8a6d0a55-5ef1-4e7a-b4ab-34b4bc7c8d6f", "givenname": "Harry"}
	]`)

	out, err := run(t, "upload", "--file", file, "--force")
	require.NoError(t, err)

	var results []string
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, []string{
		"f06ee470-9f17-566f-acbe-e938112d46d9",
		"8a6d0a55-5ef1-4e7a-b4ab-34b4bc7c8d6f",
	}, results)

	assert.Equal(t, "/service/ou/create?force=1", <-paths)
	assert.Equal(t, "/service/e/create?force=1", <-paths)
}

func TestUploadCommandRejectsUnknownTarget(t *testing.T) {
	kc := authtest.NewKeycloak(t)
	setEnv(t, kc)

	file := writeFile(t, "objs.json", `[]`)
	_, err := run(t, "upload", "--file", file, "--target", "sharepoint")
	assert.ErrorContains(t, err, "unknown target")

	_, err = run(t, "upload", "--file", file, "--target", "lora", "--edit")
	assert.ErrorContains(t, err, "does not support edits")
}

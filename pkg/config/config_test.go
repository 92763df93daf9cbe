package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAuthEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CLIENT_ID", "AzureDiamond")
	t.Setenv("CLIENT_SECRET", "hunter2")
	t.Setenv("AUTH_SERVER", "http://keycloak.example.org/auth")
	t.Setenv("AUTH_REALM", "mordor")
}

func TestLoadFromEnvironment(t *testing.T) {
	setAuthEnv(t)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "AzureDiamond", s.ClientID)
	assert.Equal(t, "hunter2", s.ClientSecret)
	assert.Equal(t, "http://keycloak.example.org/auth", s.AuthServer)
	assert.Equal(t, "mordor", s.AuthRealm)
	assert.Equal(t, DefaultMOURL, s.MOURL)
	assert.Equal(t, DefaultLoRaURL, s.LoRaURL)
	assert.Equal(t, DefaultGraphQLURL, s.GraphQLURL)
}

func TestLoadOverridesServiceURLs(t *testing.T) {
	setAuthEnv(t)
	t.Setenv("MO_URL", "https://os2mo.example.org")
	t.Setenv("GRAPHQL_URL", "https://os2mo.example.org/graphql")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://os2mo.example.org", s.MOURL)
	assert.Equal(t, "https://os2mo.example.org/graphql", s.GraphQLURL)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")
	t.Setenv("AUTH_SERVER", "")
	t.Setenv("AUTH_REALM", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLIENT_ID is required")
	assert.Contains(t, err.Error(), "AUTH_REALM is required")
}

func TestValidateRejectsBadURL(t *testing.T) {
	s := Defaults()
	s.ClientID = "id"
	s.ClientSecret = "secret"
	s.AuthServer = "not a url"
	s.AuthRealm = "realm"

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_SERVER is not a valid url")
}

func TestDefaultsHaveNoCredentials(t *testing.T) {
	s := Defaults()
	assert.Empty(t, s.ClientID)
	assert.Error(t, s.Validate())
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultMOURL      = "http://mo:5000"
	DefaultLoRaURL    = "http://mox:8080"
	DefaultGraphQLURL = "http://mo:5000/graphql"
)

// Settings holds the process-wide defaults used by every client constructor.
// Explicit constructor options always take precedence over these values.
type Settings struct {
	ClientID     string `envconfig:"CLIENT_ID" validate:"required"`
	ClientSecret string `envconfig:"CLIENT_SECRET" validate:"required"`
	AuthServer   string `envconfig:"AUTH_SERVER" validate:"required,url"`
	AuthRealm    string `envconfig:"AUTH_REALM" validate:"required"`

	MOURL      string `envconfig:"MO_URL" default:"http://mo:5000" validate:"omitempty,url"`
	LoRaURL    string `envconfig:"LORA_URL" default:"http://mox:8080" validate:"omitempty,url"`
	GraphQLURL string `envconfig:"GRAPHQL_URL" default:"http://mo:5000/graphql" validate:"omitempty,url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Defaults returns Settings without credentials, carrying only the default
// service URLs. Useful when every credential is passed explicitly.
func Defaults() Settings {
	return Settings{
		MOURL:      DefaultMOURL,
		LoRaURL:    DefaultLoRaURL,
		GraphQLURL: DefaultGraphQLURL,
	}
}

// Load reads the settings from the environment, after loading a .env file
// when one is present.
func Load() (Settings, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to read settings from environment: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid settings: %w", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s is %s", envName(fe.StructField()), describeTag(fe.Tag())))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(problems, ", "))
}

func envName(field string) string {
	switch field {
	case "ClientID":
		return "CLIENT_ID"
	case "ClientSecret":
		return "CLIENT_SECRET"
	case "AuthServer":
		return "AUTH_SERVER"
	case "AuthRealm":
		return "AUTH_REALM"
	case "MOURL":
		return "MO_URL"
	case "LoRaURL":
		return "LORA_URL"
	case "GraphQLURL":
		return "GRAPHQL_URL"
	}
	return field
}

func describeTag(tag string) string {
	if tag == "required" {
		return "required"
	}
	return "not a valid " + tag
}

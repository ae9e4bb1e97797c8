// Package commands implements the docstore CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/themajix/docstore-client/pkg/docstore"
	"github.com/themajix/docstore-client/pkg/dsclient"
)

// Output formats.
const (
	OutputFormatJSON = "json"
	OutputFormatYAML = "yaml"
)

var (
	ErrEndpointNotConfigured = errors.New("no endpoint configured (use --endpoint or 'docstore login')")
	ErrItemBodyRequired      = errors.New("item body is required (inline JSON or @file)")
	ErrQueryTextRequired     = errors.New("query text is required")
)

// CreateClient builds a client from the effective CLI configuration.
func CreateClient() (docstore.Client, error) {
	endpoint := viper.GetString("endpoint")
	if endpoint == "" {
		return nil, ErrEndpointNotConfigured
	}

	config := &docstore.Config{
		Endpoint:         endpoint,
		ConsistencyLevel: docstore.ConsistencyLevel(viper.GetString("consistency")),
		Debug:            viper.GetBool("verbose"),
	}

	if token := viper.GetString("token"); token != "" {
		config.Credential = &docstore.TokenCredential{Token: token}
	}

	return dsclient.New(config)
}

// renderStructured writes data as JSON or YAML depending on the output flag,
// reporting whether it handled the output.
func renderStructured(data interface{}) (bool, error) {
	switch viper.GetString("output") {
	case OutputFormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		err := encoder.Encode(data)
		if err != nil {
			return true, fmt.Errorf("encoding to JSON: %w", err)
		}

		return true, nil
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		err := encoder.Encode(data)
		if err != nil {
			return true, fmt.Errorf("encoding to YAML: %w", err)
		}

		return true, nil
	default:
		return false, nil
	}
}

// readItemArgument reads an item body from an inline argument or an @file
// reference.
func readItemArgument(arg string) ([]byte, error) {
	if arg == "" {
		return nil, ErrItemBodyRequired
	}

	if arg[0] == '@' {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("reading item file: %w", err)
		}

		return data, nil
	}

	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("item body is not valid JSON")
	}

	return []byte(arg), nil
}

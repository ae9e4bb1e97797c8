package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/themajix/docstore-client/internal/constants"
)

// NewLoginCommand creates the login command: it stores the endpoint and
// token in the CLI config file so later invocations need no flags.
func NewLoginCommand() *cobra.Command {
	var endpoint, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store endpoint and credentials",
		Long:  "Store the service endpoint and authentication token in the CLI configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				endpoint = viper.GetString("endpoint")
			}

			if endpoint == "" {
				return ErrEndpointNotConfigured
			}

			if token == "" {
				fmt.Print("Token: ")

				byteToken, err := term.ReadPassword(int(syscall.Stdin))
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}

				token = string(byteToken)

				fmt.Println()
			}

			viper.Set("endpoint", endpoint)
			viper.Set("token", token)

			if err := writeConfig(); err != nil {
				return err
			}

			fmt.Printf("Logged in to %s\n", endpoint)

			return nil
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "service endpoint URL")
	cmd.Flags().StringVarP(&token, "token", "t", "", "authentication token (prompted if omitted)")

	return cmd
}

func writeConfig() error {
	if viper.ConfigFileUsed() != "" {
		if err := viper.WriteConfig(); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	dir := filepath.Join(home, ".docstore")
	if err := os.MkdirAll(dir, constants.ConfigDirPerm); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/themajix/docstore-client/pkg/docstore"
)

// NewContainersCommand creates the containers command group.
func NewContainersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containers",
		Aliases: []string{"colls"},
		Short:   "Manage containers",
	}

	cmd.AddCommand(newContainersListCommand())
	cmd.AddCommand(newContainersCreateCommand())
	cmd.AddCommand(newContainersDeleteCommand())

	return cmd
}

func newContainersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list DATABASE_ID",
		Short: "List containers in a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			it, err := client.Containers().List(ctx, args[0], nil)
			if err != nil {
				return err
			}

			items, err := docstore.FetchAll(ctx, it)
			if err != nil {
				return fmt.Errorf("listing containers: %w", err)
			}

			containers := make([]docstore.Container, 0, len(items))

			for _, raw := range items {
				var container docstore.Container
				if err := json.Unmarshal(raw, &container); err != nil {
					return fmt.Errorf("parsing container: %w", err)
				}

				containers = append(containers, container)
			}

			if handled, err := renderStructured(containers); handled {
				return err
			}

			if len(containers) == 0 {
				fmt.Println("No containers found")

				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("ID", "Partition Key Path", "Indexed Paths")

			for _, container := range containers {
				_ = table.Append(container.ID, container.PartitionKeyPath, strings.Join(container.IndexedPaths, ", "))
			}

			_ = table.Render()

			return nil
		},
	}
}

func newContainersCreateCommand() *cobra.Command {
	var partitionKeyPath string

	cmd := &cobra.Command{
		Use:   "create DATABASE_ID CONTAINER_ID",
		Short: "Create a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient()
			if err != nil {
				return err
			}

			container, err := client.Containers().Create(context.Background(), args[0], &docstore.Container{
				ID:               args[1],
				PartitionKeyPath: partitionKeyPath,
			})
			if err != nil {
				return fmt.Errorf("creating container: %w", err)
			}

			if handled, err := renderStructured(container); handled {
				return err
			}

			fmt.Printf("Created container '%s'\n", container.ID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&partitionKeyPath, "partition-key", "p", "/id", "partition key path")

	return cmd
}

func newContainersDeleteCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete DATABASE_ID CONTAINER_ID",
		Short: "Delete a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Printf("Really delete container '%s'? (y/N): ", args[1])

				var response string

				_, _ = fmt.Scanln(&response)
				if response != "y" && response != "Y" {
					fmt.Println("Cancelled")

					return nil
				}
			}

			client, err := CreateClient()
			if err != nil {
				return err
			}

			if err := client.Containers().Delete(context.Background(), args[0], args[1]); err != nil {
				return fmt.Errorf("deleting container: %w", err)
			}

			fmt.Printf("Deleted container '%s'\n", args[1])

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")

	return cmd
}

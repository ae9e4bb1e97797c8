package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/themajix/docstore-client/pkg/docstore"
)

// NewDatabasesCommand creates the databases command group.
func NewDatabasesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "databases",
		Aliases: []string{"dbs"},
		Short:   "Manage databases",
	}

	cmd.AddCommand(newDatabasesListCommand())
	cmd.AddCommand(newDatabasesCreateCommand())
	cmd.AddCommand(newDatabasesDeleteCommand())

	return cmd
}

func newDatabasesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			it, err := client.Databases().List(ctx, nil)
			if err != nil {
				return err
			}

			items, err := docstore.FetchAll(ctx, it)
			if err != nil {
				return fmt.Errorf("listing databases: %w", err)
			}

			databases := make([]docstore.Database, 0, len(items))

			for _, raw := range items {
				var db docstore.Database
				if err := json.Unmarshal(raw, &db); err != nil {
					return fmt.Errorf("parsing database: %w", err)
				}

				databases = append(databases, db)
			}

			if handled, err := renderStructured(databases); handled {
				return err
			}

			if len(databases) == 0 {
				fmt.Println("No databases found")

				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("ID", "ETag", "Timestamp")

			for _, db := range databases {
				timestamp := ""
				if db.Timestamp > 0 {
					timestamp = time.Unix(db.Timestamp, 0).Format(time.RFC3339)
				}

				_ = table.Append(db.ID, db.ETag, timestamp)
			}

			_ = table.Render()

			return nil
		},
	}
}

func newDatabasesCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create DATABASE_ID",
		Short: "Create a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient()
			if err != nil {
				return err
			}

			db, err := client.Databases().Create(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("creating database: %w", err)
			}

			if handled, err := renderStructured(db); handled {
				return err
			}

			fmt.Printf("Created database '%s'\n", db.ID)

			return nil
		},
	}
}

func newDatabasesDeleteCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete DATABASE_ID",
		Short: "Delete a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Printf("Really delete database '%s'? (y/N): ", args[0])

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

			if err := client.Databases().Delete(context.Background(), args[0]); err != nil {
				return fmt.Errorf("deleting database: %w", err)
			}

			fmt.Printf("Deleted database '%s'\n", args[0])

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")

	return cmd
}

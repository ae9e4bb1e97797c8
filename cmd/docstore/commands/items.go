package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/themajix/docstore-client/pkg/docstore"
)

// NewItemsCommand creates the items command group.
func NewItemsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage items",
	}

	cmd.AddCommand(newItemsGetCommand())
	cmd.AddCommand(newItemsPutCommand())
	cmd.AddCommand(newItemsDeleteCommand())

	return cmd
}

func newItemsGetCommand() *cobra.Command {
	var partitionKey string

	cmd := &cobra.Command{
		Use:   "get DATABASE_ID CONTAINER_ID ITEM_ID",
		Short: "Read an item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient()
			if err != nil {
				return err
			}

			resp, err := client.Items().Read(context.Background(),
				docstore.ContainerPath(args[0], args[1]), args[2],
				&docstore.ItemOptions{PartitionKey: partitionKey})
			if err != nil {
				return fmt.Errorf("reading item: %w", err)
			}

			return printItem(resp.Item)
		},
	}

	cmd.Flags().StringVarP(&partitionKey, "partition-key", "p", "", "partition key of the item")

	return cmd
}

func newItemsPutCommand() *cobra.Command {
	var (
		partitionKey string
		etag         string
	)

	cmd := &cobra.Command{
		Use:   "put DATABASE_ID CONTAINER_ID ITEM",
		Short: "Create or replace an item",
		Long:  "Create or replace an item. ITEM is inline JSON or @file.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readItemArgument(args[2])
			if err != nil {
				return err
			}

			client, err := CreateClient()
			if err != nil {
				return err
			}

			resp, err := client.Items().Upsert(context.Background(),
				docstore.ContainerPath(args[0], args[1]), body,
				&docstore.ItemOptions{PartitionKey: partitionKey, ETag: etag})
			if err != nil {
				return fmt.Errorf("writing item: %w", err)
			}

			return printItem(resp.Item)
		},
	}

	cmd.Flags().StringVarP(&partitionKey, "partition-key", "p", "", "partition key of the item")
	cmd.Flags().StringVar(&etag, "etag", "", "require the current version to match before replacing")

	return cmd
}

func newItemsDeleteCommand() *cobra.Command {
	var (
		partitionKey string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "delete DATABASE_ID CONTAINER_ID ITEM_ID",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Printf("Really delete item '%s'? (y/N): ", args[2])

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

			err = client.Items().Delete(context.Background(),
				docstore.ContainerPath(args[0], args[1]), args[2],
				&docstore.ItemOptions{PartitionKey: partitionKey})
			if err != nil {
				return fmt.Errorf("deleting item: %w", err)
			}

			fmt.Printf("Deleted item '%s'\n", args[2])

			return nil
		},
	}

	cmd.Flags().StringVarP(&partitionKey, "partition-key", "p", "", "partition key of the item")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")

	return cmd
}

// printItem pretty-prints a raw item body.
func printItem(item json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, item, "", "  "); err != nil {
		_, _ = os.Stdout.Write(item)
		fmt.Println()

		return nil
	}

	fmt.Println(buf.String())

	return nil
}

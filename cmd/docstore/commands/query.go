package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/themajix/docstore-client/pkg/docstore"
)

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	var (
		parameters     map[string]string
		orderBy        string
		descending     bool
		maxItems       int
		maxConcurrency int
		continuation   string
		partitionKey   string
	)

	cmd := &cobra.Command{
		Use:   "query DATABASE_ID CONTAINER_ID QUERY_TEXT",
		Short: "Run a query against a container",
		Long: `Run a query against a container, fanning out across partition
ranges when no partition key is given. With --order-by, results are merged
into a single globally ordered stream.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[2] == "" {
				return ErrQueryTextRequired
			}

			query := docstore.NewQuery(args[2])
			for name, value := range parameters {
				query.WithParameter(name, value)
			}

			if orderBy != "" {
				query.WithOrderBy(orderBy, descending)
			}

			client, err := CreateClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			it, err := client.Items().Query(ctx, docstore.ContainerPath(args[0], args[1]), query,
				&docstore.FeedOptions{
					MaxItemCount:      maxItems,
					MaxConcurrency:    maxConcurrency,
					ContinuationToken: continuation,
					PartitionKey:      partitionKey,
				})
			if err != nil {
				return err
			}

			items, err := docstore.FetchAll(ctx, it)
			if err != nil {
				return fmt.Errorf("running query: %w", err)
			}

			if handled, err := renderStructured(items); handled {
				return err
			}

			return renderItemsTable(items)
		},
	}

	cmd.Flags().StringToStringVar(&parameters, "param", nil, "query parameters (name=value)")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "field establishing a global order")
	cmd.Flags().BoolVar(&descending, "descending", false, "invert the order direction")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "page size")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "parallel partition-range fetches")
	cmd.Flags().StringVar(&continuation, "continuation", "", "resume from a continuation token")
	cmd.Flags().StringVarP(&partitionKey, "partition-key", "p", "", "restrict the query to one partition")

	return cmd
}

// renderItemsTable prints query results as a table, using the union of
// top-level scalar fields as columns.
func renderItemsTable(items []json.RawMessage) error {
	if len(items) == 0 {
		fmt.Println("No items found")

		return nil
	}

	docs := make([]map[string]interface{}, 0, len(items))
	columnSet := map[string]bool{}

	for _, raw := range items {
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing item: %w", err)
		}

		for field, value := range doc {
			switch value.(type) {
			case map[string]interface{}, []interface{}:
			default:
				columnSet[field] = true
			}
		}

		docs = append(docs, doc)
	}

	columns := make([]string, 0, len(columnSet))
	for field := range columnSet {
		columns = append(columns, field)
	}

	sort.Strings(columns)

	headerCells := make([]any, len(columns))
	for i, column := range columns {
		headerCells[i] = column
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header(headerCells...)

	for _, doc := range docs {
		row := make([]string, 0, len(columns))

		for _, field := range columns {
			value, ok := doc[field]
			if !ok || value == nil {
				row = append(row, "")

				continue
			}

			row = append(row, fmt.Sprintf("%v", value))
		}

		_ = table.Append(row)
	}

	_ = table.Render()

	fmt.Printf("\n%d item(s)\n", len(items))

	return nil
}

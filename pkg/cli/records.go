package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimburion/flowstore/pkg/repository/document"
)

type recordsFlags struct {
	database   string
	subject    string
	query      string
	projection []string
	sorting    []string
	page       string
	perPage    int
}

func newRecordsCommand(env *environment) *cobra.Command {
	f := &recordsFlags{}
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and remove documents of a subject collection",
	}
	pf := recordsCmd.PersistentFlags()
	pf.StringVar(&f.database, "database", "", "database name (default: storage.database)")
	pf.StringVar(&f.subject, "subject", "", "subject collection")
	_ = recordsCmd.MarkPersistentFlagRequired("subject")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List documents matching a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := document.Filter{}
			if strings.TrimSpace(f.query) != "" {
				if err := json.Unmarshal([]byte(f.query), &query); err != nil {
					return fmt.Errorf("invalid --query: %w", err)
				}
			}
			req := document.FindManyRequest{
				Query:      query,
				Projection: f.projection,
				PerPage:    f.perPage,
				Sorting:    f.sorting,
			}
			if f.page != "" {
				req.PageNumber = f.page
			}

			s, ctx, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			records, err := s.records(ctx, f.database, f.subject)
			if err != nil {
				return err
			}
			result, err := records.FindMany(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	listCmd.Flags().StringVar(&f.query, "query", "", `JSON filter, e.g. '{"status":"active"}'`)
	listCmd.Flags().StringSliceVar(&f.projection, "projection", nil, "fields to return")
	listCmd.Flags().StringSliceVar(&f.sorting, "sort", nil, "sort fields as field#ASC or field#DESC")
	listCmd.Flags().StringVar(&f.page, "page", "", "page number (omit for an unpaginated listing)")
	listCmd.Flags().IntVar(&f.perPage, "per-page", 0, "page size (default: pagination.per_page)")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			records, err := s.records(ctx, f.database, f.subject)
			if err != nil {
				return err
			}
			doc, err := records.get(ctx, args[0], f.projection)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
	getCmd.Flags().StringSliceVar(&f.projection, "projection", nil, "fields to return")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := env.open(cmd)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			records, err := s.records(ctx, f.database, f.subject)
			if err != nil {
				return err
			}
			deleted, err := records.RemoveOne(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d document(s)\n", deleted)
			return nil
		},
	}

	recordsCmd.AddCommand(listCmd, getCmd, deleteCmd)
	return recordsCmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FranksOps/profilematch/internal/members"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the members of a social-network list as match input",
	Long: `Export reads every member of a list over the X API v2 and writes a
Name,Location CSV suitable for the match command. Members whose display name
is not a plain full name (letters and spaces, at least two words) are left
out.

The bearer token is read from --bearer-token, PROFILEMATCH_X_BEARER_TOKEN or
a .env file in the working directory.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("list-id", "", "numeric id of the list to export")
	exportCmd.Flags().StringP("output", "o", "group_members.csv", "output CSV, or - for stdout")
	exportCmd.Flags().String("bearer-token", "", "API bearer token")
	exportCmd.Flags().String("api-url", members.DefaultBaseURL, "API base URL")
	_ = exportCmd.MarkFlagRequired("list-id")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	listID, _ := cmd.Flags().GetString("list-id")
	output, _ := cmd.Flags().GetString("output")

	token := settings.GetString("x.bearer_token")
	if token == "" {
		return errors.New("no bearer token: set --bearer-token or PROFILEMATCH_X_BEARER_TOKEN")
	}

	client, err := members.NewClient(cmd.Context(), members.Config{
		BearerToken: token,
		BaseURL:     settings.GetString("x.base_url"),
		Logger:      slog.Default(),
	})
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}

	n, err := members.Export(cmd.Context(), client, listID, w)
	if err != nil {
		return err
	}
	slog.Info("exported list members", "list_id", listID, "rows", n, "output", output)
	return nil
}

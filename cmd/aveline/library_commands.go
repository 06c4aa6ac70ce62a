package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aveline/internal/config"
	"aveline/internal/epub"
	"aveline/internal/ipc"
	"aveline/internal/logging"
)

func newLibraryCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newAddCommand(ctx),
		newListCommand(ctx),
		newPickCommand(ctx),
		newCoverCommand(ctx),
	}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <epub>...",
		Short: "Import EPUB files into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				var results []ipc.ImportResult
				if len(paths) == 1 {
					resp, err := client.AddBook(paths[0])
					if err != nil {
						return err
					}
					results = []ipc.ImportResult{resp.ImportResult}
				} else {
					resp, err := client.AddBooks(paths)
					if err != nil {
						return err
					}
					results = resp.Results
				}
				return printImportResults(cmd, results)
			})
		},
	}
}

func printImportResults(cmd *cobra.Command, results []ipc.ImportResult) error {
	stdout := cmd.OutOrStdout()
	failed := 0
	for _, result := range results {
		if result.Success {
			fmt.Fprintf(stdout, "%s\n", result.Message)
			continue
		}
		failed++
		fmt.Fprintf(stdout, "%s: %s\n", filepath.Base(result.Source), result.Message)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) were not added", failed, len(results))
	}
	return nil
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON, asYAML bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON && asYAML {
				return errors.New("--json and --yaml are mutually exclusive")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListLibrary()
				if err != nil {
					return err
				}
				if resp.Message != "" {
					return errors.New(resp.Message)
				}
				switch {
				case asJSON:
					return writeJSON(cmd, resp)
				case asYAML:
					return writeYAML(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				if resp.Count == 0 {
					fmt.Fprintln(stdout, "Library is empty")
					return nil
				}
				fmt.Fprint(stdout, renderTable(libraryColumns, libraryRows(resp.Books)))
				fmt.Fprintf(stdout, "%d book(s)\n", resp.Count)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the library as JSON")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Output the library as YAML")
	return cmd
}

var libraryColumns = []column{
	{header: "Key", maxWidth: 36},
	{header: "Title", maxWidth: 40},
	{header: "Author", maxWidth: 28},
	{header: "Genre", maxWidth: 20},
	{header: "Cover"},
	{header: "Added"},
}

func libraryRows(books []ipc.Book) [][]string {
	rows := make([][]string, 0, len(books))
	for _, book := range books {
		rows = append(rows, []string{
			book.UniqueKey,
			book.Title,
			book.Author,
			book.Genre,
			yesNo(book.HasCover()),
			book.AddedAt.Local().Format(time.DateOnly),
		})
	}
	return rows
}

func newPickCommand(ctx *commandContext) *cobra.Command {
	var add bool
	cmd := &cobra.Command{
		Use:   "pick",
		Short: "List EPUB files in the import directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PickFiles()
				if err != nil {
					return err
				}
				if resp.Message != "" {
					return errors.New(resp.Message)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Paths) == 0 {
					fmt.Fprintln(stdout, "No EPUB files found")
					return nil
				}
				if !add {
					for _, path := range resp.Paths {
						fmt.Fprintln(stdout, path)
					}
					return nil
				}
				added, err := client.AddBooks(resp.Paths)
				if err != nil {
					return err
				}
				return printImportResults(cmd, added.Results)
			})
		},
	}
	cmd.Flags().BoolVar(&add, "add", false, "Import every file found")
	return cmd
}

func newCoverCommand(ctx *commandContext) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "cover <epub>",
		Short: "Extract the cover of an EPUB without contacting the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			tempDir := cfg.Paths.TempDir
			if tempDir == "" {
				tempDir = os.TempDir()
			}
			extractor := epub.NewCoverExtractor(tempDir,
				epub.WithMaxWidth(cfg.Library.CoverMaxWidth, cfg.Library.CoverQuality),
				epub.WithLogger(logging.NewNop()),
			)
			cover := extractor.Extract(cmd.Context(), path)
			uri, ok := cover.DataURI()
			if !ok {
				return fmt.Errorf("no cover found in %s", filepath.Base(path))
			}
			if strings.TrimSpace(out) == "" {
				fmt.Fprintln(cmd.OutOrStdout(), uri)
				return nil
			}
			mediaType, data, err := cover.Bytes()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write cover: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s cover to %s\n", mediaType, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the decoded image to this file instead of printing a data URI")
	return cmd
}

func expandPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

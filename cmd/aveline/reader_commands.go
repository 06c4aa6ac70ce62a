package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"aveline/internal/ipc"
)

func newReaderCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newOpenCommand(ctx),
		newCloseCommand(ctx),
		newTOCCommand(ctx),
		newProgressCommand(ctx),
		newLocateCommand(ctx),
	}
}

func newOpenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path|key>",
		Short: "Serve a book to the reading client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if looksLikeFile(target) {
				paths, err := expandPaths(args)
				if err != nil {
					return err
				}
				target = paths[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OpenBook(target)
				if err != nil {
					return err
				}
				if !resp.Success {
					return errors.New(resp.Message)
				}
				stdout := cmd.OutOrStdout()
				if resp.Title != "" {
					fmt.Fprintf(stdout, "Opened %s\n", resp.Title)
				}
				fmt.Fprintln(stdout, resp.URL)
				if resp.Message != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), resp.Message)
				}
				return nil
			})
		},
	}
}

func newCloseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Stop serving the open book",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CloseBook()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}

func newTOCCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "toc <key>",
		Short: "Show a book's table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BookTOC(args[0])
				if err != nil {
					return err
				}
				if !resp.Success {
					return errors.New(resp.Message)
				}
				if asJSON {
					return writeJSON(cmd, resp.Items)
				}
				printTOC(cmd.OutOrStdout(), resp.Items, 0)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the table of contents as JSON")
	return cmd
}

func printTOC(w io.Writer, items []ipc.TOCNode, depth int) {
	for _, item := range items {
		fmt.Fprintf(w, "%s%s  (%s)\n", strings.Repeat("  ", depth), item.Label, item.Href)
		printTOC(w, item.Subitems, depth+1)
	}
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <key>",
		Short: "Show the saved reading location of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Progress(args[0])
				if err != nil {
					return err
				}
				if !resp.Success {
					return errors.New(resp.Message)
				}
				stdout := cmd.OutOrStdout()
				if resp.Record == nil {
					fmt.Fprintln(stdout, "No reading progress recorded")
					return nil
				}
				printRecord(stdout, resp.Record)
				return nil
			})
		},
	}
}

func newLocateCommand(ctx *commandContext) *cobra.Command {
	var cfi string
	cmd := &cobra.Command{
		Use:   "locate <key> <href>",
		Short: "Record the reading location of a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReportLocation(ipc.ReportLocationRequest{Key: args[0], Href: args[1], CFI: cfi})
				if err != nil {
					return err
				}
				if !resp.Success {
					return errors.New(resp.Message)
				}
				printRecord(cmd.OutOrStdout(), resp.Record)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cfi, "cfi", "", "EPUB canonical fragment identifier of the location")
	return cmd
}

func printRecord(w io.Writer, rec *ipc.ProgressRecord) {
	if rec == nil {
		return
	}
	chapter := rec.ChapterLabel
	if chapter == "" {
		chapter = "(unmapped)"
	}
	fmt.Fprintf(w, "Location: %s\n", rec.Href)
	fmt.Fprintf(w, "Chapter:  %s\n", chapter)
	if rec.CFI != "" {
		fmt.Fprintf(w, "CFI:      %s\n", rec.CFI)
	}
	fmt.Fprintf(w, "Updated:  %s\n", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
}

// looksLikeFile mirrors the daemon's path-or-key rule so relative paths can be
// made absolute before they cross the socket.
func looksLikeFile(target string) bool {
	return strings.ContainsRune(target, '/') || strings.Contains(target, ".")
}

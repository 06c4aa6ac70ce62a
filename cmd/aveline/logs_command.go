package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aveline/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var match string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()
				req := ipc.LogTailRequest{Offset: -1, Limit: lines, Match: match}
				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return err
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(stdout, line)
					}
					if !follow {
						return nil
					}
					select {
					case <-cmd.Context().Done():
						return nil
					default:
					}
					req = ipc.LogTailRequest{Offset: resp.Offset, Follow: true, WaitMillis: 1000, Match: match}
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&match, "grep", "", "Only show lines containing this text (case-insensitive)")
	return cmd
}

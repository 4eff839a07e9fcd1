package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"pixelboard/internal/repository"
	"pixelboard/internal/world"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func inspectCmd() *cobra.Command {
	var (
		file       string
		at         int
		printBoard bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a summary of a saved history file",
		Long: `Load a history file, reconstruct the canvas and print the snapshot
interval, change count, snapshot list and canvas dimensions.

With --at N the canvas is reconstructed as of the first N changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := repository.NewHistoryStore(file, zap.NewNop())
			history, err := store.Load()
			if err != nil {
				return err
			}

			n := history.ChangeCount()
			if cmd.Flags().Changed("at") {
				n = at
			}
			canvas, err := history.CanvasAt(n)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSummary(out, file, history, n, canvas)
			if printBoard {
				fmt.Fprintln(out)
				for _, row := range canvas.HexRows() {
					for i, hex := range row {
						if i > 0 {
							fmt.Fprint(out, " ")
						}
						fmt.Fprint(out, hex)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "history.bin", "history file to inspect")
	cmd.Flags().IntVar(&at, "at", 0, "reconstruct after this many changes (default: all)")
	cmd.Flags().BoolVar(&printBoard, "board", false, "print the reconstructed board as hex rows")

	return cmd
}

func printSummary(out io.Writer, file string, h *world.History, at int, canvas *world.Canvas) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file:\t%s\n", file)
	fmt.Fprintf(tw, "snapshot interval:\t%d\n", h.Interval())
	fmt.Fprintf(tw, "changes:\t%d\n", h.ChangeCount())
	fmt.Fprintf(tw, "snapshots:\t%d\n", len(h.Snapshots()))
	fmt.Fprintf(tw, "reconstructed at:\t%d\n", at)
	fmt.Fprintf(tw, "dimensions:\t%dx%d\n", canvas.Width(), canvas.Height())
	_ = tw.Flush()

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tCHANGES\tSIZE")
	for i, s := range h.Snapshots() {
		fmt.Fprintf(tw, "%d\t%d\t%dx%d\n", i, s.ChangeCount, s.Canvas.Width(), s.Canvas.Height())
	}
	_ = tw.Flush()
}

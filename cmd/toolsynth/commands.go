package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skosovsky/toolsynth/export"
)

var (
	outPath    string
	listLimit  int
	showPathID string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Normalize the catalog and build its dependency graph",
	Long: `Builds (or loads from the snapshot store) the dependency graph of the catalog
and prints it as JSON.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raws, err := readCatalog(catalogPath)
		if err != nil {
			return err
		}
		s, closeAll, err := build(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closeAll()

		res, err := s.Prepare(cmd.Context(), raws)
		if err != nil {
			return err
		}
		logger.Info("graph ready", "tools", res.Graph.Len(), "edges", res.Graph.EdgeCount(),
			"rejected", len(res.Rejections))
		return writeJSON(outPath, res.Graph.Snapshot())
	},
}

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Walk the dependency graph into function signature paths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raws, err := readCatalog(catalogPath)
		if err != nil {
			return err
		}
		s, closeAll, err := build(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closeAll()

		res, err := s.Walk(cmd.Context(), raws)
		if err != nil {
			return err
		}
		return writeJSON(outPath, res.Paths)
	},
}

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Run the full synthesis and export trajectories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raws, err := readCatalog(catalogPath)
		if err != nil {
			return err
		}
		s, closeAll, err := build(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeAll(); err != nil {
				logger.Error("closing outputs", "error", err)
			}
		}()

		start := time.Now()
		res, err := s.Run(cmd.Context(), raws)
		if err != nil {
			return err
		}
		logger.Info("synthesis finished",
			"paths", res.Report.Total,
			"succeeded", res.Report.Succeeded,
			"failed", res.Report.Failed,
			"duration", time.Since(start))
		for _, f := range res.Report.Failures {
			logger.Warn("path failed", "path_id", f.PathID, "tools", f.Tools, "reason", f.Reason, "error", f.Error)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <db>",
	Short: "List or show trajectories stored in a SQLite export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := export.OpenSQLite(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if showPathID != "" {
			rec, err := store.Get(cmd.Context(), showPathID)
			if err != nil {
				return err
			}
			return writeJSON(outPath, rec)
		}

		rows, err := store.List(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTURNS\tUNRESOLVED\tTOOLS\tCREATED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%s\n", r.ID, r.Turns, r.Unresolved, r.Tools, r.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{graphCmd, walkCmd, inspectCmd} {
		c.Flags().StringVarP(&outPath, "out", "o", "", "write JSON here instead of stdout")
	}
	inspectCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "rows to list, 0 for all")
	inspectCmd.Flags().StringVar(&showPathID, "show", "", "print the full record of this path")
}

// Commands inspecting the sample store.
package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/mpmeasure/internal/archive"
	"github.com/aristath/mpmeasure/internal/database"
	"github.com/aristath/mpmeasure/internal/samplestore"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored sample runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		runs, err := store.List(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tPOVM\tMODE\tMETHOD\tMEMBERS\tSAMPLES\tARCHIVED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%t\n",
				r.ID, r.CreatedAt.Format(time.RFC3339), r.POVM, r.StateMode, r.Method, r.Members, r.Samples, r.Archived)
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored run with its packed samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		run, payload, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"run": run, "payload": payload})
	},
}

var runsFetchCmd = &cobra.Command{
	Use:   "fetch <id>",
	Short: "Download an archived run from the archive bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Archive == nil || cfg.Archive.Bucket == "" {
			return fmt.Errorf("no archive bucket configured")
		}
		a, err := archive.New(cmd.Context(), archive.Config{
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		}, log)
		if err != nil {
			return err
		}
		return fetchRun(cmd, a, args[0])
	},
}

// archivedRuns is the read side of the run archive.
type archivedRuns interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

func fetchRun(cmd *cobra.Command, a archivedRuns, id string) error {
	blob, err := a.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	payload, err := samplestore.DecodePayload(blob)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{"id": id, "payload": payload})
}

var runsPruneAge time.Duration

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := store.DeleteOlderThan(cmd.Context(), time.Now().Add(-runsPruneAge))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs\n", n)
		return nil
	},
}

// openStore opens the sample store without the rest of the service.
func openStore() (*samplestore.Repository, func(), error) {
	db, err := database.New(database.Config{Path: cfg.StorePath(), Name: "samples"})
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return samplestore.NewRepository(db.Conn(), log), func() { db.Close() }, nil
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs (0 for all)")
	runsPruneCmd.Flags().DurationVar(&runsPruneAge, "older-than", 30*24*time.Hour, "age of the runs to delete")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsFetchCmd)
	runsCmd.AddCommand(runsPruneCmd)
}

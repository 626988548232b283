// Commands computing distributions, samples and estimates.
package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/mpmeasure/internal/di"
	"github.com/aristath/mpmeasure/internal/modules/measurement"
	"github.com/aristath/mpmeasure/internal/samplestore"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the local measurements",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := measurement.DefaultCatalog()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tMIN DIM\tDESCRIPTION")
		for _, name := range catalog.Names() {
			e := catalog.Get(name)
			fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.MinDim, e.Description)
		}
		return tw.Flush()
	},
}

var (
	pmfState stateFlags
	pmfPOVM  povmFlags
)

var pmfCmd = &cobra.Command{
	Use:   "pmf",
	Short: "Print the exact outcome distribution",
	Long: `Pmf prints the probability of every outcome of a measurement on a state.

Example:
  mpovm pmf --mode mpdo --sites 4 --povm pauli --width 2 --layout block`,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := pmfState.spec()
		if err != nil {
			return err
		}
		members, err := newService().PMF(cmd.Context(), measurement.PMFRequest{State: state, POVM: pmfPOVM.spec()})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), members)
	},
}

var (
	sampleState   stateFlags
	samplePOVM    povmFlags
	sampleN       int
	sampleMethod  string
	sampleNGroup  int
	sampleSeed    uint64
	samplePack    bool
	sampleStore   bool
	sampleArchive bool
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Draw outcome samples",
	Long: `Sample draws outcomes of a measurement on a state and prints them.

With --store the packed samples are saved in the sample store and the run id
is printed; --archive also uploads them to the configured bucket.

Example:
  mpovm sample --sites 8 --povm pauli --width 8 --samples 1000 --method cond`,
	RunE: runSample,
}

func runSample(cmd *cobra.Command, args []string) error {
	state, err := sampleState.spec()
	if err != nil {
		return err
	}
	req := measurement.SampleRequest{
		State:   state,
		POVM:    samplePOVM.spec(),
		Samples: sampleN,
		Method:  measurement.Method(sampleMethod),
		NGroup:  sampleNGroup,
		Seed:    sampleSeed,
		Pack:    samplePack || sampleStore || sampleArchive,
	}
	if !sampleStore && !sampleArchive {
		res, err := newService().Sample(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	}

	if sampleArchive {
		cfg.Archive.Enabled = true
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	container, err := di.Wire(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	res, err := container.Service.Sample(cmd.Context(), req)
	if err != nil {
		return err
	}
	payload := &samplestore.Payload{Dims: res.Dims, Packed: res.Packed, Seed: req.Seed}
	run, err := container.Store.Save(cmd.Context(), samplestore.Run{
		POVM:      req.POVM.Name,
		StateMode: string(res.StateMode),
		Method:    string(res.Method),
		Members:   len(res.Dims),
		Samples:   req.Samples,
	}, payload)
	if err != nil {
		return err
	}
	out := map[string]interface{}{"run": run}
	if sampleArchive {
		key, err := archiveRun(cmd.Context(), container, run.ID, payload)
		if err != nil {
			return err
		}
		out["archive_key"] = key
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func archiveRun(ctx context.Context, c *di.Container, id string, payload *samplestore.Payload) (string, error) {
	blob, err := payload.Encode()
	if err != nil {
		return "", err
	}
	key, err := c.Archive.Put(ctx, id, blob)
	if err != nil {
		return "", err
	}
	return key, c.Store.MarkArchived(ctx, id)
}

var estimateCmd = &cobra.Command{
	Use:   "estimate <request.json>",
	Short: "Estimate a measurement's distribution from samples of another",
	Long: `Estimate reads an estimate request (state, source, target, samples and
optional coefficients), samples the source measurement and prints the
estimated and exact target distributions. Use - to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req measurement.EstimateRequest
		if err := readJSON(args[0], &req); err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		res, err := newService().Estimate(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	pmfState.register(pmfCmd)
	pmfPOVM.register(pmfCmd, "", "pauli")

	sampleState.register(sampleCmd)
	samplePOVM.register(sampleCmd, "", "pauli")
	f := sampleCmd.Flags()
	f.IntVar(&sampleN, "samples", 100, "samples per measurement")
	f.StringVar(&sampleMethod, "method", "", "direct, cond or auto (default from config)")
	f.IntVar(&sampleNGroup, "n-group", 0, "sites per step of conditional sampling (default from config)")
	f.Uint64Var(&sampleSeed, "seed", 0, "sampling seed (default from config, else time based)")
	f.BoolVar(&samplePack, "pack", false, "print packed samples")
	f.BoolVar(&sampleStore, "store", false, "save the run in the sample store")
	f.BoolVar(&sampleArchive, "archive", false, "save and upload the run to the archive bucket")
}

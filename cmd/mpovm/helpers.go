// Shared flag sets and output helpers for mpovm commands.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/mpmeasure/internal/modules/measurement"
	"github.com/aristath/mpmeasure/internal/workers"
)

// stateFlags describe a seeded random state, or a JSON state file.
type stateFlags struct {
	file    string
	mode    string
	impl    string
	sites   int
	dim     int
	ancilla int
	rank    int
	seed    uint64
}

func (f *stateFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.file, "state", "", "JSON state spec file (overrides the random state flags)")
	fl.StringVar(&f.mode, "mode", "mps", "state representation: mps, mpdo or pmps")
	fl.StringVar(&f.impl, "impl", "", "pmps contraction: pmps, pmps-ltr or pmps-symm")
	fl.IntVar(&f.sites, "sites", 4, "number of sites of the random state")
	fl.IntVar(&f.dim, "dim", 2, "local dimension of the random state")
	fl.IntVar(&f.ancilla, "ancilla", 2, "ancilla dimension of a random purification")
	fl.IntVar(&f.rank, "rank", 2, "bond dimension of the random state")
	fl.Uint64Var(&f.seed, "state-seed", 1, "seed of the random state")
}

func (f *stateFlags) spec() (measurement.StateSpec, error) {
	if f.file != "" {
		var spec measurement.StateSpec
		if err := readJSON(f.file, &spec); err != nil {
			return spec, fmt.Errorf("read state: %w", err)
		}
		return spec, nil
	}
	return measurement.StateSpec{
		Mode:    measurement.Mode(f.mode),
		Impl:    measurement.PMPSImpl(f.impl),
		Sites:   f.sites,
		Dim:     f.dim,
		Ancilla: f.ancilla,
		Rank:    f.rank,
		Seed:    f.seed,
	}, nil
}

// povmFlags describe a catalog measurement and its placement.
type povmFlags struct {
	prefix string
	name   string
	width  int
	start  int
	layout string
	split  bool
}

func (f *povmFlags) register(cmd *cobra.Command, prefix, defName string) {
	f.prefix = prefix
	fl := cmd.Flags()
	fl.StringVar(&f.name, prefix+"povm", defName, "catalog measurement (see 'mpovm catalog')")
	fl.IntVar(&f.width, prefix+"width", 1, "number of sites of the measurement")
	fl.IntVar(&f.start, prefix+"start", 0, "first site for the embed layout")
	fl.StringVar(&f.layout, prefix+"layout", "embed", "placement: embed, repeat or block")
	fl.BoolVar(&f.split, prefix+"split", false, "use all products of the Pauli parts instead of their mixture")
}

func (f *povmFlags) spec() measurement.POVMSpec {
	return measurement.POVMSpec{
		Name:   f.name,
		Width:  f.width,
		Start:  f.start,
		Layout: measurement.Layout(f.layout),
		Split:  f.split,
	}
}

// newService creates a measurement service from the loaded configuration.
func newService() *measurement.Service {
	return measurement.NewService(measurement.DefaultCatalog(), workers.NewWorkerPool(cfg.Workers), cfg.ServiceSettings(), nil, log)
}

func readJSON(path string, dst interface{}) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return json.NewDecoder(r).Decode(dst)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mlpotfit/fitting-core/internal/dataset"
)

// WriteEnergyDump writes one line per structure with the predicted and
// reference per-atom energies.
func WriteEnergyDump(w io.Writer, datasets ...*dataset.Dataset) error {
	bw := bufio.NewWriter(w)
	for _, ds := range datasets {
		for c := 0; c < ds.Nc; c++ {
			na := float64(ds.Na[c])
			fmt.Fprintf(bw, "%15.7e %15.7e\n", ds.StructureEnergy(c)/na, ds.EnergyRef[c]/na)
		}
	}
	return bw.Flush()
}

// WriteForceDump writes one line per atom: predicted fx fy fz followed
// by the reference components.
func WriteForceDump(w io.Writer, datasets ...*dataset.Dataset) error {
	bw := bufio.NewWriter(w)
	for _, ds := range datasets {
		for a := 0; a < ds.N; a++ {
			fmt.Fprintf(bw, "%15.7e %15.7e %15.7e %15.7e %15.7e %15.7e\n",
				ds.Force[a], ds.Force[ds.N+a], ds.Force[2*ds.N+a],
				ds.ForceRef[a], ds.ForceRef[ds.N+a], ds.ForceRef[2*ds.N+a])
		}
	}
	return bw.Flush()
}

// WriteVirialDump writes one line per structure: the six predicted
// per-atom virial components followed by the six reference components,
// both in xx yy zz xy yz zx order.
func WriteVirialDump(w io.Writer, datasets ...*dataset.Dataset) error {
	bw := bufio.NewWriter(w)
	for _, ds := range datasets {
		for c := 0; c < ds.Nc; c++ {
			na := float64(ds.Na[c])
			for k := 0; k < 6; k++ {
				fmt.Fprintf(bw, "%15.7e ", ds.StructureVirial(c, k)/na)
			}
			for k := 0; k < 6; k++ {
				fmt.Fprintf(bw, "%15.7e", ds.VirialRef[k*ds.Nc+c]/na)
				if k < 5 {
					fmt.Fprint(bw, " ")
				}
			}
			fmt.Fprintln(bw)
		}
	}
	return bw.Flush()
}

// writeDumpSet writes the energy/force/virial dump triple for a set of
// datasets, e.g. energy_test.out / force_test.out / virial_test.out.
func writeDumpSet(dir, suffix string, datasets ...*dataset.Dataset) error {
	writers := []struct {
		name  string
		write func(io.Writer, ...*dataset.Dataset) error
	}{
		{"energy_" + suffix + ".out", WriteEnergyDump},
		{"force_" + suffix + ".out", WriteForceDump},
		{"virial_" + suffix + ".out", WriteVirialDump},
	}
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create dump file %s: %w", path, err)
		}
		if err := wr.write(f, datasets...); err != nil {
			f.Close()
			return fmt.Errorf("failed to write dump file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close dump file %s: %w", path, err)
		}
	}
	return nil
}

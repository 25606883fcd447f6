package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mlpotfit/fitting-core/internal/potential"
)

// WriteSnapshot serializes the potential definition, a parameter
// vector and the descriptor scaler as the structured text snapshot.
// The output is bit-for-bit stable for equal inputs.
func WriteSnapshot(w io.Writer, def potential.Definition, maxNNRadial, maxNNAngular int, params, scaler []float64) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s %d %s\n", def.HeaderToken(), len(def.Elements), strings.Join(def.Elements, " "))
	if def.ZBL {
		fmt.Fprintf(bw, "zbl %g %g\n", def.ZBLInner, def.ZBLOuter)
	}
	fmt.Fprintf(bw, "cutoff %g %g %d %d\n", def.CutoffRadial, def.CutoffAngular, maxNNRadial, maxNNAngular)
	fmt.Fprintf(bw, "n_max %d %d\n", def.NMaxRadial, def.NMaxAngular)
	fmt.Fprintf(bw, "basis_size %d %d\n", def.BasisSizeRadial, def.BasisSizeAngular)
	fmt.Fprintf(bw, "l_max %d %d\n", def.LMax3, def.LMax4)
	fmt.Fprintf(bw, "ANN %d 0\n", def.HiddenNeurons)
	for _, p := range params {
		fmt.Fprintf(bw, "%15.7e\n", p)
	}
	for _, s := range scaler {
		fmt.Fprintf(bw, "%15.7e\n", s)
	}

	return bw.Flush()
}

// WriteSnapshotFile writes the snapshot to a file, truncating any
// previous snapshot.
func WriteSnapshotFile(path string, def potential.Definition, maxNNRadial, maxNNAngular int, params, scaler []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteSnapshot(f, def, maxNNRadial, maxNNAngular, params, scaler); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

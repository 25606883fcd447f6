// Package pair is the built-in reference evaluation kernel. It
// implements a short-ranged analytic pair potential so the fitting
// binary runs end to end without linking an external kernel; production
// kernels register their own families the same way and are selected by
// the family token in the run configuration.
package pair

import (
	"fmt"
	"math"

	"github.com/mlpotfit/fitting-core/internal/dataset"
	"github.com/mlpotfit/fitting-core/internal/potential"
)

// Family is the token the reference kernel registers under
const Family = "pair"

func init() {
	potential.Register(Family, New)
}

// Kernel evaluates the tapered pair potential
//
//	U(r) = A_ij * (1 - r/rc)^2   for r < rc
//
// under the minimum-image convention, with rc the radial cutoff. The
// leading types*types parameters are the pair amplitudes A_ij
// (symmetrized over the ordered pair), the trailing parameter is the
// additive per-atom energy bias, and the remaining entries of the
// vector are inert.
type Kernel struct {
	def   potential.Definition
	types int
}

// New constructs the reference kernel for a definition
func New(def potential.Definition) (potential.Model, error) {
	if len(def.Elements) == 0 {
		return nil, fmt.Errorf("pair kernel needs at least one element")
	}
	if def.CutoffRadial <= 0 {
		return nil, fmt.Errorf("pair kernel needs a positive radial cutoff, got %g", def.CutoffRadial)
	}
	return &Kernel{def: def, types: len(def.Elements)}, nil
}

func (k *Kernel) Evaluate(params []float64, ds *dataset.Dataset, warmup bool) error {
	need := k.types*k.types + 1
	if len(params) < need {
		return fmt.Errorf("pair kernel needs at least %d parameters, got %d", need, len(params))
	}
	if warmup && len(ds.Scaler) == 0 {
		scaler := make([]float64, k.def.DescriptorDim())
		for i := range scaler {
			scaler[i] = 1.0
		}
		ds.Scaler = scaler
	}

	rc := k.def.CutoffRadial
	bias := params[len(params)-1]
	n := ds.N

	for i := range ds.Energy {
		ds.Energy[i] = bias
	}
	for i := range ds.Force {
		ds.Force[i] = 0
	}
	for i := range ds.Virial {
		ds.Virial[i] = 0
	}

	for c := 0; c < ds.Nc; c++ {
		box := ds.Box[9*c : 9*c+9]
		inv, err := dataset.InvertCell(box)
		if err != nil {
			return fmt.Errorf("structure %d: %w", c, err)
		}
		start := ds.NaSum[c]
		end := start + ds.Na[c]
		for i := start; i < end; i++ {
			for j := i + 1; j < end; j++ {
				dx := ds.Pos[i] - ds.Pos[j]
				dy := ds.Pos[n+i] - ds.Pos[n+j]
				dz := ds.Pos[2*n+i] - ds.Pos[2*n+j]
				dx, dy, dz = dataset.MinimumImage(box, inv, dx, dy, dz)
				r := math.Sqrt(dx*dx + dy*dy + dz*dz)
				if r <= 0 || r >= rc {
					continue
				}

				ti, tj := ds.Type[i], ds.Type[j]
				a := 0.5 * (params[ti*k.types+tj] + params[tj*k.types+ti])
				taper := 1 - r/rc
				u := a * taper * taper
				// Force on atom i along d = r_i - r_j.
				fr := 2 * a * taper / (rc * r)
				fx, fy, fz := fr*dx, fr*dy, fr*dz

				ds.Energy[i] += 0.5 * u
				ds.Energy[j] += 0.5 * u
				ds.Force[i] += fx
				ds.Force[j] -= fx
				ds.Force[n+i] += fy
				ds.Force[n+j] -= fy
				ds.Force[2*n+i] += fz
				ds.Force[2*n+j] -= fz

				// Per-pair virial d (x) f, split between the two atoms,
				// in xx yy zz xy yz zx order.
				w := [6]float64{dx * fx, dy * fy, dz * fz, dx * fy, dy * fz, dz * fx}
				for m := 0; m < 6; m++ {
					ds.Virial[m*n+i] += 0.5 * w[m]
					ds.Virial[m*n+j] += 0.5 * w[m]
				}
			}
		}
	}
	return nil
}

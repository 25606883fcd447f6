package dataset

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/mlpotfit/fitting-core/internal/structure"
	"github.com/mlpotfit/fitting-core/pkg/utils"
)

// Build materializes the structures in r as one device-resident Dataset.
// Neighbor counts for both cutoffs are computed here; the final uniform
// MaxNN bounds are applied afterwards by ApplyNeighborBounds once every
// dataset of the run has been built.
func Build(store *structure.Store, r Range, device int, rcRadial, rcAngular float64) (*Dataset, error) {
	if rcRadial <= 0 || rcAngular <= 0 {
		return nil, fmt.Errorf("cutoff radii must be positive (radial=%f, angular=%f)", rcRadial, rcAngular)
	}
	structures, err := store.Slice(r.Start, r.End)
	if err != nil {
		return nil, err
	}

	nc := len(structures)
	na := make([]int, nc)
	for i, s := range structures {
		if s.Na <= 0 {
			return nil, fmt.Errorf("structure %d has no atoms", r.Start+i)
		}
		na[i] = s.Na
	}
	naSum := utils.PrefixSum(na)
	n := naSum[nc-1] + na[nc-1]

	ds := &Dataset{
		Device:    device,
		N:         n,
		Nc:        nc,
		Na:        na,
		NaSum:     naSum,
		Type:      make([]int, n),
		Pos:       make([]float64, 3*n),
		Box:       make([]float64, 9*nc),
		EnergyRef: make([]float64, nc),
		ForceRef:  make([]float64, 3*n),
		VirialRef: make([]float64, 6*nc),
		HasVirial: make([]bool, nc),
		Energy:    make([]float64, n),
		Force:     make([]float64, 3*n),
		Virial:    make([]float64, 6*n),
	}

	for c, s := range structures {
		offset := naSum[c]
		copy(ds.Box[9*c:9*c+9], s.Box[:])
		ds.EnergyRef[c] = s.Energy
		ds.HasVirial[c] = s.HasVirial
		for k := 0; k < 6; k++ {
			ds.VirialRef[k*nc+c] = s.Virial[k]
		}
		// Atom-major source buffers become SoA with stride N.
		for a := 0; a < s.Na; a++ {
			ds.Type[offset+a] = s.Type[a]
			for d := 0; d < 3; d++ {
				ds.Pos[d*n+offset+a] = s.Pos[3*a+d]
				ds.ForceRef[d*n+offset+a] = s.Force[3*a+d]
			}
		}

		nnR, nnA, err := countNeighbors(s, rcRadial, rcAngular)
		if err != nil {
			return nil, fmt.Errorf("structure %d: %w", r.Start+c, err)
		}
		ds.localNNRadial = utils.Max(ds.localNNRadial, nnR)
		ds.localNNAngular = utils.Max(ds.localNNAngular, nnA)
	}

	if err := ds.CheckShapes(); err != nil {
		return nil, err
	}
	return ds, nil
}

// ApplyNeighborBounds sets MaxNNRadial/MaxNNAngular on every dataset to
// the maximum observed over all of them, so every dataset allocates
// identically sized neighbor buffers regardless of which structures it
// holds. Must be called exactly once, after all datasets are built and
// before any evaluation.
func ApplyNeighborBounds(datasets []*Dataset) error {
	if len(datasets) == 0 {
		return fmt.Errorf("no datasets to bound")
	}
	maxR, maxA := 0, 0
	for _, ds := range datasets {
		maxR = utils.Max(maxR, ds.localNNRadial)
		maxA = utils.Max(maxA, ds.localNNAngular)
	}
	for _, ds := range datasets {
		ds.MaxNNRadial = maxR
		ds.MaxNNAngular = maxA
	}
	return nil
}

// BuildAll constructs one Dataset per (batch, device) pair for the
// training set plus one held-out Dataset per device, then applies the
// global neighbor bounds across all of them. The per-dataset builds are
// fanned out concurrently; any failure aborts the whole construction.
func BuildAll(ctx context.Context, train, test *structure.Store, ranges []Range, deviceCount int, rcRadial, rcAngular float64) (trainSets [][]*Dataset, testSets []*Dataset, err error) {
	if deviceCount <= 0 {
		return nil, nil, fmt.Errorf("device count must be positive, got %d", deviceCount)
	}
	if len(ranges) == 0 {
		return nil, nil, fmt.Errorf("at least one batch range is required")
	}

	trainSets = make([][]*Dataset, len(ranges))
	for b := range trainSets {
		trainSets[b] = make([]*Dataset, deviceCount)
	}
	testSets = make([]*Dataset, deviceCount)
	testRange := Range{Start: 0, End: test.Count()}

	g, gctx := errgroup.WithContext(ctx)
	for b, r := range ranges {
		b, r := b, r
		for d := 0; d < deviceCount; d++ {
			d := d
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				ds, err := Build(train, r, d, rcRadial, rcAngular)
				if err != nil {
					return fmt.Errorf("training batch %d on device %d: %w", b, d, err)
				}
				trainSets[b][d] = ds
				return nil
			})
		}
	}
	for d := 0; d < deviceCount; d++ {
		d := d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ds, err := Build(test, testRange, d, rcRadial, rcAngular)
			if err != nil {
				return fmt.Errorf("held-out set on device %d: %w", d, err)
			}
			testSets[d] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	all := make([]*Dataset, 0, len(ranges)*deviceCount+deviceCount)
	for _, perDevice := range trainSets {
		all = append(all, perDevice...)
	}
	all = append(all, testSets...)
	if err := ApplyNeighborBounds(all); err != nil {
		return nil, nil, err
	}
	return trainSets, testSets, nil
}

// countNeighbors counts, for the structure's most connected atom, the
// neighbors inside each cutoff under the minimum-image convention.
func countNeighbors(s *structure.Structure, rcRadial, rcAngular float64) (nnRadial, nnAngular int, err error) {
	inv, err := InvertCell(s.Box[:])
	if err != nil {
		return 0, 0, err
	}
	rcR2 := rcRadial * rcRadial
	rcA2 := rcAngular * rcAngular

	for i := 0; i < s.Na; i++ {
		countR, countA := 0, 0
		for j := 0; j < s.Na; j++ {
			if i == j {
				continue
			}
			dx := s.Pos[3*j] - s.Pos[3*i]
			dy := s.Pos[3*j+1] - s.Pos[3*i+1]
			dz := s.Pos[3*j+2] - s.Pos[3*i+2]
			dx, dy, dz = MinimumImage(s.Box[:], inv, dx, dy, dz)
			d2 := dx*dx + dy*dy + dz*dz
			if d2 < rcR2 {
				countR++
			}
			if d2 < rcA2 {
				countA++
			}
		}
		nnRadial = utils.Max(nnRadial, countR)
		nnAngular = utils.Max(nnAngular, countA)
	}
	return nnRadial, nnAngular, nil
}

// MinimumImage wraps a displacement vector into the primary cell image
// via fractional coordinates. Cell rows are the lattice vectors, so the
// cartesian<->fractional transforms use the transposed matrices. Both
// box and inv are 9-element row-major matrices, matching one
// structure's slice of Dataset.Box.
func MinimumImage(box, inv []float64, dx, dy, dz float64) (float64, float64, float64) {
	fx := inv[0]*dx + inv[3]*dy + inv[6]*dz
	fy := inv[1]*dx + inv[4]*dy + inv[7]*dz
	fz := inv[2]*dx + inv[5]*dy + inv[8]*dz
	fx -= math.Round(fx)
	fy -= math.Round(fy)
	fz -= math.Round(fz)
	return box[0]*fx + box[3]*fy + box[6]*fz,
		box[1]*fx + box[4]*fy + box[7]*fz,
		box[2]*fx + box[5]*fy + box[8]*fz
}

// InvertCell inverts a 9-element row-major 3x3 cell matrix
func InvertCell(b []float64) ([]float64, error) {
	det := b[0]*(b[4]*b[8]-b[5]*b[7]) - b[1]*(b[3]*b[8]-b[5]*b[6]) + b[2]*(b[3]*b[7]-b[4]*b[6])
	if math.Abs(det) < 1e-12 {
		return nil, fmt.Errorf("cell matrix is singular (det=%g)", det)
	}
	inv := make([]float64, 9)
	inv[0] = (b[4]*b[8] - b[5]*b[7]) / det
	inv[1] = (b[2]*b[7] - b[1]*b[8]) / det
	inv[2] = (b[1]*b[5] - b[2]*b[4]) / det
	inv[3] = (b[5]*b[6] - b[3]*b[8]) / det
	inv[4] = (b[0]*b[8] - b[2]*b[6]) / det
	inv[5] = (b[2]*b[3] - b[0]*b[5]) / det
	inv[6] = (b[3]*b[7] - b[4]*b[6]) / det
	inv[7] = (b[1]*b[6] - b[0]*b[7]) / det
	inv[8] = (b[0]*b[4] - b[1]*b[3]) / det
	return inv, nil
}

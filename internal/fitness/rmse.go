package fitness

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mlpotfit/fitting-core/internal/dataset"
)

// Rmse returns the root-mean-square error between two equal-length
// buffers. Rmse(x, x) is exactly zero for any x.
func Rmse(pred, ref []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	residual := make([]float64, len(pred))
	copy(residual, pred)
	floats.Sub(residual, ref)
	return math.Sqrt(floats.Dot(residual, residual) / float64(len(residual)))
}

// EnergyRMSE pools per-structure energy residuals, each normalized by
// the structure's atom count.
func EnergyRMSE(ds *dataset.Dataset) float64 {
	sumSq := 0.0
	for c := 0; c < ds.Nc; c++ {
		r := (ds.StructureEnergy(c) - ds.EnergyRef[c]) / float64(ds.Na[c])
		sumSq += r * r
	}
	return math.Sqrt(sumSq / float64(ds.Nc))
}

// ForceRMSE pools every per-atom force component residual.
func ForceRMSE(ds *dataset.Dataset) float64 {
	return Rmse(ds.Force, ds.ForceRef)
}

// VirialRMSE pools the six per-structure virial component residuals,
// each normalized by the structure's atom count. Structures without a
// reference virial are excluded from the pool.
func VirialRMSE(ds *dataset.Dataset) float64 {
	sumSq := 0.0
	count := 0
	for c := 0; c < ds.Nc; c++ {
		if !ds.HasVirial[c] {
			continue
		}
		for k := 0; k < 6; k++ {
			r := (ds.StructureVirial(c, k) - ds.VirialRef[k*ds.Nc+c]) / float64(ds.Na[c])
			sumSq += r * r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(count))
}

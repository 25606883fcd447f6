package dataset

import (
	"fmt"

	"github.com/mlpotfit/fitting-core/pkg/utils"
)

// Range is a contiguous half-open structure index range [Start, End)
type Range struct {
	Start int
	End   int
}

// Len returns the number of structures covered by the range
func (r Range) Len() int {
	return r.End - r.Start
}

// Partition splits ncTotal structures into contiguous, non-overlapping
// batches. The number of batches is ceil(ncTotal/requestedBatch); the
// effective batch size is recomputed as ceil(ncTotal/numBatches) so all
// batches are as close to equal size as possible, superseding the
// requested value. Returns the ranges and the effective batch size.
func Partition(ncTotal, requestedBatch int) ([]Range, int, error) {
	if ncTotal <= 0 {
		return nil, 0, fmt.Errorf("structure count must be positive, got %d", ncTotal)
	}
	if requestedBatch <= 0 {
		return nil, 0, fmt.Errorf("batch size must be positive, got %d", requestedBatch)
	}

	numBatches := utils.CeilDiv(ncTotal, requestedBatch)
	effective := utils.CeilDiv(ncTotal, numBatches)

	ranges := make([]Range, 0, numBatches)
	for start := 0; start < ncTotal; start += effective {
		end := utils.Min(start+effective, ncTotal)
		ranges = append(ranges, Range{Start: start, End: end})
	}
	if len(ranges) != numBatches {
		return nil, 0, fmt.Errorf("partition produced %d batches, expected %d (ncTotal=%d, batch=%d)",
			len(ranges), numBatches, ncTotal, requestedBatch)
	}
	return ranges, effective, nil
}

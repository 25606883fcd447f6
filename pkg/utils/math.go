package utils

// CeilDiv returns ceil(a/b) for positive integers
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Min returns the minimum of two integers
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Max returns the maximum of two integers
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Mean calculates the mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Sum calculates the sum of a slice of float64 values
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// PrefixSum returns the exclusive prefix sum of counts:
// out[i] = counts[0] + ... + counts[i-1], with out[0] == 0.
func PrefixSum(counts []int) []int {
	out := make([]int, len(counts))
	running := 0
	for i, c := range counts {
		out[i] = running
		running += c
	}
	return out
}

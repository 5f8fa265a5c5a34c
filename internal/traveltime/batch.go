package traveltime

// Batch is the half-open source index range [Start, End).
type Batch struct {
	Start int
	End   int
}

// Len returns the number of sources in the batch.
func (b Batch) Len() int { return b.End - b.Start }

// Sources returns the batch's source indexes.
func (b Batch) Sources() []int {
	src := make([]int, 0, b.Len())
	for i := b.Start; i < b.End; i++ {
		src = append(src, i)
	}
	return src
}

// PlanBatches splits [0, n) into consecutive batches of size. The last
// batch holds the remainder, so every index is covered exactly once.
func PlanBatches(n, size int) []Batch {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	batches := make([]Batch, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		batches = append(batches, Batch{Start: start, End: min(start+size, n)})
	}
	return batches
}

package vector

import (
	"fmt"
	"math"
	"sort"
)

// Metric is the distance function a store ranks by.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
)

// ParseMetric validates a configured metric name. Empty selects l2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricL2:
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Distance computes the metric distance between a and b, which must have the
// same length. Accumulation is float64 in index order and every product is
// rounded explicitly, which stops the compiler fusing multiply-adds, so
// results are identical on every architecture.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case MetricCosine:
		var dot, na, nb float64
		for i := range a {
			x, y := float64(a[i]), float64(b[i])
			dot += float64(x * y)
			na += float64(x * x)
			nb += float64(y * y)
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	default:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += float64(d * d)
		}
		return math.Sqrt(sum)
	}
}

// Rank orders chunks by distance to the query embedding and keeps the first k.
// Equal distances keep the lower Seq first.
func Rank(m Metric, chunks []Chunk, query []float32, k int) []QueryResult {
	if k <= 0 || len(chunks) == 0 {
		return []QueryResult{}
	}

	results := make([]QueryResult, len(chunks))
	for i := range chunks {
		results[i] = QueryResult{
			Chunk:    chunks[i],
			Distance: m.Distance(chunks[i].Embedding, query),
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Seq < results[j].Seq
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

// ValidateEmbedding checks an embedding against the store's dimensionality.
func ValidateEmbedding(v []float32, dims uint) error {
	if uint(len(v)) != dims {
		return fmt.Errorf("%w: embedding has %d dimensions, store expects %d", ErrInvalidChunk, len(v), dims)
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: embedding component %d is not finite", ErrInvalidChunk, i)
		}
	}
	return nil
}

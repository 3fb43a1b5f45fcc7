package vectorstore

import "fmt"

// Metric is the similarity metric fixed at collection creation time.
type Metric string

const (
	// MetricDotProduct orders by inner product (pgvector <#>).
	MetricDotProduct Metric = "dot-product"

	// MetricCosine orders by cosine distance (pgvector <=>).
	MetricCosine Metric = "cosine"

	// MetricEuclidean orders by L2 distance (pgvector <->).
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric converts a configuration string into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricDotProduct, MetricCosine, MetricEuclidean:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unsupported similarity metric %q", s)
	}
}

// operator returns the pgvector distance operator for ORDER BY.
// All three operators sort ascending by distance, i.e. descending by
// similarity.
func (m Metric) operator() string {
	switch m {
	case MetricDotProduct:
		return "<#>"
	case MetricEuclidean:
		return "<->"
	default:
		return "<=>"
	}
}

// similarityExpr returns a SQL expression mapping the metric's distance to
// a score that increases with similarity. <#> yields the negated inner
// product, so negating it again recovers the raw dot product.
func (m Metric) similarityExpr() string {
	switch m {
	case MetricDotProduct:
		return "-(embedding <#> $1)"
	case MetricEuclidean:
		return "-(embedding <-> $1)"
	default:
		return "1 - (embedding <=> $1)"
	}
}

// indexOpclass returns the pgvector operator class for the HNSW index.
func (m Metric) indexOpclass() string {
	switch m {
	case MetricDotProduct:
		return "vector_ip_ops"
	case MetricEuclidean:
		return "vector_l2_ops"
	default:
		return "vector_cosine_ops"
	}
}

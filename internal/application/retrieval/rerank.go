package retrieval

// MaxSim 查询每个词元与文档词元的最大点积，按查询词元取平均
func MaxSim(query, doc [][]float32) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	total := 0.0
	for _, q := range query {
		best := 0.0
		for j, d := range doc {
			s := dot(q, d)
			if j == 0 || s > best {
				best = s
			}
		}
		total += best
	}
	return total / float64(len(query))
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

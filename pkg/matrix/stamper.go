package matrix

// Stamper accumulates entries of a linear system. Indexing is 1-based.
type Stamper interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
}

// StampGramian adds the contribution of one residual r with gradient g over
// the columns cols (1-based) to the normal equations JᵀJ·δ = -Jᵀr.
func StampGramian(s Stamper, cols []int, g []float64, r float64) {
	for a, i := range cols {
		if g[a] == 0 {
			continue
		}
		for b, j := range cols {
			if g[b] != 0 {
				s.AddElement(i, j, g[a]*g[b])
			}
		}
		s.AddRHS(i, -g[a]*r)
	}
}

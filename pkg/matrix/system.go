package matrix

import (
	"fmt"
	"math"

	"github.com/edp1096/sparse"
)

// System is a real square linear system A·x = b on the sparse LU. Rows,
// columns and vectors are 1-based.
type System struct {
	Size     int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
	config   *sparse.Configuration
}

func NewMatrix(size int) (*System, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               true,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("error creating sparse matrix: %v", err)
	}

	return &System{
		Size:     size,
		matrix:   mat,
		rhs:      make([]float64, size+1),
		solution: make([]float64, size+1),
		config:   config,
	}, nil
}

// SetupElements allocates the full pattern once so Clear keeps the structure
// between iterations.
func (m *System) SetupElements() {
	for i := 1; i <= m.Size; i++ {
		for j := 1; j <= m.Size; j++ {
			m.matrix.GetElement(int64(i), int64(j))
		}
	}
}

func (m *System) inRange(i int) bool {
	return i > 0 && i <= m.Size
}

func (m *System) AddElement(i, j int, value float64) {
	if !m.inRange(i) || !m.inRange(j) {
		panic(fmt.Sprintf("matrix index out of bounds (i=%d, j=%d, size=%d)", i, j, m.Size))
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *System) AddRHS(i int, value float64) {
	if !m.inRange(i) {
		panic(fmt.Sprintf("rhs index out of bounds (i=%d, size=%d)", i, m.Size))
	}
	m.rhs[i] += value
}

func (m *System) Element(i, j int) float64 {
	return m.matrix.GetElement(int64(i), int64(j)).Real
}

// LoadDamping adds lambda·scale[i] to every diagonal entry. A nil scale adds
// lambda uniformly. The scale is indexed from 1 like the system.
func (m *System) LoadDamping(lambda float64, scale []float64) {
	for i := 1; i <= m.Size; i++ {
		d := lambda
		if scale != nil {
			d *= scale[i]
		}
		m.matrix.GetElement(int64(i), int64(i)).Real += d
	}
}

func (m *System) Clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
}

func (m *System) Solve() error {
	if err := m.matrix.Factor(); err != nil {
		return fmt.Errorf("matrix factorization failed: %v", err)
	}

	solution, err := m.matrix.Solve(m.rhs)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %v", err)
	}
	for i := 1; i <= m.Size; i++ {
		if math.IsNaN(solution[i]) || math.IsInf(solution[i], 0) {
			return fmt.Errorf("matrix solve failed: non-finite solution at x%d", i)
		}
	}
	m.solution = solution
	return nil
}

func (m *System) RHS() []float64 {
	return m.rhs
}

func (m *System) Solution() []float64 {
	return m.solution
}

func (m *System) PrintSystem() {
	fmt.Printf("\nNormal equations (%dx%d):\n", m.Size, m.Size)
	for i := 1; i <= m.Size; i++ {
		fmt.Printf("Equation %d:\n", i)
		for j := 1; j <= m.Size; j++ {
			if v := m.Element(i, j); v != 0 {
				fmt.Printf("  %+g*x%d ", v, j)
			}
		}
		fmt.Printf(" = %g\n", m.rhs[i])
	}
	m.matrix.Print(false, true, true)
}

func (m *System) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}

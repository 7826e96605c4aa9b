package expression

import "sync"

// UnknownID addresses one cell of an Arena. IDs are never reused.
type UnknownID int

type cell struct {
	value float64
	known bool
}

// Arena owns the scalar cells referenced by Unknown leaves. Expressions hold
// ids into the arena, so identity and hashing of unknowns are integer
// comparisons.
type Arena struct {
	mu    sync.RWMutex
	cells []cell
}

func NewArena() *Arena {
	return &Arena{}
}

// Unknown allocates a fresh cell and returns an expression referencing it.
func (a *Arena) Unknown() Expression {
	return Expression{arena: a, root: &Node{Kind: KindUnknown, ID: a.alloc()}}
}

func (a *Arena) alloc() UnknownID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cells = append(a.cells, cell{})
	return UnknownID(len(a.cells) - 1)
}

// Len returns the number of allocated cells.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cells)
}

func (a *Arena) Value(id UnknownID) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cells[id].value
}

func (a *Arena) Known(id UnknownID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cells[id].known
}

// Set assigns a known value to the cell.
func (a *Arena) Set(id UnknownID, v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cells[id] = cell{value: v, known: true}
}

// Store writes a value without freezing the cell. Known cells are left alone.
func (a *Arena) Store(id UnknownID, v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cells[id].known {
		a.cells[id].value = v
	}
}

// Freeze marks the cell known, keeping its current value.
func (a *Arena) Freeze(id UnknownID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cells[id].known = true
}

func (a *Arena) lookup(id UnknownID) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c := a.cells[id]
	return c.value, c.known
}

package crdt

import "fmt"

// Merger combines opaque update fragments into one fragment. Implementations
// must be associative and commutative: any grouping of the same fragments
// yields the same converged state.
type Merger interface {
	Merge(fragments ...[]byte) ([]byte, error)
}

// LWWMerger merges fragments encoded as LWW documents.
type LWWMerger struct{}

// Merge implements Merger.
func (LWWMerger) Merge(fragments ...[]byte) ([]byte, error) {
	return Merge(fragments...)
}

// Merge декодирует фрагменты, сливает их по порядку и кодирует результат.
func Merge(fragments ...[]byte) ([]byte, error) {
	result := NewDocument()
	for i, fragment := range fragments {
		doc, err := Decode(fragment)
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		result.Merge(doc)
	}
	return result.Encode()
}

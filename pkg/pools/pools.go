// Package pools provides object pooling for reducing GC pressure.
//
// SlicePool recycles id slices handed out to relationship iterators, which
// are opened and closed at a high rate during traversals.
package pools

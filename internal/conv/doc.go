// Package conv provides checked integer conversions.
//
// Arena identifiers are uint32 values packed from a chunk index and a slot.
// The pool computes them in int and converts through this package so that
// a pool too large for the identifier space fails instead of wrapping.
package conv

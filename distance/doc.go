// Package distance provides the vector distance metrics used by the store's
// indexes. All functions are portable pure-Go implementations.
package distance

// Package dataset holds the master pool of labeled records that paneling draws
// from. Records are keyed by their original index and carry their
// stratification values as canonical strings, so columns that mix numbers and
// text still group predictably.
package dataset

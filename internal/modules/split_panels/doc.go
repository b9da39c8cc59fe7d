// Package split_panels deals every panel into N balanced sets. Panels are
// rebuilt from panels.json against the master dataset and split
// concurrently; the set keys and per-panel balance stats go to splits.json
// and each set is exported as splits/panel_{p}_set_{s}.csv. The split
// directory is cleared first so a smaller N never leaves old sets behind.
package split_panels

// Package create_panels draws the disjoint stratified panels. It reads the
// adjusted targets written by adjust-targets, draws every panel from the
// records earlier panels left behind, and records the panel keys and their
// per-category stats in panels.json. Each panel is also exported as
// panels/panel_{p}.csv (or .tsv) and listed in panels/manifest.json.
//
// Panels that came up short, or that stray further than the match tolerance
// from their adjusted targets, are reported as warnings rather than errors.
package create_panels

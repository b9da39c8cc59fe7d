// Package adjust_targets checks the configured ideal proportions against what
// the master dataset can supply across every requested panel. Categories the
// pool cannot fill are lowered to their per-panel availability and each
// feature is re-normalized. The result, together with the master
// distribution and the availability report, is written to targets.json for
// create-panels and the summary report.
package adjust_targets

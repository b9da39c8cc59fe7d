// Package summary_report renders the run report once the panels are split.
// It writes three files into the run directory: paneling_summary_report.txt
// (aligned plain text), SUMMARY.md (markdown with provenance frontmatter)
// and metrics.prom, a Prometheus textfile rebuilt from the recorded stats so
// it reflects the artifacts on disk rather than the current process.
package summary_report

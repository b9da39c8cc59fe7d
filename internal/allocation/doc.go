// Package allocation draws non-overlapping panels from a master pool so that
// each panel's composition tracks target proportions across several
// stratification features.
//
// Targets the pool cannot satisfy for every panel are first scaled down to
// what the pool can supply (Adjust). Each panel is then drawn by a cascade
// over the features in the order given: the panel quota is divided among the
// first feature's categories, each share is divided among the second
// feature's categories within it, and so on. The cascade is a best-effort
// approximation when features are correlated; it does not solve for the
// joint distribution.
package allocation

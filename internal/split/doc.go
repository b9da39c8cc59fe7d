// Package split partitions a panel into N disjoint sets that each mirror the
// panel's joint composition. Records are grouped into strata by their exact
// feature values, each stratum is shuffled with its own seed and dealt out
// round robin. The dealing position carries over from one stratum to the
// next, so set sizes never differ by more than one.
package split

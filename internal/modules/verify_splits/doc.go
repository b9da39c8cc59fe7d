// Package verify_splits re-reads the exported panel and set files listed in
// the manifests and checks that no record appears in two panels or in two
// sets, that every file holds the number of records its manifest claims, and
// that each panel's sets together cover exactly that panel. The
// splits/.verified marker is written only when every check passes; split-panels
// clears it whenever the sets are regenerated.
package verify_splits

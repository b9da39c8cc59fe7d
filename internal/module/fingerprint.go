package module

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kingrea/paneler/internal/artifact"
)

// Fingerprinter can be implemented by modules that expose deterministic
// fingerprints for their output artifacts. The resolver compares these with
// the values stored in artifact metadata to detect stale outputs without
// running the module.
type Fingerprinter interface {
	ArtifactFingerprints(ctx *ModuleContext) (map[string]string, error)
}

// ArtifactStatus captures the readiness/freshness of an artifact from the
// resolver's perspective.
type ArtifactStatus string

const (
	ArtifactStatusUnknown  ArtifactStatus = "unknown"
	ArtifactStatusFresh    ArtifactStatus = "fresh"
	ArtifactStatusReady    ArtifactStatus = "ready"
	ArtifactStatusMissing  ArtifactStatus = "missing"
	ArtifactStatusInvalid  ArtifactStatus = "invalid"
	ArtifactStatusOutdated ArtifactStatus = "outdated"
	ArtifactStatusError    ArtifactStatus = "error"
)

// Usable reports whether a downstream stage may rely on the artifact.
func (s ArtifactStatus) Usable() bool {
	return s == ArtifactStatusFresh || s == ArtifactStatusReady
}

// InvalidationReason explains why an artifact was considered stale.
type InvalidationReason string

const (
	InvalidationReasonNone            InvalidationReason = ""
	InvalidationReasonMissing         InvalidationReason = "missing"
	InvalidationReasonInvalidMetadata InvalidationReason = "invalid-metadata"
	InvalidationReasonVersionMismatch InvalidationReason = "version-mismatch"
	InvalidationReasonFingerprint     InvalidationReason = "fingerprint-mismatch"
	InvalidationReasonCheckError      InvalidationReason = "check-error"
)

const fingerprintNotePrefix = "fingerprint:"

// FingerprintNoteKey returns the metadata note key for an artifact fingerprint.
func FingerprintNoteKey(artifactID string) string {
	id := strings.TrimSpace(artifactID)
	if id == "" {
		return fingerprintNotePrefix + "default"
	}
	return fingerprintNotePrefix + id
}

// StoredFingerprint reads the fingerprint note from artifact metadata.
func StoredFingerprint(meta *artifact.Metadata, artifactID string) string {
	if meta == nil || len(meta.Notes) == 0 {
		return ""
	}
	return meta.Notes[FingerprintNoteKey(artifactID)]
}

// Fingerprint hashes the JSON encoding of parts. Map keys are sorted by the
// encoder so equal settings always hash equally.
func Fingerprint(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i, part := range parts {
		if err := enc.Encode(part); err != nil {
			return "", fmt.Errorf("module: fingerprint part %d: %w", i, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

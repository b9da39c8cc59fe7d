package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kingrea/paneler/internal/workflow"
)

// metadataKey is the JSON member holding provenance in JSON artifacts.
const metadataKey = "_paneler"

// Store manages artifact IO rooted at the run directory.
type Store struct {
	workflow *workflow.Workflow
	now      func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store for a workflow.
func NewStore(wf *workflow.Workflow, opts ...StoreOption) *Store {
	store := &Store{
		workflow: wf,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Check inspects the artifact on disk and returns its status and metadata.
// Documents and JSON artifacts whose content no longer matches the stored
// checksum are reported invalid.
func (s *Store) Check(ref ArtifactRef) (CheckResult, error) {
	path := ref.Path(s.workflow)
	if path == "" {
		err := fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	if info.IsDir() {
		return invalidResult(ref, path, fmt.Errorf("artifact: expected file got directory"))
	}
	if !ref.Kind.CarriesMetadata() {
		return CheckResult{Ref: ref, Path: path, State: StateReady}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	var (
		meta     Metadata
		checksum string
	)
	if ref.Kind == KindJSON {
		var payload []byte
		meta, payload, err = splitJSON(data)
		checksum = Checksum(payload)
	} else {
		var body []byte
		meta, body, err = ParseFrontMatter(data)
		checksum = Checksum(body)
	}
	if err != nil {
		return invalidResult(ref, path, err)
	}
	if meta.ArtifactID != ref.ID {
		return invalidResult(ref, path, fmt.Errorf("artifact: metadata id %s does not match %s", meta.ArtifactID, ref.ID))
	}
	if meta.Checksum != "" && meta.Checksum != checksum {
		return CheckResult{Ref: ref, Path: path, State: StateInvalid, Metadata: &meta, Err: ErrChecksumMismatch}, ErrChecksumMismatch
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady, Metadata: &meta}, nil
}

// Write persists the artifact contents and metadata based on its kind.
func (s *Store) Write(ref ArtifactRef, body []byte, meta Metadata) error {
	path := ref.Path(s.workflow)
	if path == "" {
		return fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	switch ref.Kind {
	case KindMarker:
		return os.WriteFile(path, []byte{}, 0o644)
	case KindText:
		return os.WriteFile(path, body, 0o644)
	case KindJSON:
		return s.writeJSON(path, ref, body, meta)
	default:
		return s.writeDocument(path, ref, body, meta)
	}
}

// WriteJSON marshals value and writes it as a JSON artifact.
func (s *Store) WriteJSON(ref ArtifactRef, value any, meta Metadata) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", ref.ID, err)
	}
	return s.Write(ref, body, meta)
}

// ReadJSON decodes a JSON artifact into out. The metadata block is ignored by
// struct targets that do not declare it.
func (s *Store) ReadJSON(ref ArtifactRef, out any) error {
	if ref.Kind != KindJSON {
		return fmt.Errorf("artifact: %s is not a json artifact", ref.ID)
	}
	data, err := os.ReadFile(ref.Path(s.workflow))
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", ref.ID, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", ref.ID, err)
	}
	return nil
}

// ReadDocument returns the metadata and body of a document artifact.
func (s *Store) ReadDocument(ref ArtifactRef) (Metadata, []byte, error) {
	data, err := os.ReadFile(ref.Path(s.workflow))
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: read %s: %w", ref.ID, err)
	}
	return ParseFrontMatter(data)
}

// Remove deletes the artifact if it exists.
func (s *Store) Remove(ref ArtifactRef) error {
	path := ref.Path(s.workflow)
	if path == "" {
		return fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) writeDocument(path string, ref ArtifactRef, body []byte, meta Metadata) error {
	if body == nil {
		body = []byte{}
	}
	prepared := meta.WithDefaults(ref, s.now())
	if err := prepared.ValidateFor(ref); err != nil {
		return err
	}
	prepared.Checksum = Checksum(body)
	content, err := WriteFrontMatter(prepared, body)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func (s *Store) writeJSON(path string, ref ArtifactRef, body []byte, meta Metadata) error {
	if body == nil {
		body = []byte("{}")
	}
	prepared := meta.WithDefaults(ref, s.now())
	if err := prepared.ValidateFor(ref); err != nil {
		return err
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("artifact: invalid json body for %s: %w", ref.ID, err)
	}
	if payload == nil {
		return fmt.Errorf("artifact: json body for %s must be an object", ref.ID)
	}
	delete(payload, metadataKey)
	canonical, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("artifact: encode json for %s: %w", ref.ID, err)
	}
	prepared.Checksum = Checksum(canonical)
	encodedMeta, err := json.Marshal(newJSONMetadata(prepared))
	if err != nil {
		return fmt.Errorf("artifact: encode metadata for %s: %w", ref.ID, err)
	}
	payload[metadataKey] = encodedMeta
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode json for %s: %w", ref.ID, err)
	}
	return os.WriteFile(path, encoded, 0o644)
}

func invalidResult(ref ArtifactRef, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}

type jsonMetadata struct {
	Artifact string            `json:"artifact"`
	Module   string            `json:"module"`
	Version  string            `json:"version"`
	Workflow string            `json:"workflow,omitempty"`
	Inputs   []string          `json:"inputs"`
	Created  string            `json:"created"`
	Checksum string            `json:"checksum,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

func newJSONMetadata(meta Metadata) jsonMetadata {
	return jsonMetadata{
		Artifact: meta.ArtifactID,
		Module:   meta.ModuleID,
		Version:  meta.Version,
		Workflow: meta.Workflow,
		Inputs:   append([]string{}, meta.Inputs...),
		Created:  meta.CreatedAt.UTC().Format(time.RFC3339),
		Checksum: meta.Checksum,
		Notes:    cloneNotes(meta.Notes),
	}
}

// splitJSON separates the metadata block from the payload and returns the
// payload in the canonical form its checksum was computed over.
func splitJSON(data []byte) (Metadata, []byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: parse json metadata: %w", err)
	}
	raw, ok := payload[metadataKey]
	if !ok {
		return Metadata{}, nil, fmt.Errorf("artifact: missing %s metadata", metadataKey)
	}
	var jm jsonMetadata
	if err := json.Unmarshal(raw, &jm); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: invalid %s metadata structure: %w", metadataKey, err)
	}
	if jm.Artifact == "" || jm.Module == "" || jm.Version == "" {
		return Metadata{}, nil, fmt.Errorf("artifact: incomplete metadata")
	}
	created, err := parseTime(jm.Created)
	if err != nil {
		return Metadata{}, nil, err
	}
	delete(payload, metadataKey)
	canonical, err := json.Marshal(payload)
	if err != nil {
		return Metadata{}, nil, err
	}
	return Metadata{
		ArtifactID: jm.Artifact,
		ModuleID:   jm.Module,
		Version:    jm.Version,
		Workflow:   jm.Workflow,
		Inputs:     jm.Inputs,
		CreatedAt:  created,
		Checksum:   jm.Checksum,
		Notes:      cloneNotes(jm.Notes),
	}, canonical, nil
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoArtifact reports that no trained artifact exists for a profile.
var ErrNoArtifact = errors.New("model: no artifact for profile")

// artifactEnvelope is the on-disk JSON shape. The version field guards
// against decoding artifacts written by an incompatible build.
type artifactEnvelope struct {
	FormatVersion int       `json:"format_version"`
	Profile       string    `json:"profile"`
	TrainedAt     time.Time `json:"trained_at"`
	SampleCount   int       `json:"sample_count"`
	Model         *BOW      `json:"model"`
}

const artifactFormatVersion = 1

// ArtifactStore persists trained models as JSON files under a root directory,
// one file per profile. It implements Loader for the model cache: Version is
// a cheap stat, Load decodes the artifact.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates the root directory if needed.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("model: create artifact root: %w", err)
	}
	return &ArtifactStore{root: root}, nil
}

// Path returns the artifact file path for a profile.
func (s *ArtifactStore) Path(profile string) string {
	return filepath.Join(s.root, sanitizeProfile(profile)+".model.json")
}

// Save writes the artifact atomically: a temp file in the same directory is
// renamed over the target, so readers never observe a partial write.
func (s *ArtifactStore) Save(profile string, m *BOW, sampleCount int) error {
	env := artifactEnvelope{
		FormatVersion: artifactFormatVersion,
		Profile:       profile,
		TrainedAt:     time.Now().UTC(),
		SampleCount:   sampleCount,
		Model:         m,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("model: encode artifact for %q: %w", profile, err)
	}

	target := s.Path(profile)
	tmp, err := os.CreateTemp(s.root, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("model: create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("model: write artifact for %q: %w", profile, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("model: close artifact for %q: %w", profile, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("model: publish artifact for %q: %w", profile, err)
	}
	return nil
}

// Version returns an opaque token derived from the artifact file's
// modification time and size. It changes whenever Save publishes a new
// artifact and never requires reading the file body.
func (s *ArtifactStore) Version(profile string) (string, error) {
	info, err := os.Stat(s.Path(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoArtifact
		}
		return "", fmt.Errorf("model: stat artifact for %q: %w", profile, err)
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()), nil
}

// ModTime returns when the profile's artifact was last published, or the
// zero time when none exists.
func (s *ArtifactStore) ModTime(profile string) (time.Time, error) {
	info, err := os.Stat(s.Path(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("model: stat artifact for %q: %w", profile, err)
	}
	return info.ModTime(), nil
}

// Load reads and decodes the profile's artifact, returning the classifier
// and the version token of the bytes that were read.
func (s *ArtifactStore) Load(profile string) (Classifier, string, error) {
	version, err := s.Version(profile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(s.Path(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNoArtifact
		}
		return nil, "", fmt.Errorf("model: read artifact for %q: %w", profile, err)
	}

	var env artifactEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("model: corrupt artifact for %q: %w", profile, err)
	}
	if env.FormatVersion != artifactFormatVersion {
		return nil, "", fmt.Errorf("model: artifact for %q has format version %d, want %d", profile, env.FormatVersion, artifactFormatVersion)
	}
	if env.Model == nil || env.Model.Weights == nil {
		return nil, "", fmt.Errorf("model: artifact for %q has no model payload", profile)
	}
	return env.Model, version, nil
}

// Remove deletes a profile's artifact. Missing artifacts are not an error.
func (s *ArtifactStore) Remove(profile string) error {
	err := os.Remove(s.Path(profile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("model: remove artifact for %q: %w", profile, err)
	}
	return nil
}

// ProfileForPath maps an artifact file path back to its profile name, for
// watcher events. Returns false for paths that are not artifacts.
func (s *ArtifactStore) ProfileForPath(path string) (string, bool) {
	base := filepath.Base(path)
	name, ok := strings.CutSuffix(base, ".model.json")
	if !ok || name == "" || strings.HasPrefix(base, ".") {
		return "", false
	}
	return name, true
}

// sanitizeProfile keeps artifact file names flat and shell-safe. Profile
// names are caller-controlled identifiers, not arbitrary input, but path
// separators must never reach the filesystem layer.
func sanitizeProfile(profile string) string {
	var b strings.Builder
	b.Grow(len(profile))
	for _, r := range profile {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

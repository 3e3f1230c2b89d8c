package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hadronized/demo-05/errors"
)

// SourceKind classifies the physical origin of raw content.
type SourceKind int

const (
	// SourceFilesystem reads from the local filesystem and is watchable.
	SourceFilesystem SourceKind = iota
	// SourceEmbedded reads from an fs.FS compiled into the binary.
	SourceEmbedded
	// SourceNetwork is declared for integrators; fetching is delegated and
	// not implemented by the core.
	SourceNetwork
)

// String returns the kind name.
func (k SourceKind) String() string {
	switch k {
	case SourceFilesystem:
		return "filesystem"
	case SourceEmbedded:
		return "embedded"
	case SourceNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Source is a logical origin of raw content: a kind, a physical locator and
// (for embedded sources) the filesystem to read from. The locator is
// deliberately decoupled from the canonical entity name.
type Source struct {
	Kind    SourceKind
	Locator string
	FS      fs.FS
}

// FileSource describes a filesystem path.
func FileSource(p string) Source {
	return Source{Kind: SourceFilesystem, Locator: p}
}

// EmbeddedSource describes a path inside an embedded filesystem.
func EmbeddedSource(fsys fs.FS, p string) Source {
	return Source{Kind: SourceEmbedded, Locator: p, FS: fsys}
}

// Key returns the serialization key for this source. At most one parse is in
// flight per key at a time.
func (s Source) Key() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Locator)
}

// String returns a human readable descriptor.
func (s Source) String() string {
	return s.Key()
}

// Ext returns the lowercase locator extension without the leading dot.
func (s Source) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(s.Locator), "."))
}

// SubExt returns the secondary extension of locators following the
// name.sub.ext convention ("tunnel.shd.json" yields "shd"), or "" when the
// stem has no secondary extension.
func (s Source) SubExt() string {
	stem := strings.TrimSuffix(filepath.Base(s.Locator), filepath.Ext(s.Locator))
	ext := filepath.Ext(stem)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Stem returns the locator base name with extension and sub-extension
// stripped ("meshes/level.obj" yields "level").
func (s Source) Stem() string {
	stem := strings.TrimSuffix(filepath.Base(s.Locator), filepath.Ext(s.Locator))
	if sub := filepath.Ext(stem); sub != "" {
		stem = strings.TrimSuffix(stem, sub)
	}
	return stem
}

// Read returns the raw content of the source. Network sources are not
// fetched by the core; transport is an integrator concern.
func (s Source) Read() ([]byte, error) {
	switch s.Kind {
	case SourceFilesystem:
		data, err := os.ReadFile(s.Locator)
		if err != nil {
			return nil, errors.WrapTransient(err, "Source", "Read", "filesystem read")
		}
		return data, nil

	case SourceEmbedded:
		if s.FS == nil {
			return nil, errors.WrapInvalid(errors.ErrSourceUnreadable, "Source", "Read", "embedded fs missing")
		}
		data, err := fs.ReadFile(s.FS, s.Locator)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Source", "Read", "embedded read")
		}
		return data, nil

	case SourceNetwork:
		return nil, errors.WrapInvalid(
			fmt.Errorf("network source %q: transport not provided", s.Locator),
			"Source", "Read", "network fetch")

	default:
		return nil, errors.WrapInvalid(errors.ErrSourceUnreadable, "Source", "Read", "unknown kind")
	}
}

// ReadSibling reads a path relative to this source's parent directory. Shader
// bundles reference their stage files this way.
func (s Source) ReadSibling(rel string) ([]byte, error) {
	switch s.Kind {
	case SourceFilesystem:
		p := rel
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(s.Locator), rel)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.WrapTransient(err, "Source", "ReadSibling", "filesystem read")
		}
		return data, nil

	case SourceEmbedded:
		if s.FS == nil {
			return nil, errors.WrapInvalid(errors.ErrSourceUnreadable, "Source", "ReadSibling", "embedded fs missing")
		}
		data, err := fs.ReadFile(s.FS, path.Join(path.Dir(s.Locator), rel))
		if err != nil {
			return nil, errors.WrapInvalid(err, "Source", "ReadSibling", "embedded read")
		}
		return data, nil

	default:
		return nil, errors.WrapInvalid(errors.ErrSourceUnreadable, "Source", "ReadSibling", "unsupported kind")
	}
}

// SiblingPath resolves a sibling reference to the locator used for watching.
func (s Source) SiblingPath(rel string) string {
	if s.Kind == SourceFilesystem && !filepath.IsAbs(rel) {
		return filepath.Join(filepath.Dir(s.Locator), rel)
	}
	return rel
}

// Watchable reports whether this source can ever change behind our back.
// Embedded content is fixed at build time.
func (s Source) Watchable() bool {
	return s.Kind == SourceFilesystem
}

// HashContent returns the change-detection token for raw content. Change
// detection is content based, never mtime based.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

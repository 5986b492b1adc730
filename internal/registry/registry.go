// Package registry provides the pluggable loaders that read auxiliary documents,
// such as the venue image manifest, from wherever an operator keeps them.
//
// Loaders register themselves from init() and are looked up by their type name.
// A document may list several sources; they are tried in order until one loads.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Source describes where a document lives. Not every field applies to every type.
type Source struct {
	Type string `yaml:"type"`           // "file", "http", "git" or "command"
	URL  string `yaml:"url,omitempty"`  // http and git
	Path string `yaml:"path,omitempty"` // file, and the path inside a git repository
	Ref  string `yaml:"ref,omitempty"`  // git branch or tag
	Cmd  string `yaml:"cmd,omitempty"`  // command whose stdout is the document

	// SHA256 pins the expected content; a document with another digest is rejected.
	SHA256 string `yaml:"sha256,omitempty"`
}

func (s Source) String() string {
	switch {
	case s.URL != "" && s.Path != "":
		return fmt.Sprintf("%s:%s@%s:%s", s.Type, s.URL, s.Ref, s.Path)
	case s.URL != "":
		return s.Type + ":" + s.URL
	case s.Path != "":
		return s.Type + ":" + s.Path
	default:
		return s.Type + ":" + s.Cmd
	}
}

// Loader reads the raw bytes of a document from one kind of source.
type Loader interface {
	// Name returns the source type this loader serves.
	Name() string

	// Load returns the document bytes or an error.
	Load(ctx context.Context, src Source) ([]byte, error)
}

var loaders = map[string]Loader{}

// Register adds a loader, replacing any previous loader with the same name.
//
//	func init() {
//	    registry.Register(New())
//	}
func Register(l Loader) { loaders[l.Name()] = l }

// Get returns the loader for kind using the "comma ok" idiom.
func Get(kind string) (Loader, bool) {
	l, ok := loaders[kind]
	return l, ok
}

// ErrNoSources is returned by LoadFirst when given nothing to try.
var ErrNoSources = errors.New("registry: no sources configured")

// LoadFirst tries each source in order and returns the first document that loads,
// together with the source it came from. When every source fails the individual
// errors are joined.
func LoadFirst(ctx context.Context, srcs []Source) ([]byte, Source, error) {
	if len(srcs) == 0 {
		return nil, Source{}, ErrNoSources
	}
	var errs []error
	for _, src := range srcs {
		l, ok := Get(src.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown source type %q", src, src.Type))
			continue
		}
		b, err := l.Load(ctx, src)
		if err == nil {
			err = src.Verify(b)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
			continue
		}
		return b, src, nil
	}
	return nil, Source{}, errors.Join(errs...)
}

// ErrChecksum reports a document whose digest differs from Source.SHA256.
var ErrChecksum = errors.New("registry: checksum mismatch")

// Digest returns the lowercase hex SHA-256 of b.
func Digest(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Verify checks b against the pinned digest, if any.
func (s Source) Verify(b []byte) error {
	if s.SHA256 == "" {
		return nil
	}
	if got := Digest(b); !strings.EqualFold(got, s.SHA256) {
		return fmt.Errorf("%w: want %s, got %s", ErrChecksum, s.SHA256, got)
	}
	return nil
}

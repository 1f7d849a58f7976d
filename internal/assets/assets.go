// Package assets manages the public directory generated artifacts are
// written to.
package assets

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/agent/model"
)

const timestampLayout = "20060102150405"

// Config is processed by envconfig under the ASSET_ prefix.
type Config struct {
	Dir       string `default:"assets"`
	URLPrefix string `split_words:"true" default:"/assets"`
}

type Store struct {
	fs     afero.Fs
	dir    string
	prefix string
	now    func() time.Time

	mu sync.Mutex
}

func NewStore(fs afero.Fs, cfg Config) *Store {
	return &Store{fs: fs, dir: cfg.Dir, prefix: cfg.URLPrefix, now: time.Now}
}

func (s *Store) Dir() string    { return s.dir }
func (s *Store) Prefix() string { return s.prefix }

// Clear empties the asset directory. It runs once at process start.
func (s *Store) Clear() error {
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear assets: %w", err)
	}
	return s.fs.MkdirAll(s.dir, 0o755)
}

// name picks <stem>_<yyyyMMddHHmmss><ext>, suffixed with _N when taken.
func (s *Store) name(stem, ext string) (string, error) {
	base := fmt.Sprintf("%s_%s", stem, s.now().Format(timestampLayout))
	name := base + ext
	for i := 1; ; i++ {
		ok, err := afero.Exists(s.fs, filepath.Join(s.dir, name))
		if err != nil {
			return "", err
		}
		if !ok {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// Save writes a new timestamped artifact through write.
func (s *Store) Save(kind model.ArtifactKind, stem, ext string, write func(io.Writer) error) (model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return model.Artifact{}, fmt.Errorf("create asset dir: %w", err)
	}
	name, err := s.name(stem, ext)
	if err != nil {
		return model.Artifact{}, err
	}
	p := filepath.Join(s.dir, name)
	f, err := s.fs.Create(p)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("create %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		_ = s.fs.Remove(p)
		return model.Artifact{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return model.Artifact{}, err
	}
	return model.Artifact{Kind: kind, Name: name, Path: p, URL: path.Join(s.prefix, name)}, nil
}

package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

const infoSuffix = "__info.toml"

// Loader reads rule files from directory trees.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a rule loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log: log.With().Str("component", "rules_loader").Logger(),
	}
}

// Load reads every directory in order and concatenates their rules. A
// missing directory contributes nothing; a malformed file fails the load.
func (l *Loader) Load(dirs ...string) ([]*Rule, error) {
	var all []*Rule
	for _, dir := range dirs {
		rs, err := l.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		all = append(all, rs...)
	}
	return all, nil
}

// LoadDir reads all *.toml files below dir in lexical order.
func (l *Loader) LoadDir(dir string) ([]*Rule, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		l.log.Warn().Str("dir", dir).Msg("Rule directory not found, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat rule directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rule path %s is not a directory", dir)
	}

	var out []*Rule
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".toml") {
			return nil
		}

		r, err := LoadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err == nil && filepath.ToSlash(rel) != r.StoragePath() {
			l.log.Warn().
				Str("id", r.ID).
				Str("path", filepath.ToSlash(rel)).
				Str("expected", r.StoragePath()).
				Msg("Rule file is not at its storage path")
		}

		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("dir", dir).Int("rules", len(out)).Msg("Loaded rules")
	return out, nil
}

// LoadFile decodes, defaults and validates one rule file. A missing id is
// taken from the file name.
func LoadFile(path string) (*Rule, error) {
	var r Rule
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	if r.ID == "" {
		r.ID = idFromFile(filepath.Base(path))
	}
	r.SourcePath = path
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return &r, nil
}

func idFromFile(name string) string {
	stem := strings.TrimSuffix(name, infoSuffix)
	stem = strings.TrimSuffix(stem, ".toml")
	return strings.ReplaceAll(stem, "__", "/")
}

// Write stores r under dir at its storage path.
func Write(dir string, r *Rule) (string, error) {
	path := filepath.Join(dir, filepath.FromSlash(r.StoragePath()))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create rule directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create rule file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(r); err != nil {
		return "", fmt.Errorf("encode rule %s: %w", r.ID, err)
	}
	return path, nil
}

package profile

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/viper"

	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

//go:embed profiles/*.yaml
var builtinFS embed.FS

// detectPages bounds how many pages Detect reads.
const detectPages = 2

// Registry holds compiled profiles in declaration order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]*Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*Profile)}
}

var (
	builtinOnce sync.Once
	builtin     *Registry
	builtinErr  error
)

// Builtin returns a fresh registry with the embedded profiles.
func Builtin() (*Registry, error) {
	builtinOnce.Do(func() {
		builtin = NewRegistry()
		builtinErr = builtin.loadFS(builtinFS, "profiles")
	})
	if builtinErr != nil {
		return nil, builtinErr
	}
	return builtin.clone(), nil
}

func (r *Registry) clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewRegistry()
	out.order = append(out.order, r.order...)
	for k, v := range r.profiles {
		out.profiles[k] = v
	}
	return out
}

func (r *Registry) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read profiles: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() || !isProfileFile(e.Name()) {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read profile %s: %w", e.Name(), err)
		}
		p, err := Parse(b, configType(e.Name()))
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		r.Register(p)
	}
	return nil
}

// LoadDir loads every profile file in dir. A profile whose name matches an
// existing one replaces it in place.
func (r *Registry) LoadDir(dir string) error {
	return r.loadFS(os.DirFS(dir), ".")
}

// LoadFile loads a single profile file.
func (r *Registry) LoadFile(file string) (*Profile, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := Parse(b, configType(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
	}
	r.Register(p)
	return p, nil
}

func isProfileFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json", ".toml":
		return true
	}
	return false
}

func configType(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "yml" {
		return "yaml"
	}
	return ext
}

// Parse decodes, validates and compiles one profile document.
func Parse(b []byte, format string) (*Profile, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Register adds or replaces a compiled profile.
func (r *Registry) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(p.Name)
	if _, ok := r.profiles[name]; !ok {
		r.order = append(r.order, name)
	}
	r.profiles[name] = p
}

// Get returns the named profile. Names are case-insensitive.
func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := r.profiles[key]; ok {
		return p, nil
	}
	return nil, &UnknownError{Name: name, Suggestions: r.suggest(key)}
}

func (r *Registry) suggest(name string) []string {
	if name == "" {
		return nil
	}
	ranks := fuzzy.RankFindNormalizedFold(name, r.order)
	sort.Sort(ranks)
	var out []string
	for _, rk := range ranks {
		out = append(out, rk.Target)
	}
	if len(out) == 0 {
		for _, n := range r.order {
			if strings.Contains(n, name) || strings.Contains(name, n) {
				out = append(out, n)
			}
		}
	}
	return out
}

// List returns the profiles in declaration order.
func (r *Registry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Profile, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.profiles[n])
	}
	return out
}

// Names returns the profile names in declaration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Detect returns the first profile, in declaration order, whose detect
// markers match a line of the document's first pages.
func (r *Registry) Detect(pages []models.Page) (*Profile, error) {
	var texts []string
	for i, pg := range pages {
		if i >= detectPages {
			break
		}
		for _, l := range layout.AssembleLines(pg.Fragments, layout.DefaultTolerance) {
			texts = append(texts, l.Text())
		}
	}
	for _, p := range r.List() {
		for _, t := range texts {
			if _, ok := p.MatchDetect(t); ok {
				return p, nil
			}
		}
	}
	return nil, ErrNoProfileDetected
}

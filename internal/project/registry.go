// Package project manages the registry of indexed projects and the data
// directory layout. Each project owns a subdirectory of the data dir named
// by its ID, holding its indexes, state file, and caches.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// Project is one registered working tree.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

// registryFile is the projects.json layout.
type registryFile struct {
	Active   string    `json:"active,omitempty"`
	Projects []Project `json:"projects"`
}

// Registry is the in-memory registry, persisted to projects.json under the
// data dir. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	dataDir  string
	active   string
	projects map[string]Project // by ID
}

// AcquireLock takes the data-dir lock, refusing to share the directory with
// another server instance. The returned function releases it.
func AcquireLock(dataDir string) (func(), error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	fl := flock.New(filepath.Join(dataDir, ".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, apperr.Newf(apperr.KindAlreadyExists,
			"data dir %s is in use by another instance", dataDir)
	}
	return func() { _ = fl.Unlock() }, nil
}

// OpenRegistry loads projects.json, or starts empty when missing.
func OpenRegistry(dataDir string) (*Registry, error) {
	r := &Registry{
		dataDir:  dataDir,
		projects: make(map[string]Project),
	}

	data, err := os.ReadFile(r.registryPath())
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperr.Corrupt(r.registryPath(), err)
	}
	r.active = file.Active
	for _, p := range file.Projects {
		r.projects[p.ID] = p
	}
	return r, nil
}

func (r *Registry) registryPath() string {
	return filepath.Join(r.dataDir, "projects.json")
}

// ProjectDir returns the per-project data directory.
func (r *Registry) ProjectDir(id string) string {
	return filepath.Join(r.dataDir, id)
}

// persistLocked writes projects.json atomically. Caller holds the lock.
func (r *Registry) persistLocked() error {
	file := registryFile{Active: r.active}
	for _, p := range r.projects {
		file.Projects = append(file.Projects, p)
	}
	sort.Slice(file.Projects, func(i, j int) bool {
		return file.Projects[i].Name < file.Projects[j].Name
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmp, err := os.CreateTemp(r.dataDir, ".projects-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close registry: %w", err)
	}
	return os.Rename(tmpName, r.registryPath())
}

var nameSanitizer = regexp.MustCompile(`[^a-z0-9_-]+`)

// SanitizeName normalizes a project name: lowercase, runs of anything
// outside [a-z0-9_-] collapse to a single dash.
func SanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nameSanitizer.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

// newID derives a project ID: first 8 hex chars of the hash of the absolute
// path and the registration time. Stable for the project's lifetime, unique
// across re-adds of the same path.
func newID(absPath string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", absPath, at.UnixNano())))
	return hex.EncodeToString(sum[:])[:8]
}

// Add registers a working tree. Re-adding an already registered path returns
// the existing project unchanged. A name collision with a different path is
// an error.
func (r *Registry) Add(path, name string) (Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Project{}, fmt.Errorf("resolve project path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return Project{}, apperr.Wrap(apperr.KindInvalid, "project path not accessible", err)
	}
	if !info.IsDir() {
		return Project{}, apperr.Newf(apperr.KindInvalid, "project path is not a directory: %s", absPath)
	}

	if name == "" {
		name = filepath.Base(absPath)
	}
	name = SanitizeName(name)
	if name == "" {
		return Project{}, apperr.New(apperr.KindInvalid, "project name is empty after sanitization")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.projects {
		if p.Path == absPath {
			return p, nil
		}
		if p.Name == name {
			return Project{}, apperr.AlreadyExists("project name", name)
		}
	}

	p := Project{
		ID:        newID(absPath, time.Now()),
		Name:      name,
		Path:      absPath,
		CreatedAt: time.Now().UTC(),
	}
	r.projects[p.ID] = p

	if r.active == "" {
		r.active = p.ID
	}
	if err := r.persistLocked(); err != nil {
		delete(r.projects, p.ID)
		return Project{}, err
	}
	return p, nil
}

// Resolve finds a project by ID, name, or path. An empty selector resolves
// the active project.
func (r *Registry) Resolve(selector string) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if selector == "" {
		if r.active == "" {
			return Project{}, apperr.New(apperr.KindNotFound, "no active project")
		}
		p, ok := r.projects[r.active]
		if !ok {
			return Project{}, apperr.NotFound("active project", r.active)
		}
		return p, nil
	}

	if p, ok := r.projects[selector]; ok {
		return p, nil
	}
	// Names are stored sanitized; sanitize the selector the same way so
	// "My Proj" finds the project registered as "my-proj".
	if name := SanitizeName(selector); name != "" {
		for _, p := range r.projects {
			if p.Name == name {
				return p, nil
			}
		}
	}
	if abs, err := filepath.Abs(selector); err == nil {
		for _, p := range r.projects {
			if p.Path == abs {
				return p, nil
			}
		}
	}
	return Project{}, apperr.NotFound("project", selector)
}

// ResolveByPrefix finds the project whose path is the longest prefix of the
// given path. Used to infer the project from a caller's working directory.
func (r *Registry) ResolveByPrefix(path string) (Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Project{}, fmt.Errorf("resolve path: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Project
	bestLen := -1
	for _, p := range r.projects {
		if (abs == p.Path || strings.HasPrefix(abs, p.Path+string(filepath.Separator))) && len(p.Path) > bestLen {
			best = p
			bestLen = len(p.Path)
		}
	}
	if bestLen < 0 {
		return Project{}, apperr.NotFound("project containing", abs)
	}
	return best, nil
}

// Activate marks a project as the default for selector-less calls.
func (r *Registry) Activate(selector string) (Project, error) {
	p, err := r.Resolve(selector)
	if err != nil {
		return Project{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = p.ID
	if err := r.persistLocked(); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Remove unregisters a project and deletes its data directory subtree. The
// working tree itself is never touched.
func (r *Registry) Remove(selector string) (Project, error) {
	p, err := r.Resolve(selector)
	if err != nil {
		return Project{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.projects, p.ID)
	if r.active == p.ID {
		r.active = ""
	}
	if err := r.persistLocked(); err != nil {
		return Project{}, err
	}

	if err := os.RemoveAll(r.ProjectDir(p.ID)); err != nil {
		return Project{}, fmt.Errorf("remove project data: %w", err)
	}
	return p, nil
}

// List returns all projects sorted by name, plus the active ID.
func (r *Registry) List() ([]Project, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, r.active
}

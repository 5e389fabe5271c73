package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

const (
	projectsDir  = "RXN_Projects"
	projectsFile = "rxn_projects.json"
)

// ProjectRegistry maps RXN project names to ids. Every change is followed
// by a timestamped backup copy next to the registry file.
type ProjectRegistry struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewProjectRegistry keeps its file under homeDir.
func NewProjectRegistry(homeDir string) *ProjectRegistry {
	return &ProjectRegistry{dir: filepath.Join(homeDir, projectsDir), now: time.Now}
}

// Path is the registry file.
func (r *ProjectRegistry) Path() string { return filepath.Join(r.dir, projectsFile) }

// All returns the registry. A missing or unreadable file is an empty
// registry.
func (r *ProjectRegistry) All() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *ProjectRegistry) load() map[string]string {
	projects := map[string]string{}
	data, err := os.ReadFile(r.Path())
	if err != nil {
		return projects
	}
	if err := json.Unmarshal(data, &projects); err != nil {
		return map[string]string{}
	}
	return projects
}

// Lookup returns the id registered for name. Names mapped to an empty id
// are treated as missing.
func (r *ProjectRegistry) Lookup(name string) (string, bool) {
	id, ok := r.All()[name]
	return id, ok && id != ""
}

// Append records name -> id.
func (r *ProjectRegistry) Append(name, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeRXNProjectSync, "failed to create project registry directory")
	}
	projects := r.load()
	projects[name] = id

	data, err := json.Marshal(projects)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode project registry")
	}
	if err := os.WriteFile(r.Path(), data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeRXNProjectSync, "failed to write project registry")
	}
	backup := filepath.Join(r.dir, "rxn_projects_"+r.now().Format("2006-01-02_150405")+".bup")
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeRXNProjectSync, "failed to back up project registry")
	}
	return nil
}

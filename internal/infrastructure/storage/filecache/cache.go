// Package filecache is the on-disk ResultCache of a workspace. Records live
// under <workspace>/._openad/rxn_cache as rxn-<logical_name>--<key>.result
// files holding {"payload": ...} JSON.
package filecache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

// MaxFileNameLength is the longest record file name that will be written.
const MaxFileNameLength = 256

const (
	fileSuffix = ".result"
	tmpPrefix  = ".tmp-"
)

// Dir returns the cache directory of a workspace.
func Dir(workspaceDir string) string {
	return filepath.Join(workspaceDir, "._openad", "rxn_cache")
}

var nameEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C", "\x00", "%00")

// FileName builds the record file name. Path separators inside SMILES are
// percent-escaped so that every key maps to a single file.
func FileName(logicalName, key string) string {
	return "rxn-" + nameEscaper.Replace(logicalName) + "--" + nameEscaper.Replace(key) + fileSuffix
}

type record struct {
	Payload reaction.Payload `json:"payload"`
}

// Cache implements reaction.ResultCache on the local filesystem.
type Cache struct {
	dir    string
	logger logging.Logger
}

// New returns a cache rooted at Dir(workspaceDir). The directory is
// created on the first Store.
func New(workspaceDir string, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cache{dir: Dir(workspaceDir), logger: logger.Named("filecache")}
}

// Dir is the directory the cache writes to.
func (c *Cache) Dir() string { return c.dir }

// Store writes through a temp file and rename so readers never observe a
// partial record.
func (c *Cache) Store(_ context.Context, logicalName, key string, payload reaction.Payload) bool {
	name := FileName(logicalName, key)
	if len(name) > MaxFileNameLength {
		c.logger.Warn("result not cached, file name too long",
			logging.String("logical_name", logicalName),
			logging.Int("length", len(name)),
			logging.Int("max", MaxFileNameLength))
		return false
	}

	data, err := json.Marshal(record{Payload: payload})
	if err != nil {
		c.logger.Error("failed to encode cache record", logging.String("file", name), logging.Err(err))
		return false
	}

	if err := c.writeAtomic(name, data); err != nil {
		c.logger.Error("failed to save result as cache", logging.String("file", name), logging.Err(err))
		return false
	}
	c.logger.Debug("result cached", logging.String("file", name))
	return true
}

func (c *Cache) writeAtomic(name string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Retrieve returns (nil, false) for missing, unreadable or corrupt records.
func (c *Cache) Retrieve(_ context.Context, logicalName, key string) (reaction.Payload, bool) {
	name := FileName(logicalName, key)
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Debug("cache read failed", logging.String("file", name), logging.Err(err))
		}
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Payload == nil {
		c.logger.Debug("cache record unreadable", logging.String("file", name))
		return nil, false
	}
	return rec.Payload, true
}

// ClearAll deletes every file in the cache directory. A missing directory
// counts as empty.
func (c *Cache) ClearAll(_ context.Context) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("filecache: read %s: %w", c.dir, err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("filecache: remove %s: %w", e.Name(), err)
		}
		if strings.HasSuffix(e.Name(), fileSuffix) {
			removed++
		}
	}
	c.logger.Info("cache cleared", logging.Int("removed", removed))
	return removed, nil
}

var _ reaction.ResultCache = (*Cache)(nil)

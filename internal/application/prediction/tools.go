package prediction

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ModelVersions is one row of the model listing.
type ModelVersions struct {
	Model    string   `json:"model"`
	Versions []string `json:"versions"`
}

// Recipe is an interpreted experimental procedure.
type Recipe struct {
	Source  string   `json:"source"`
	Actions []string `json:"actions"`
}

// Tools covers the RXN commands that need no batch orchestration.
type Tools struct {
	api          RXNAPI
	cache        reaction.ResultCache
	workspaceDir string
	logger       logging.Logger
}

// NewTools builds the model listing, recipe and cache commands. Recipe
// files are resolved against workspaceDir.
func NewTools(api RXNAPI, cache reaction.ResultCache, workspaceDir string, log logging.Logger) *Tools {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Tools{api: api, cache: cache, workspaceDir: workspaceDir, logger: log.Named("rxn_tools")}
}

// ListModels returns model families sorted by name.
func (t *Tools) ListModels(ctx context.Context) ([]ModelVersions, error) {
	models, err := t.api.ListModels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "unable to load models")
	}
	out := make([]ModelVersions, 0, len(models))
	for name, versions := range models {
		row := ModelVersions{Model: name, Versions: make([]string, 0, len(versions))}
		for _, v := range versions {
			row.Versions = append(row.Versions, v.Name)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

// InterpretRecipe turns a paragraph into actions. When recipe names a file
// inside the workspace, the file content is interpreted instead.
func (t *Tools) InterpretRecipe(ctx context.Context, recipe string) (*Recipe, error) {
	paragraph := recipe
	source := "paragraph"
	if name := strings.TrimSpace(recipe); name != "" && t.workspaceDir != "" {
		path := filepath.Join(t.workspaceDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeRXNInputSourceFailed, "unable to read recipe file")
			}
			paragraph = string(data)
			source = name
		}
	}

	actions, err := t.api.ParagraphToActions(ctx, paragraph)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to parse the provided paragraph")
	}
	if len(actions) == 0 {
		return nil, errors.New(errors.ErrCodeRXNNoActions, "no actions found in the provided paragraph")
	}
	t.logger.Info("recipe interpreted", logging.String("source", source), logging.Int("actions", len(actions)))
	return &Recipe{Source: source, Actions: actions}, nil
}

// ClearCache removes every cached prediction of the workspace.
func (t *Tools) ClearCache(ctx context.Context) (int, error) {
	if t.cache == nil {
		return 0, nil
	}
	n, err := t.cache.ClearAll(ctx)
	if err != nil {
		return n, errors.Wrap(err, errors.ErrCodeRXNCacheIO, "failed to clear cache")
	}
	return n, nil
}

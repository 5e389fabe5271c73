// Package command defines the RXN and Deep Search commands as tagged
// variants. Each variant is validated once, where it is built.
package command

import (
	"strings"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// Kind tags a command variant.
type Kind string

const (
	KindPredictReactions        Kind = "rxn.predict_reactions"
	KindPredictRetro            Kind = "rxn.predict_retro"
	KindListModels              Kind = "rxn.list_models"
	KindInterpretRecipe         Kind = "rxn.interpret_recipe"
	KindClearCache              Kind = "rxn.clear_cache"
	KindResetLogin              Kind = "rxn.reset_login"
	KindDSListCollections       Kind = "ds.list_collections"
	KindDSCollectionDetails     Kind = "ds.collection_details"
	KindDSListDomains           Kind = "ds.list_domains"
	KindDSCollectionsContaining Kind = "ds.collections_containing"
	KindDSSearchCollection      Kind = "ds.search_collection"
	KindDSFindSimilar           Kind = "ds.find_similar"
	KindDSFindSubstructure      Kind = "ds.find_substructure"
	KindDSPatentsContaining     Kind = "ds.patents_containing"
	KindDSMoleculesInPatents    Kind = "ds.molecules_in_patents"
)

// Command is implemented by every variant.
type Command interface {
	Kind() Kind
	Validate() error
}

// Output holds the options shared by commands producing a table.
type Output struct {
	SaveAs string
	Rich   bool
}

func (o Output) validate() error {
	if o.SaveAs == "" {
		return nil
	}
	if strings.ContainsAny(o.SaveAs, "\x00") || strings.Contains(o.SaveAs, "..") {
		return errors.New(errors.ErrCodeValidation, "save as: file must stay inside the workspace")
	}
	return nil
}

// PredictReactions predicts the products of the reactions read from
// Source, one product per reaction or Params.TopN candidates each.
type PredictReactions struct {
	Source   InputSource
	Params   reaction.ReactionParams
	UseCache bool
	Output
}

func (PredictReactions) Kind() Kind { return KindPredictReactions }

func (c PredictReactions) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if c.Params.Model == "" {
		return errors.New(errors.ErrCodeRXNInvalidParams, "ai_model is required")
	}
	if c.Params.TopN < 0 {
		return errors.New(errors.ErrCodeRXNInvalidParams, "topn must not be negative")
	}
	return c.Output.validate()
}

// PredictRetro asks for retrosynthesis routes to the SMILES target.
type PredictRetro struct {
	SMILES   string
	Params   reaction.RetroParams
	UseCache bool
	Output
}

func (PredictRetro) Kind() Kind { return KindPredictRetro }

func (c PredictRetro) Validate() error {
	if strings.TrimSpace(c.SMILES) == "" {
		return errors.New(errors.ErrCodeRXNInvalidInput, "a target SMILES is required")
	}
	p := c.Params
	switch {
	case p.Model == "":
		return errors.New(errors.ErrCodeRXNInvalidParams, "ai_model is required")
	case p.FAP < 0 || p.FAP > 1:
		return errors.New(errors.ErrCodeRXNInvalidParams, "fap must be between 0 and 1")
	case p.MaxSteps < 1:
		return errors.New(errors.ErrCodeRXNInvalidParams, "max_steps must be positive")
	case p.NBeams < 1:
		return errors.New(errors.ErrCodeRXNInvalidParams, "nbeams must be positive")
	case p.PruningSteps < 0:
		return errors.New(errors.ErrCodeRXNInvalidParams, "pruning_steps must not be negative")
	case p.AvailabilityPricingThreshold < 0:
		return errors.New(errors.ErrCodeRXNInvalidParams, "availability_pricing_threshold must not be negative")
	}
	return c.Output.validate()
}

// ListModels lists the RXN model families and versions.
type ListModels struct {
	Output
}

func (ListModels) Kind() Kind        { return KindListModels }
func (c ListModels) Validate() error { return c.Output.validate() }

// InterpretRecipe takes a paragraph or a workspace file name.
type InterpretRecipe struct {
	Recipe string
}

func (InterpretRecipe) Kind() Kind { return KindInterpretRecipe }

func (c InterpretRecipe) Validate() error {
	if strings.TrimSpace(c.Recipe) == "" {
		return errors.New(errors.ErrCodeValidation, "recipe must not be empty")
	}
	return nil
}

// ClearCache empties the prediction cache of the workspace.
type ClearCache struct{}

func (ClearCache) Kind() Kind      { return KindClearCache }
func (ClearCache) Validate() error { return nil }

// ResetLogin forgets the stored credentials of one toolkit.
type ResetLogin struct {
	Toolkit string
}

func (ResetLogin) Kind() Kind { return KindResetLogin }

func (c ResetLogin) Validate() error {
	switch strings.ToUpper(c.Toolkit) {
	case "RXN", "DS4SD", "DEEPSEARCH":
		return nil
	}
	return errors.Newf(errors.ErrCodeValidation, "unknown toolkit %q", c.Toolkit)
}

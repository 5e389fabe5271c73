package command

import (
	"strings"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// DSListCollections lists collections, optionally only those of Domains.
type DSListCollections struct {
	Details bool
	Domains []string
	Output
}

func (DSListCollections) Kind() Kind        { return KindDSListCollections }
func (c DSListCollections) Validate() error { return c.Output.validate() }

// DSCollectionDetails shows one collection looked up by name or index key.
type DSCollectionDetails struct {
	Collection string
}

func (DSCollectionDetails) Kind() Kind { return KindDSCollectionDetails }

func (c DSCollectionDetails) Validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New(errors.ErrCodeValidation, "collection name or key must not be empty")
	}
	return nil
}

// DSListDomains lists the collection domains.
type DSListDomains struct {
	Output
}

func (DSListDomains) Kind() Kind        { return KindDSListDomains }
func (c DSListDomains) Validate() error { return c.Output.validate() }

// DSCollectionsContaining counts matches of Query in every document collection.
type DSCollectionsContaining struct {
	Query string
	Output
}

func (DSCollectionsContaining) Kind() Kind { return KindDSCollectionsContaining }

func (c DSCollectionsContaining) Validate() error {
	if strings.TrimSpace(c.Query) == "" {
		return errors.New(errors.ErrCodeValidation, "search query must not be empty")
	}
	return c.Output.validate()
}

// Show values for DSSearchCollection.
const (
	ShowData = "data"
	ShowDocs = "docs"
)

// DSSearchCollection is a paginated full-text search of one collection.
type DSSearchCollection struct {
	Query        string
	Collection   string
	ElasticID    string
	PageSize     int
	Slop         int
	Limit        int
	Show         []string
	EstimateOnly bool
	Output
}

// Search defaults.
const (
	DefaultCollection = "pubchem"
	DefaultElasticID  = "default"
	DefaultPageSize   = 50
	DefaultSlop       = 3
)

// NewDSSearchCollection fills defaults and applies USING overrides
// (elastic_page_size, elastic_id, slop, limit_results).
func NewDSSearchCollection(query, collection string, using Using) (DSSearchCollection, error) {
	if err := using.Allow("elastic_page_size", "elastic_id", "slop", "limit_results"); err != nil {
		return DSSearchCollection{}, err
	}
	c := DSSearchCollection{
		Query:      query,
		Collection: collection,
		ElasticID:  using.String("elastic_id", DefaultElasticID),
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	var err error
	if c.PageSize, err = using.Int("elastic_page_size", DefaultPageSize); err != nil {
		return c, err
	}
	if c.Slop, err = using.Int("slop", DefaultSlop); err != nil {
		return c, err
	}
	if c.Limit, err = using.Int("limit_results", 0); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (DSSearchCollection) Kind() Kind { return KindDSSearchCollection }

func (c DSSearchCollection) Validate() error {
	switch {
	case strings.TrimSpace(c.Query) == "":
		return errors.New(errors.ErrCodeValidation, "search query must not be empty")
	case c.PageSize < 1:
		return errors.New(errors.ErrCodeValidation, "elastic_page_size must be positive")
	case c.Slop < 0:
		return errors.New(errors.ErrCodeValidation, "slop must not be negative")
	case c.Limit < 0:
		return errors.New(errors.ErrCodeValidation, "limit_results must not be negative")
	}
	for _, s := range c.Show {
		if s != ShowData && s != ShowDocs {
			return errors.Newf(errors.ErrCodeValidation, "show accepts data or docs, got %q", s)
		}
	}
	return c.Output.validate()
}

// Shows reports whether what was requested in the show clause.
func (c DSSearchCollection) Shows(what string) bool {
	for _, s := range c.Show {
		if s == what {
			return true
		}
	}
	return false
}

// DSFindSimilar looks up molecules similar to SMILES in the knowledge
// graph.
type DSFindSimilar struct {
	SMILES string
	Output
}

func (DSFindSimilar) Kind() Kind        { return KindDSFindSimilar }
func (c DSFindSimilar) Validate() error { return requireIdentifier(c.SMILES, c.Output) }

// DSFindSubstructure looks up molecules that contain SMILES.
type DSFindSubstructure struct {
	SMILES string
	Output
}

func (DSFindSubstructure) Kind() Kind        { return KindDSFindSubstructure }
func (c DSFindSubstructure) Validate() error { return requireIdentifier(c.SMILES, c.Output) }

// DSPatentsContaining takes a SMILES, InChI or InChIKey.
type DSPatentsContaining struct {
	Identifier string
	Output
}

func (DSPatentsContaining) Kind() Kind        { return KindDSPatentsContaining }
func (c DSPatentsContaining) Validate() error { return requireIdentifier(c.Identifier, c.Output) }

// DSMoleculesInPatents reads patent ids from a list, CSV file or table.
type DSMoleculesInPatents struct {
	Source InputSource
	Output
}

func (DSMoleculesInPatents) Kind() Kind { return KindDSMoleculesInPatents }

func (c DSMoleculesInPatents) Validate() error {
	if c.Source.Kind == SourceString || c.Source.Kind == SourceTXT {
		return errors.New(errors.ErrCodeValidation, "patent ids come from a list, a CSV file or a table")
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	return c.Output.validate()
}

func requireIdentifier(id string, o Output) error {
	if strings.TrimSpace(id) == "" {
		return errors.New(errors.ErrCodeDSInvalidIdentifier, "a molecule identifier is required")
	}
	return o.validate()
}

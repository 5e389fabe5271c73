package deepsearch

import (
	"context"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// PatentItems is the number of knowledge graph items requested per lookup.
const PatentItems = 20

// Analysis function names.
const (
	FunctionSimilar      = "Similar_Molecules"
	FunctionSubstructure = "Substructure_Molecules"
	FunctionPatents      = "Patents_Containing_Molecule"
)

// PatentIDColumns are the accepted names of the patent id column.
var PatentIDColumns = []string{"patent id", "patent_id", "patentid"}

// MoleculeResult lists molecules found for a SMILES query.
type MoleculeResult struct {
	Input     string        `json:"input"`
	Canonical string        `json:"canonical"`
	Table     command.Table `json:"table"`
}

// FindSimilar lists molecules similar to smiles.
func (s *Service) FindSimilar(ctx context.Context, smiles string) (*MoleculeResult, error) {
	return s.moleculeSearch(ctx, smiles, client.MolQuerySimilarity, FunctionSimilar)
}

// FindSubstructure lists molecules containing smiles as a substructure.
func (s *Service) FindSubstructure(ctx context.Context, smiles string) (*MoleculeResult, error) {
	return s.moleculeSearch(ctx, smiles, client.MolQuerySubstructure, FunctionSubstructure)
}

func (s *Service) moleculeSearch(ctx context.Context, smiles string, qt client.MolQueryType, function string) (*MoleculeResult, error) {
	smiles = strings.TrimSpace(smiles)
	canonical, ok := s.canonicalSMILES(smiles)
	if !ok {
		return nil, errors.New(errors.ErrCodeDSInvalidIdentifier, "invalid SMILES").WithDetail("input: '" + smiles + "'")
	}

	var mols []client.Molecule
	err := s.observe(OpMoleculeSearch, func() error {
		var err error
		mols, err = s.knowledge.MoleculeSearch(ctx, canonical, qt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(mols) == 0 {
		return nil, errors.Newf(errors.ErrCodeDSNoResults, "no %s molecules found", qt)
	}

	tbl := moleculesTable("id", mols)
	s.saveAnalysis(ctx, canonical, function, tableRecords(tbl))
	s.logger.Info("molecules found",
		logging.String("query_type", string(qt)),
		logging.String("smiles", canonical),
		logging.Int("count", len(mols)))
	return &MoleculeResult{Input: smiles, Canonical: canonical, Table: tbl}, nil
}

func (s *Service) canonicalSMILES(smiles string) (string, bool) {
	if smiles == "" || len(reaction.InvalidFragments(s.validator, smiles)) > 0 {
		return "", false
	}
	canonical, err := s.validator.Canonicalize(smiles)
	if err != nil || canonical == "" {
		return "", false
	}
	return canonical, true
}

// PatentResult lists patents that mention a molecule.
type PatentResult struct {
	Identifier     string        `json:"identifier"`
	IdentifierType string        `json:"identifier_type"`
	Table          command.Table `json:"table"`
}

// identifierType labels for PatentResult.
const (
	IdentifierSMILES   = "SMILES"
	IdentifierInChI    = "InChI"
	IdentifierInChIKey = "InChIKey"
)

// classifyIdentifier tries SMILES first, then InChI, and falls back to
// InChIKey.
func (s *Service) classifyIdentifier(id string) (client.Identifier, string) {
	if canonical, ok := s.canonicalSMILES(id); ok {
		return client.Identifier{Type: string(client.MolIDSmiles), Value: canonical}, IdentifierSMILES
	}
	if strings.HasPrefix(id, "InChI=") {
		return client.Identifier{Type: string(client.MolIDInChI), Value: id}, IdentifierInChI
	}
	return client.Identifier{Type: string(client.MolIDInChIKey), Value: id}, IdentifierInChIKey
}

// PatentsContaining lists patents mentioning the molecule given as SMILES,
// InChI or InChIKey.
func (s *Service) PatentsContaining(ctx context.Context, identifier string) (*PatentResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New(errors.ErrCodeDSInvalidIdentifier, "a molecule identifier is required")
	}
	id, typ := s.classifyIdentifier(identifier)

	var docs []client.PatentDoc
	err := s.observe(OpPatentsWithMolecule, func() error {
		var err error
		docs, err = s.knowledge.PatentsWithMolecule(ctx, id, PatentItems)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.Newf(errors.ErrCodeDSNoResults, "no patents found for %s %s", typ, id.Value)
	}

	tbl := command.Table{Columns: []string{"Patent ID"}}
	for _, d := range docs {
		tbl.Rows = append(tbl.Rows, []string{d.PatentID()})
	}
	s.saveAnalysis(ctx, id.Value, FunctionPatents, tableRecords(tbl))
	s.logger.Info("patents found",
		logging.String("identifier_type", typ),
		logging.Int("count", len(docs)))
	return &PatentResult{Identifier: id.Value, IdentifierType: typ, Table: tbl}, nil
}

// PatentMoleculesResult lists molecules mentioned in a set of patents.
type PatentMoleculesResult struct {
	PatentIDs []string      `json:"patent_ids"`
	Table     command.Table `json:"table"`
}

// MoleculesInPatents reads patent ids from src and lists the molecules the
// patents mention.
func (s *Service) MoleculesInPatents(ctx context.Context, src command.InputSource) (*PatentMoleculesResult, error) {
	ids, err := s.patentIDs(src)
	if err != nil {
		return nil, err
	}

	var mols []client.Molecule
	err = s.observe(OpMoleculesInPatents, func() error {
		var err error
		mols, err = s.knowledge.MoleculesInPatents(ctx, ids, PatentItems)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(mols) == 0 {
		return nil, errors.New(errors.ErrCodeDSNoResults, "no molecules found in the provided patents").
			WithDetail(strings.Join(ids, ", "))
	}
	return &PatentMoleculesResult{PatentIDs: ids, Table: moleculesTable("Id", mols)}, nil
}

func (s *Service) patentIDs(src command.InputSource) ([]string, error) {
	var (
		ids []string
		err error
	)
	switch {
	case src.Kind == command.SourceList:
		for _, id := range src.List {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	case s.columns == nil:
		return nil, errors.Newf(errors.ErrCodeValidation, "cannot read patent ids from %s", src.Kind)
	default:
		ids, err = s.columns.ReadColumn(src, PatentIDColumns...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "no patent ids found")
		}
	}
	if len(ids) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no patent ids found")
	}
	return ids, nil
}

func moleculesTable(idColumn string, mols []client.Molecule) command.Table {
	tbl := command.Table{Columns: []string{idColumn, "SMILES", "InChIKey", "InChI"}}
	for _, m := range mols {
		tbl.Rows = append(tbl.Rows, []string{
			m.PersistentID,
			m.IdentifierOf(string(client.MolIDSmiles)),
			m.IdentifierOf(string(client.MolIDInChIKey)),
			m.IdentifierOf(string(client.MolIDInChI)),
		})
	}
	return tbl
}

// tableRecords converts rows to column-keyed records for analysis storage.
func tableRecords(tbl command.Table) []map[string]string {
	out := make([]map[string]string, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		rec := make(map[string]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			if i < len(r) {
				rec[c] = r[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

package deepsearch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// DocumentCollection is the metadata type of collections holding documents.
const DocumentCollection = "Document"

// ListCollections returns every collection sorted by name. When domains are
// given, only collections whose domain path contains one of them, ignoring
// case, are returned.
func (s *Service) ListCollections(ctx context.Context, domains ...string) ([]client.Collection, error) {
	cols, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.New(errors.ErrCodeDSNoResults, "no collections available")
	}
	wanted := normalizeDomains(domains)
	if len(wanted) == 0 {
		return cols, nil
	}

	var out []client.Collection
	for _, c := range cols {
		path := strings.ToUpper(strings.Join(c.Metadata.Domain, " / "))
		for _, d := range wanted {
			if strings.Contains(path, d) {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.Newf(errors.ErrCodeDSNoResults, "no collections found for domain %s",
			strings.Join(quoteAll(domains), ", "))
	}
	return out, nil
}

func normalizeDomains(domains []string) []string {
	var out []string
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, strings.ToUpper(d))
		}
	}
	return out
}

func quoteAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, "'"+it+"'")
		}
	}
	return out
}

// CollectionDetails looks up one collection by name or index key. Each
// collection is checked against both in listing order and the first hit wins.
func (s *Service) CollectionDetails(ctx context.Context, nameOrKey string) (*client.Collection, error) {
	nameOrKey = strings.TrimSpace(nameOrKey)
	if nameOrKey == "" {
		return nil, errors.New(errors.ErrCodeValidation, "collection name or key must not be empty")
	}
	cols, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		if cols[i].Name == nameOrKey || cols[i].Source.IndexKey == nameOrKey {
			return &cols[i], nil
		}
	}
	return nil, errors.Newf(errors.ErrCodeDSCollectionNotFound, "no collection found by name or key '%s'", nameOrKey).
		WithDetail("available: " + strings.Join(collectionKeys(cols), ", "))
}

// DetailsText renders a collection as a titled block of labelled lines.
func DetailsText(c client.Collection) string {
	created := ""
	if !c.Metadata.Created.IsZero() {
		created = c.Metadata.Created.Format("January 2, 2006")
	}
	lines := []string{c.Name}
	if c.Metadata.Description != "" {
		lines = append(lines, c.Metadata.Description)
	}
	lines = append(lines,
		"---",
		"Name     "+c.Name,
		"Key      "+c.Source.IndexKey,
		"Domain   "+strings.Join(c.Metadata.Domain, " / "),
		"Type     "+c.Metadata.Type,
		"Entries  "+PrettyNumber(c.Documents),
		"Created  "+created,
	)
	return strings.Join(lines, "\n")
}

// CollectionsTable lays out collections one per row.
func CollectionsTable(cols []client.Collection) command.Table {
	tbl := command.Table{Columns: []string{
		"Collection Name", "Collection Key", "Entries", "Domain", "Type", "Created", "Elastic ID",
	}}
	for _, c := range cols {
		created := ""
		if !c.Metadata.Created.IsZero() {
			created = c.Metadata.Created.Format("2006-01-02")
		}
		tbl.Rows = append(tbl.Rows, []string{
			c.Name,
			c.Source.IndexKey,
			PrettyNumber(c.Documents),
			strings.Join(c.Metadata.Domain, " / "),
			c.Metadata.Type,
			created,
			c.Source.ElasticID,
		})
	}
	return tbl
}

// DomainCount is the number of collections tagged with a domain.
type DomainCount struct {
	Domain      string `json:"domain"`
	Collections int    `json:"collections"`
}

// ListDomains counts collections per domain in order of first appearance.
func (s *Service) ListDomains(ctx context.Context) ([]DomainCount, error) {
	cols, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out   []DomainCount
		index = make(map[string]int)
	)
	for _, c := range cols {
		for _, d := range c.Metadata.Domain {
			if i, ok := index[d]; ok {
				out[i].Collections++
				continue
			}
			index[d] = len(out)
			out = append(out, DomainCount{Domain: d, Collections: 1})
		}
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeDSNoResults, "no domains found")
	}
	return out, nil
}

// DomainsTable lays out one row per domain with its collection count.
func DomainsTable(domains []DomainCount) command.Table {
	tbl := command.Table{Columns: []string{"Domain", "Collections"}}
	for _, d := range domains {
		tbl.Rows = append(tbl.Rows, []string{d.Domain, strconv.Itoa(d.Collections)})
	}
	return tbl
}

// CollectionMatch is a document collection with at least one match.
type CollectionMatch struct {
	Domain  string `json:"domain"`
	Name    string `json:"name"`
	Key     string `json:"key"`
	Matches int64  `json:"matches"`
}

// CollectionsContaining counts matches of query in every document
// collection. Collections are queried concurrently, at most maxFanOut at a
// time, and reported in name order. The first failing query cancels the rest.
func (s *Service) CollectionsContaining(ctx context.Context, query string) ([]CollectionMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.ErrCodeValidation, "search query must not be empty")
	}
	cols, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}

	var docs []client.Collection
	for _, c := range cols {
		if c.Metadata.Type == DocumentCollection {
			docs = append(docs, c)
		}
	}

	counts := make([]int64, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxFanOut)
	for i, c := range docs {
		i, c := i, c
		g.Go(func() error {
			s.reporter.Status("Querying " + c.Name)
			return s.observe(OpCount, func() error {
				res, err := s.data.RunDataQuery(gctx, c.Source, client.DataQuery{
					Query:  query,
					Source: []string{""},
					Limit:  0,
				})
				if err != nil {
					return err
				}
				counts[i] = res.DataCount
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []CollectionMatch
	for i, c := range docs {
		if counts[i] <= 0 {
			continue
		}
		out = append(out, CollectionMatch{
			Domain:  strings.Join(c.Metadata.Domain, " / "),
			Name:    c.Name,
			Key:     c.Source.IndexKey,
			Matches: counts[i],
		})
	}
	if len(out) == 0 {
		return nil, errors.Newf(errors.ErrCodeDSNoResults, "no collections contain '%s'", query)
	}
	s.logger.Info("matching collections found",
		logging.String("query", query),
		logging.Int("collections", len(out)),
		logging.Int("searched", len(docs)))
	return out, nil
}

// MatchesTable lays out one row per matching collection.
func MatchesTable(matches []CollectionMatch) command.Table {
	tbl := command.Table{Columns: []string{"Domain", "Collection Name", "Collection Key", "Matches"}}
	for _, m := range matches {
		tbl.Rows = append(tbl.Rows, []string{m.Domain, m.Name, m.Key, strconv.FormatInt(m.Matches, 10)})
	}
	return tbl
}

// resolveCollection accepts a collection key or name and the elastic id,
// and returns the collection's source.
func resolveCollection(cols []client.Collection, nameOrKey, elasticID string) (client.CollectionSource, error) {
	var (
		found      *client.Collection
		elasticIDs = make(map[string]bool)
	)
	for i := range cols {
		elasticIDs[cols[i].Source.ElasticID] = true
		if cols[i].Source.IndexKey == nameOrKey {
			found = &cols[i]
		}
	}
	if found == nil {
		for i := range cols {
			if cols[i].Name == nameOrKey {
				found = &cols[i]
				break
			}
		}
	}
	if found == nil {
		return client.CollectionSource{}, errors.Newf(errors.ErrCodeDSCollectionNotFound,
			"invalid collection key or name '%s'", nameOrKey).WithDetail("available: " + strings.Join(collectionKeys(cols), ", "))
	}
	if !elasticIDs[elasticID] {
		return client.CollectionSource{}, errors.Newf(errors.ErrCodeDSCollectionNotFound,
			"invalid elastic_id '%s'", elasticID)
	}
	return client.CollectionSource{ElasticID: elasticID, IndexKey: found.Source.IndexKey}, nil
}

func collectionKeys(cols []client.Collection) []string {
	keys := make([]string, 0, len(cols))
	for _, c := range cols {
		keys = append(keys, c.Source.IndexKey)
	}
	return keys
}

// PrettyNumber groups thousands with commas.
func PrettyNumber(n int64) string {
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := fmt.Sprint(n)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + b.String()
}

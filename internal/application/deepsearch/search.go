package deepsearch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// LargeResultThreshold is the expected result count above which Confirm is
// consulted before fetching.
const LargeResultThreshold = 100

// ByYearAggregation is the per-year histogram requested with every search.
const ByYearAggregation = "by_year"

// Highlight markers for terminal output.
const (
	richPreTag  = "\x1b[32m"
	richPostTag = "\x1b[0m"
)

var (
	dataSource = []string{"subject", "attributes", "identifiers"}
	docsSource = []string{"description.title", "description.authors", "file-info.filename", "identifiers"}
	anySource  = []string{"subject", "attributes", "identifiers", "file-info.filename"}

	multiSpace = regexp.MustCompile(` +`)
)

func byYearAggregation() map[string]interface{} {
	return map[string]interface{}{
		ByYearAggregation: map[string]interface{}{
			"date_histogram": map[string]interface{}{
				"field":             "description.publication_date",
				"calendar_interval": "year",
				"format":            "yyyy",
				"min_doc_count":     0,
			},
		},
	}
}

// YearCount is one bucket of the by-year distribution.
type YearCount struct {
	Year  string `json:"year"`
	Count int64  `json:"count"`
}

// SearchResult is the outcome of a collection search.
type SearchResult struct {
	Collection client.CollectionSource `json:"collection"`
	Query      string                  `json:"query"`
	Expected   int64                   `json:"expected"`
	Pages      int                     `json:"pages"`
	// Stopped is set when only the estimate was requested or the user
	// declined to fetch a large result.
	Stopped bool          `json:"stopped"`
	Docs    bool          `json:"docs"`
	ByYear  []YearCount   `json:"by_year,omitempty"`
	Table   command.Table `json:"table"`
}

// ShowDistribution reports whether the by-year distribution is worth
// printing: document searches spanning more than one year.
func (r *SearchResult) ShowDistribution() bool {
	return r.Docs && len(r.ByYear) > 1
}

// DistributionTable lays out the by-year distribution as a single row.
func (r *SearchResult) DistributionTable() command.Table {
	tbl := command.Table{Rows: [][]string{make([]string, 0, len(r.ByYear))}}
	for _, y := range r.ByYear {
		tbl.Columns = append(tbl.Columns, y.Year)
		tbl.Rows[0] = append(tbl.Rows[0], strconv.FormatInt(y.Count, 10))
	}
	return tbl
}

// SearchCollection counts the matches of cmd.Query in the collection, then
// fetches them page by page unless only the estimate is requested.
func (s *Service) SearchCollection(ctx context.Context, cmd command.DSSearchCollection) (*SearchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	cols, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	src, err := resolveCollection(cols, cmd.Collection, cmd.ElasticID)
	if err != nil {
		return nil, err
	}

	query := client.DataQuery{
		Query:        fmt.Sprintf("%s ~%d", cmd.Query, cmd.Slop),
		Limit:        cmd.PageSize,
		Aggregations: byYearAggregation(),
	}
	docs := cmd.Shows(command.ShowDocs)
	switch {
	case cmd.Shows(command.ShowData) && docs:
		query.Source = append(append([]string{}, dataSource...), docsSource...)
	case cmd.Shows(command.ShowData):
		query.Source = dataSource
	case docs:
		query.Source = docsSource
	default:
		query.Source = anySource
	}
	if docs {
		query.Highlight = &client.Highlight{
			Fields:   map[string]struct{}{"*": {}},
			PreTags:  []string{""},
			PostTags: []string{""},
		}
		if cmd.Rich && cmd.SaveAs == "" {
			query.Highlight.PreTags = []string{richPreTag}
			query.Highlight.PostTags = []string{richPostTag}
		}
	}

	res := &SearchResult{Collection: src, Query: query.Query, Docs: docs}

	countQuery := query
	countQuery.Limit = 0
	err = s.observe(OpCount, func() error {
		out, err := s.data.RunDataQuery(ctx, src, countQuery)
		if err != nil {
			return err
		}
		res.Expected = out.DataCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Pages = int((res.Expected + int64(cmd.PageSize) - 1) / int64(cmd.PageSize))
	s.reporter.Status(fmt.Sprintf("Estimated results: %d", res.Expected))

	if cmd.EstimateOnly {
		res.Stopped = true
		return res, nil
	}
	if res.Expected > LargeResultThreshold && s.confirm != nil && !s.confirm(res.Expected) {
		res.Stopped = true
		return res, nil
	}

	var hits []client.DataHit
	for page := 0; page < res.Pages; page++ {
		query.Offset = page * cmd.PageSize
		s.reporter.Status(fmt.Sprintf("Fetching page %d of %d", page+1, res.Pages))

		var out *client.DataQueryResult
		err := s.observe(OpSearch, func() error {
			var err error
			out, err = s.data.RunDataQuery(ctx, src, query)
			return err
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, out.DataOutputs...)
		if page == 0 {
			res.ByYear = yearCounts(out.DataAggs[ByYearAggregation])
		}
		if len(out.DataOutputs) < cmd.PageSize {
			break
		}
		if cmd.Limit > 0 && len(hits) >= cmd.Limit {
			break
		}
	}

	if len(hits) == 0 {
		return nil, errors.New(errors.ErrCodeDSNoResults, "search returned no result")
	}
	if cmd.Limit > 0 && len(hits) > cmd.Limit {
		hits = hits[:cmd.Limit]
	}

	rows := make([]*row, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, hitRow(h))
	}
	res.Table = rowsTable(rows)

	s.logger.Info("collection searched",
		logging.String("collection", src.IndexKey),
		logging.Int64("expected", res.Expected),
		logging.Int("rows", len(res.Table.Rows)))
	return res, nil
}

func yearCounts(agg client.Aggregation) []YearCount {
	out := make([]YearCount, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		out = append(out, YearCount{Year: b.KeyAsString, Count: b.DocCount})
	}
	return out
}

// row keeps columns in order of first assignment.
type row struct {
	keys []string
	vals map[string]string
}

func newRow() *row { return &row{vals: make(map[string]string)} }

func (r *row) set(k, v string) {
	if _, ok := r.vals[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.vals[k] = v
}

func (r *row) del(k string) {
	if _, ok := r.vals[k]; !ok {
		return
	}
	delete(r.vals, k)
	for i, key := range r.keys {
		if key == k {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// rowsTable unions the columns of rows in order of first appearance. Missing
// cells are empty.
func rowsTable(rows []*row) command.Table {
	var (
		tbl  command.Table
		seen = make(map[string]bool)
	)
	for _, r := range rows {
		for _, k := range r.keys {
			if !seen[k] {
				seen[k] = true
				tbl.Columns = append(tbl.Columns, k)
			}
		}
	}
	for _, r := range rows {
		cells := make([]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			cells[i] = r.vals[c]
		}
		tbl.Rows = append(tbl.Rows, cells)
	}
	return tbl
}

// hitRow flattens a search hit into display columns: document description,
// highlight snippet, identifiers, subject identifiers and names, and
// attribute predicates.
func hitRow(h client.DataHit) *row {
	r := newRow()
	src := h.Source

	if desc, ok := asMap(src["description"]); ok {
		if title, ok := desc["title"]; ok {
			r.set("Title", stringify(title))
		}
		if authors, ok := asSlice(desc["authors"]); ok {
			names := make([]string, 0, len(authors))
			for _, a := range authors {
				if m, ok := asMap(a); ok {
					names = append(names, stringify(m["name"]))
				}
			}
			r.set("Authors", strings.Join(names, ","))
		}
		if refs, ok := asSlice(desc["url_refs"]); ok {
			urls := make([]string, 0, len(refs))
			for _, u := range refs {
				urls = append(urls, stringify(u))
			}
			r.set("URLs", strings.Join(urls, " , "))
		}
	}

	fields := make([]string, 0, len(h.Highlight))
	for f := range h.Highlight {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, snippet := range h.Highlight[f] {
			r.set("Snippet", multiSpace.ReplaceAllString(snippet, " "))
		}
	}

	identifiers, _ := asSlice(src["identifiers"])
	if _, ok := src["attributes"]; ok {
		for _, ref := range identifiers {
			if typ, val := identifier(ref); typ == "cid" {
				r.set("cid", val)
			}
		}
	}
	for _, ref := range identifiers {
		if typ, val := identifier(ref); typ != "" {
			r.set(typ, val)
		}
	}

	if subject, ok := asMap(src["subject"]); ok {
		ids, _ := asSlice(subject["identifiers"])
		for _, ref := range ids {
			switch typ, val := identifier(ref); typ {
			case "smiles":
				r.set("SMILES", val)
			case "echa_ec_number":
				r.set("ec_number", val)
			case "cas_number":
				r.set("cas_number", val)
			case "patentid":
				r.set("Patent ID", val)
			}
		}
		names, _ := asSlice(subject["names"])
		for _, ref := range names {
			if typ, val := identifier(ref); typ == "chemical_name" {
				r.set("chemical_name", val)
			}
		}
	}

	for _, ref := range identifiers {
		switch typ, val := identifier(ref); typ {
		case "arxivid":
			r.set("arXiv", "https://arxiv.org/abs/"+val)
			r.del("arxivid")
		case "doi":
			r.set("DOI", "https://doi.org/"+val)
			r.del("doi")
		}
	}

	if len(fields) > 0 {
		filename := ""
		if info, ok := asMap(src["file-info"]); ok {
			filename = stringify(info["filename"])
		}
		r.set("Report", filename)
		r.set("Field", strings.SplitN(fields[len(fields)-1], ".", 2)[0])
	}

	if attrs, ok := asSlice(src["attributes"]); ok {
		for _, a := range attrs {
			attr, _ := asMap(a)
			preds, _ := asSlice(attr["predicates"])
			for _, p := range preds {
				pred, ok := asMap(p)
				if !ok {
					continue
				}
				key, _ := asMap(pred["key"])
				var value interface{}
				if v, ok := asMap(pred["value"]); ok {
					value = v["name"]
				}
				if nominal, ok := asMap(pred["nominal_value"]); ok {
					value = nominal["value"]
				} else if numerical, ok := asMap(pred["numerical_value"]); ok {
					value = numerical["val"]
				}
				r.set(stringify(key["name"]), stringify(value))
			}
		}
	}
	return r
}

func identifier(v interface{}) (string, string) {
	m, ok := asMap(v)
	if !ok {
		return "", ""
	}
	return stringify(m["type"]), stringify(m["value"])
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

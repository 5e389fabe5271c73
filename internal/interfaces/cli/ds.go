package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/OpenAD-Plugins/internal/application/deepsearch"
	"github.com/turtacn/OpenAD-Plugins/internal/application/reporting"
	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
)

// NewDeepSearchCmd creates the ds command tree.
func NewDeepSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ds",
		Aliases: []string{"deepsearch", "ds4sd"},
		Short:   "Deep Search collections, documents, molecules and patents",
	}
	cmd.AddCommand(
		newDSLoginCmd(),
		newDSResetLoginCmd(),
		newDSCollectionsCmd(),
		newDSCollectionCmd(),
		newDSDomainsCmd(),
		newDSContainingCmd(),
		newDSSearchCmd(),
		newDSMoleculeCmd("similar", "List molecules similar to a SMILES", (*deepsearch.Service).FindSimilar),
		newDSMoleculeCmd("substructure", "List molecules containing a SMILES as a substructure", (*deepsearch.Service).FindSubstructure),
		newDSPatentsCmd(),
		newDSMoleculesInPatentsCmd(),
	)
	return cmd
}

// dsService logs in to Deep Search and builds the service of the session.
// A nil confirm fetches large results without asking.
func dsService(cmd *cobra.Command, cc *CLIContext, confirm func(int64) bool) (*deepsearch.Service, error) {
	tk, err := cc.Session.LoginDeepSearch(cmd.Context())
	if err != nil {
		return nil, err
	}
	return cc.Infra.NewDeepSearchService(bootstrap.DeepSearchDeps{
		Workspace: cc.Session.Workspace,
		Remote:    tk.Client,
		Columns:   cc.Session.Sources(),
		Confirm:   confirm,
		Reporter:  statusReporter{w: cmd.ErrOrStderr()},
	}, cc.Logger), nil
}

func newDSLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to Deep Search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			tk, err := cc.Session.LoginDeepSearch(cmd.Context())
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("logged in to Deep Search as %s until %s", tk.Username, tk.Expiry.Format(time.RFC1123)))
			return nil
		},
	}
}

func newDSResetLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-login",
		Short: "Forget the stored Deep Search credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetLogin(cmd, "DS4SD")
		},
	}
}

// summaryColumns are shown when collection details are not requested.
var summaryColumns = []string{"Collection Name", "Collection Key", "Entries", "Domain"}

func selectColumns(tbl command.Table, names []string) command.Table {
	idx := make([]int, 0, len(names))
	out := command.Table{}
	for _, n := range names {
		for i, c := range tbl.Columns {
			if c == n {
				idx = append(idx, i)
				out.Columns = append(out.Columns, c)
				break
			}
		}
	}
	for _, row := range tbl.Rows {
		r := make([]string, 0, len(idx))
		for _, i := range idx {
			r = append(r, row[i])
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

func newDSCollectionsCmd() *cobra.Command {
	req := command.DSListCollections{}
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List the Deep Search collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := dsService(cmd, cc, nil)
			if err != nil {
				return err
			}
			cols, err := svc.ListCollections(cmd.Context(), req.Domains...)
			if err != nil {
				return err
			}
			tbl := deepsearch.CollectionsTable(cols)
			if !req.Details {
				tbl = selectColumns(tbl, summaryColumns)
			}
			if err := cc.SaveTable(cmd, req.SaveAs, tbl); err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Table: &tbl, Data: cols})
		},
	}
	cmd.Flags().BoolVar(&req.Details, "details", false, "show type, creation date and elastic id")
	cmd.Flags().StringSliceVar(&req.Domains, "domain", nil, "only list collections of these domains (repeatable)")
	cmd.Flags().StringVar(&req.SaveAs, "save-as", "", "save the listing as CSV in the workspace")
	return cmd
}

func newDSCollectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collection NAME|KEY",
		Short: "Show the details of one Deep Search collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req := command.DSCollectionDetails{Collection: strings.Join(args, " ")}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := dsService(cmd, cc, nil)
			if err != nil {
				return err
			}
			col, err := svc.CollectionDetails(cmd.Context(), req.Collection)
			if err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Text: deepsearch.DetailsText(*col), Data: col})
		},
	}
}

func newDSDomainsCmd() *cobra.Command {
	req := command.DSListDomains{}
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "List the domains of the Deep Search collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := dsService(cmd, cc, nil)
			if err != nil {
				return err
			}
			domains, err := svc.ListDomains(cmd.Context())
			if err != nil {
				return err
			}
			tbl := deepsearch.DomainsTable(domains)
			if err := cc.SaveTable(cmd, req.SaveAs, tbl); err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Table: &tbl, Data: domains})
		},
	}
	cmd.Flags().StringVar(&req.SaveAs, "save-as", "", "save the listing as CSV in the workspace")
	return cmd
}

func newDSContainingCmd() *cobra.Command {
	var saveAs string
	cmd := &cobra.Command{
		Use:   "containing QUERY",
		Short: "Count the matches of a query in every document collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req := command.DSCollectionsContaining{Query: strings.Join(args, " "), Output: command.Output{SaveAs: saveAs}}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := dsService(cmd, cc, nil)
			if err != nil {
				return err
			}
			matches, err := svc.CollectionsContaining(cmd.Context(), req.Query)
			if err != nil {
				return err
			}
			tbl := deepsearch.MatchesTable(matches)
			if err := cc.SaveTable(cmd, req.SaveAs, tbl); err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Table: &tbl, Data: matches})
		},
	}
	cmd.Flags().StringVar(&saveAs, "save-as", "", "save the counts as CSV in the workspace")
	return cmd
}

type dsSearchOptions struct {
	collection   string
	using        string
	show         []string
	estimateOnly bool
	yes          bool
	saveAs       string
}

func newDSSearchCmd() *cobra.Command {
	opts := &dsSearchOptions{}
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search one collection",
		Long: `Search one collection with a Deep Search query. --using accepts
elastic_page_size, elastic_id, slop and limit_results. --show data lists the
full entries, --show docs adds the snippets of document collections.`,
		Example: `  openad ds search "power conversion efficiency" --collection arxiv --show docs
  openad ds search "ibuprofen" --collection pubchem --estimate-only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDSSearch(cmd, strings.Join(args, " "), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.collection, "collection", "", "collection name or key (default from deepsearch.default_collection)")
	f.StringVarP(&opts.using, "using", "u", "", "USING parameters")
	f.StringSliceVar(&opts.show, "show", nil, "data, docs or both")
	f.BoolVar(&opts.estimateOnly, "estimate-only", false, "only count the matches")
	f.BoolVarP(&opts.yes, "yes", "y", false, "fetch large results without asking")
	f.StringVar(&opts.saveAs, "save-as", "", "save the results as CSV in the workspace")
	return cmd
}

func runDSSearch(cmd *cobra.Command, query string, opts *dsSearchOptions) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	using, err := command.ParseUsing(opts.using)
	if err != nil {
		return err
	}
	collection := opts.collection
	if collection == "" {
		collection = cc.Config.DeepSearch.DefaultCollection
	}
	req, err := command.NewDSSearchCollection(query, collection, using)
	if err != nil {
		return err
	}
	if _, ok := using["elastic_page_size"]; !ok && cc.Config.DeepSearch.PageSize > 0 {
		req.PageSize = cc.Config.DeepSearch.PageSize
	}
	if _, ok := using["slop"]; !ok && cc.Config.DeepSearch.Slop > 0 {
		req.Slop = cc.Config.DeepSearch.Slop
	}
	req.Show = opts.show
	req.EstimateOnly = opts.estimateOnly
	req.SaveAs = opts.saveAs
	if err := req.Validate(); err != nil {
		return err
	}

	svc, err := dsService(cmd, cc, confirmLarge(cmd, opts.yes))
	if err != nil {
		return err
	}
	res, err := svc.SearchCollection(cmd.Context(), req)
	if err != nil {
		return err
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Found %s matches for %q in %s", deepsearch.PrettyNumber(res.Expected), res.Query, res.Collection.IndexKey)
	if res.Stopped {
		return cc.PrintResult(cmd, Result{Text: text.String(), Data: res})
	}
	if res.ShowDistribution() {
		var dist strings.Builder
		if err := reporting.RenderTable(&dist, res.DistributionTable()); err == nil {
			text.WriteString("\n\n" + dist.String())
		}
	}
	var rows strings.Builder
	if err := reporting.RenderTable(&rows, res.Table); err != nil {
		return err
	}
	text.WriteString("\n\n" + strings.TrimRight(rows.String(), "\n"))

	cc.Session.SetTable("search", res.Table)
	if err := cc.SaveTable(cmd, req.SaveAs, res.Table); err != nil {
		return err
	}
	return cc.PrintResult(cmd, Result{Text: text.String(), Table: &res.Table, Data: res})
}

type moleculeSearchFunc func(*deepsearch.Service, context.Context, string) (*deepsearch.MoleculeResult, error)

func newDSMoleculeCmd(use, short string, search moleculeSearchFunc) *cobra.Command {
	var saveAs string
	cmd := &cobra.Command{
		Use:   use + " SMILES",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			out := command.Output{SaveAs: saveAs}
			var req command.Command = command.DSFindSimilar{SMILES: args[0], Output: out}
			if use == "substructure" {
				req = command.DSFindSubstructure{SMILES: args[0], Output: out}
			}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := dsService(cmd, cc, nil)
			if err != nil {
				return err
			}
			res, err := search(svc, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cc.Session.SetTable(use, res.Table)
			if err := cc.SaveTable(cmd, saveAs, res.Table); err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Table: &res.Table, Data: res})
		},
	}
	cmd.Flags().StringVar(&saveAs, "save-as", "", "save the molecules as CSV in the workspace")
	return cmd
}

func newDSPatentsCmd() *cobra.Command {
	var saveAs string
	cmd := &cobra.Command{
		Use:   "patents IDENTIFIER",
		Short: "List patents mentioning a molecule given as SMILES, InChI or InChIKey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req := command.DSPatentsContaining{Identifier: args[0], Output: command.Output{SaveAs: saveAs}}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := dsService(cmd, cc, nil)
			if err != nil {
				return err
			}
			res, err := svc.PatentsContaining(cmd.Context(), req.Identifier)
			if err != nil {
				return err
			}
			cc.Session.SetTable("patents", res.Table)
			if err := cc.SaveTable(cmd, req.SaveAs, res.Table); err != nil {
				return err
			}
			text := fmt.Sprintf("Patents mentioning %s %s", res.IdentifierType, res.Identifier)
			var body strings.Builder
			if err := reporting.RenderTable(&body, res.Table); err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Text: text + "\n\n" + strings.TrimRight(body.String(), "\n"), Table: &res.Table, Data: res})
		},
	}
	cmd.Flags().StringVar(&saveAs, "save-as", "", "save the patent ids as CSV in the workspace")
	return cmd
}

func newDSMoleculesInPatentsCmd() *cobra.Command {
	var file, table, saveAs string
	cmd := &cobra.Command{
		Use:   "molecules-in-patents [PATENT_ID...]",
		Short: "List the molecules mentioned in a set of patents",
		Long: `List the molecules mentioned in a set of patents. Patent ids are given as
arguments, read from the "Patent ID" column of a workspace .csv file, or
taken from a session table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			src, err := reactionSource(args, file, table)
			if err != nil {
				return err
			}
			if src.Kind == command.SourceString {
				src = command.FromList(args)
			}
			req := command.DSMoleculesInPatents{Source: src, Output: command.Output{SaveAs: saveAs}}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := dsService(cmd, cc, nil)
			if err != nil {
				return err
			}
			res, err := svc.MoleculesInPatents(cmd.Context(), req.Source)
			if err != nil {
				return err
			}
			cc.Session.SetTable("patent_molecules", res.Table)
			if err := cc.SaveTable(cmd, req.SaveAs, res.Table); err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Table: &res.Table, Data: res})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "workspace .csv or .txt file of patent ids")
	f.StringVar(&table, "table", "", "session table holding the patent ids")
	f.StringVar(&saveAs, "save-as", "", "save the molecules as CSV in the workspace")
	return cmd
}

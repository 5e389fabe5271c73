package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/application/reporting"
	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

// NewRXNCmd creates the rxn command tree.
func NewRXNCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rxn",
		Short: "IBM RXN reaction prediction and retrosynthesis",
	}
	cmd.AddCommand(
		newPredictCmd(),
		newModelsCmd(),
		newInterpretCmd(),
		newClearCacheCmd(),
		newRXNLoginCmd(),
		newResetLoginCmd(),
	)
	return cmd
}

// rxnServices logs in to RXN and builds the prediction services of the
// workspace.
func rxnServices(cmd *cobra.Command, cc *CLIContext) (*bootstrap.PredictionServices, error) {
	tk, err := cc.Session.LoginRXN(cmd.Context())
	if err != nil {
		return nil, err
	}
	return cc.Infra.NewPredictionServices(bootstrap.PredictionDeps{
		Workspace:    cc.Session.Workspace,
		WorkspaceDir: cc.Session.WorkspaceDir,
		API:          tk.Client,
		Reporter:     statusReporter{w: cmd.ErrOrStderr()},
	}, cc.Logger), nil
}

func useCache(cmd *cobra.Command, flag bool, def bool) bool {
	if cmd.Flags().Changed("use-saved") {
		return flag
	}
	return def
}

func batchOptions(req command.PredictReactions) prediction.BatchOptions {
	return prediction.BatchOptions{Params: req.Params, UseCache: req.UseCache}
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict reaction products or retrosynthesis routes",
	}
	cmd.AddCommand(newPredictReactionCmd(), newPredictRetroCmd())
	return cmd
}

type predictReactionOptions struct {
	file     string
	table    string
	using    string
	useSaved bool
	saveAs   string
}

func newPredictReactionCmd() *cobra.Command {
	opts := &predictReactionOptions{}
	cmd := &cobra.Command{
		Use:   "reaction [REACTION_SMILES...]",
		Short: "Predict the products of one or more reactions",
		Long: `Predict the products of reactions given as reaction SMILES (reactants
joined with '.'), read from a .csv or .txt file in the workspace, or taken
from a session table.

Parameters are set with --using, for example --using "ai_model='2020-08-10' topn=3".`,
		Example: `  openad rxn predict reaction "BrBr.c1ccc2cc3ccccc3cc2c1"
  openad rxn predict reaction --file reactions.csv --use-saved --save-as products`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredictReaction(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "workspace .csv or .txt file of reactions")
	f.StringVar(&opts.table, "table", "", "session table holding the reactions")
	f.StringVarP(&opts.using, "using", "u", "", "USING parameters (ai_model, topn)")
	f.BoolVar(&opts.useSaved, "use-saved", false, "reuse cached predictions (default from rxn.use_cache_by_default)")
	f.StringVar(&opts.saveAs, "save-as", "", "save the result table as CSV in the workspace")
	return cmd
}

func reactionSource(args []string, file, table string) (command.InputSource, error) {
	switch {
	case file != "":
		return command.FromFile(file)
	case table != "":
		return command.FromTable(table), nil
	case len(args) == 1:
		return command.FromString(args[0]), nil
	}
	return command.FromList(args), nil
}

func runPredictReaction(cmd *cobra.Command, args []string, opts *predictReactionOptions) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	using, err := command.ParseUsing(opts.using)
	if err != nil {
		return err
	}
	params, err := using.ReactionParams(cc.Config.RXN.ReactionModel, cc.Config.RXN.DefaultTopN)
	if err != nil {
		return err
	}
	src, err := reactionSource(args, opts.file, opts.table)
	if err != nil {
		return err
	}
	req := command.PredictReactions{
		Source:   src,
		Params:   params,
		UseCache: useCache(cmd, opts.useSaved, cc.Config.RXN.UseCacheByDefault),
		Output:   command.Output{SaveAs: opts.saveAs},
	}
	if err := req.Validate(); err != nil {
		return err
	}
	inputs, err := cc.Session.Sources().Read(req.Source)
	if err != nil {
		return err
	}

	svc, err := rxnServices(cmd, cc)
	if err != nil {
		return err
	}
	res, err := svc.Batch.Run(cmd.Context(), inputs, batchOptions(req))
	if err != nil {
		return err
	}

	tbl := reporting.ReactionsTable(res)
	cc.Session.SetTable("reactions", tbl)
	if err := cc.SaveTable(cmd, req.SaveAs, tbl); err != nil {
		return err
	}
	return cc.PrintResult(cmd, Result{Text: cc.Printer.Batch(res), Table: &tbl, Data: res})
}

type predictRetroOptions struct {
	using    string
	useSaved bool
	saveAs   string
}

func newPredictRetroCmd() *cobra.Command {
	opts := &predictRetroOptions{}
	cmd := &cobra.Command{
		Use:   "retro SMILES",
		Short: "Predict retrosynthesis routes for a target molecule",
		Long: `Predict retrosynthesis routes for a target molecule.

Parameters are set with --using: ai_model, availability_pricing_threshold,
available_smiles, exclude_smiles, exclude_substructures, exclude_target_molecule,
fap, max_steps, nbeams, pruning_steps.`,
		Example: `  openad rxn predict retro "CC(=O)Oc1ccccc1C(=O)O" --using "max_steps=3 nbeams=10"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredictRetro(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.using, "using", "u", "", "USING parameters")
	f.BoolVar(&opts.useSaved, "use-saved", false, "reuse a cached prediction (default from rxn.use_cache_by_default)")
	f.StringVar(&opts.saveAs, "save-as", "", "save the routes as CSV in the workspace")
	return cmd
}

func runPredictRetro(cmd *cobra.Command, smiles string, opts *predictRetroOptions) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	using, err := command.ParseUsing(opts.using)
	if err != nil {
		return err
	}
	params, err := using.RetroParams(cc.Config.RXN.RetroModel)
	if err != nil {
		return err
	}
	req := command.PredictRetro{
		SMILES:   smiles,
		Params:   params,
		UseCache: useCache(cmd, opts.useSaved, cc.Config.RXN.UseCacheByDefault),
		Output:   command.Output{SaveAs: opts.saveAs},
	}
	if err := req.Validate(); err != nil {
		return err
	}

	svc, err := rxnServices(cmd, cc)
	if err != nil {
		return err
	}
	res, err := svc.Retro.Run(cmd.Context(), req.SMILES, req.Params, req.UseCache)
	if err != nil {
		return err
	}

	tbl := reporting.RetroTable(res)
	cc.Session.SetTable("retro", tbl)
	if err := cc.SaveTable(cmd, req.SaveAs, tbl); err != nil {
		return err
	}
	paths := reporting.RetroPathsTable(res)
	return cc.PrintResult(cmd, Result{Text: cc.Printer.Retro(res), Table: &paths, Data: res})
}

func newModelsCmd() *cobra.Command {
	var saveAs string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the available RXN models and versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req := command.ListModels{Output: command.Output{SaveAs: saveAs}}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := rxnServices(cmd, cc)
			if err != nil {
				return err
			}
			models, err := svc.Tools.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			tbl := reporting.ModelsTable(models)
			if err := cc.SaveTable(cmd, req.SaveAs, tbl); err != nil {
				return err
			}
			return cc.PrintResult(cmd, Result{Table: &tbl, Data: models})
		},
	}
	cmd.Flags().StringVar(&saveAs, "save-as", "", "save the listing as CSV in the workspace")
	return cmd
}

func newInterpretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interpret RECIPE|FILE",
		Short: "Interpret an experimental procedure as a list of actions",
		Long: `Interpret a paragraph describing an experimental procedure as a list of
actions. When the argument names a file in the workspace, its content is
interpreted instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req := command.InterpretRecipe{Recipe: strings.Join(args, " ")}
			if err := req.Validate(); err != nil {
				return err
			}
			svc, err := rxnServices(cmd, cc)
			if err != nil {
				return err
			}
			recipe, err := svc.Tools.InterpretRecipe(cmd.Context(), req.Recipe)
			if err != nil {
				return err
			}
			tbl := reporting.RecipeTable(recipe)
			return cc.PrintResult(cmd, Result{Text: cc.Printer.Recipe(recipe), Table: &tbl, Data: recipe})
		},
	}
}

func newClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove every cached prediction of the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			// Clearing needs no login.
			cache := cc.Infra.ResultCache(cc.Session.Workspace, cc.Session.WorkspaceDir)
			n, err := prediction.NewTools(nil, cache, cc.Session.WorkspaceDir, cc.Logger).ClearCache(cmd.Context())
			if err != nil {
				return err
			}
			cc.Logger.Debug("cache cleared", logging.Int("entries", n))
			PrintSuccess(cmd, fmt.Sprintf("removed %d cached results", n))
			return nil
		},
	}
}

func newRXNLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to RXN and bind the workspace project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			tk, err := cc.Session.LoginRXN(cmd.Context())
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("logged in to RXN as %s, project %s (%s)", tk.Email, tk.Project, tk.ProjectID))
			return nil
		},
	}
}

func newResetLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-login [rxn|ds4sd|deepsearch]",
		Short: "Forget the stored credentials of a toolkit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolkit := "RXN"
			if len(args) == 1 {
				toolkit = args[0]
			}
			return runResetLogin(cmd, toolkit)
		},
	}
}

func runResetLogin(cmd *cobra.Command, toolkit string) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	req := command.ResetLogin{Toolkit: toolkit}
	if err := req.Validate(); err != nil {
		return err
	}
	reset := cc.Session.ResetDeepSearchLogin
	if strings.EqualFold(req.Toolkit, "RXN") {
		reset = cc.Session.ResetRXNLogin
	}
	removed, err := reset()
	if err != nil {
		return err
	}
	if removed {
		PrintSuccess(cmd, "credentials removed for "+strings.ToUpper(req.Toolkit))
	} else {
		PrintSuccess(cmd, "no credentials stored for "+strings.ToUpper(req.Toolkit))
	}
	return nil
}

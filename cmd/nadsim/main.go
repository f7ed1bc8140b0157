package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nutrakinetics/nadsim/internal/calib"
	"github.com/nutrakinetics/nadsim/internal/config"
	"github.com/nutrakinetics/nadsim/internal/export"
	"github.com/nutrakinetics/nadsim/internal/logger"
	"github.com/nutrakinetics/nadsim/internal/params"
	"github.com/nutrakinetics/nadsim/internal/sim"
	"github.com/nutrakinetics/nadsim/internal/store"
	"github.com/nutrakinetics/nadsim/internal/supplement"
)

var (
	dataDir      string
	logMode      string
	catalogFile  string
	registryFile string
	configFile   string
	preset       string

	route       string
	compound    string
	formulation string
	doseMg      float64
	infusionH   float64
	ageYears    float64
	horizonH    float64
	points      int
	label       string
	seed        int64

	supplements []string
	suppDoses   []string
	overrides   []string
	paramOver   []string

	outPath string

	fitTarget  string
	fitRules   []string
	fitObsPath string
	fitMaxIter int

	plotSeries string
	plotWidth  int
	plotHeight int

	svgSeries []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "nadsim",
		Short:         "mechanistic NAD+ precursor and supplement-stack simulator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".nadsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "dev", "log mode (dev|prod)")
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "parameter catalog yaml (default: embedded)")
	rootCmd.PersistentFlags().StringVar(&registryFile, "registry", "", "supplement registry yaml (default: embedded)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run one dosing scenario",
		RunE:  runScenario,
	}
	addScenarioFlags(runCmd)
	runCmd.Flags().StringVar(&configFile, "config", "", "scenario yaml file")
	runCmd.Flags().StringVar(&preset, "preset", "", "named preset scenario")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRESET\tLABEL")
			for _, name := range config.ListPresets() {
				sc, _ := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%s\n", name, sc.Label)
			}
			return w.Flush()
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "validate a supplement stack without running it",
		RunE:  validateStack,
	}
	validateCmd.Flags().StringVar(&route, "route", "oral", "administration route")
	validateCmd.Flags().StringSliceVar(&supplements, "supplements", nil, "supplement ids")
	validateCmd.Flags().StringSliceVar(&suppDoses, "doses", nil, "supplement doses as id=mg")

	supplementsCmd := &cobra.Command{
		Use:   "supplements",
		Short: "list known supplements and interaction rules",
		RunE:  listSupplements,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs and fits",
		RunE:  listStored,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a stored run's exposure summary",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored concentration series",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotSeries, "series", "nad_cyt_liver", "concentration series name")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 16, "plot height")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRunJSON,
	}
	exportJSONCmd.Flags().StringVar(&outPath, "out", "", "output file (default: <run_id>.json)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a stored run's concentration series to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRunCSV,
	}
	exportCSVCmd.Flags().StringVar(&outPath, "out", "", "output file (default: <run_id>.csv)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render a stored run's concentration chart to SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRunSVG,
	}
	exportSVGCmd.Flags().StringVar(&outPath, "out", "", "output file (default: <run_id>.svg)")
	exportSVGCmd.Flags().StringSliceVar(&svgSeries, "series", nil, "series to draw (default: all)")

	deleteCmd := &cobra.Command{
		Use:   "delete [run_id]",
		Short: "delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	fitCmd := &cobra.Command{
		Use:   "fit",
		Short: "calibrate interaction coefficients against observed data",
		RunE:  fitCoefficients,
	}
	addScenarioFlags(fitCmd)
	fitCmd.Flags().StringVar(&fitObsPath, "obs", "", "observations file, .csv or yaml (required)")
	fitCmd.Flags().StringVar(&fitTarget, "target", "plasma_precursor", "target concentration series")
	fitCmd.Flags().StringSliceVar(&fitRules, "rules", nil, "rule ids to fit (default: all fittable rules of the stack)")
	fitCmd.Flags().IntVar(&fitMaxIter, "max-iter", 200, "maximum simplex iterations")
	fitCmd.MarkFlagRequired("obs")

	rootCmd.AddCommand(runCmd, presetsCmd, validateCmd, supplementsCmd, listCmd,
		showCmd, plotCmd, exportJSONCmd, exportCSVCmd, exportSVGCmd, deleteCmd, fitCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&route, "route", "oral", "administration route (oral|iv)")
	cmd.Flags().StringVar(&compound, "compound", "nr", "dosed compound (na|nam|nr|nmn|nad)")
	cmd.Flags().StringVar(&formulation, "formulation", "IR", "oral formulation (IR|ER)")
	cmd.Flags().Float64Var(&doseMg, "dose-mg", 300, "dose in mg")
	cmd.Flags().Float64Var(&infusionH, "infusion-h", 2, "iv infusion duration in hours")
	cmd.Flags().Float64Var(&ageYears, "age", 30, "subject age in years")
	cmd.Flags().Float64Var(&horizonH, "horizon", 24, "simulated horizon in hours")
	cmd.Flags().IntVar(&points, "points", 241, "output grid points")
	cmd.Flags().StringVar(&label, "label", "", "scenario label")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed recorded with the scenario")
	cmd.Flags().StringSliceVar(&supplements, "supplements", nil, "supplement ids")
	cmd.Flags().StringSliceVar(&suppDoses, "doses", nil, "supplement doses as id=mg")
	cmd.Flags().StringSliceVar(&overrides, "override", nil, "rule coefficient overrides as rule_id=value")
	cmd.Flags().StringSliceVar(&paramOver, "param", nil, "parameter overrides as key=value")
}

func newLogger() *logger.Logger {
	log, err := logger.New(logMode)
	if err != nil {
		return logger.Nop()
	}
	return log
}

func loadCatalog() (params.Catalog, error) {
	if catalogFile != "" {
		return params.LoadFile(catalogFile)
	}
	return params.LoadDefault()
}

func loadRegistry() (*supplement.Registry, error) {
	if registryFile != "" {
		return supplement.LoadFile(registryFile)
	}
	return supplement.LoadDefault()
}

// signalContext cancels on SIGINT/SIGTERM so long runs stop cleanly with
// a partial result.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildScenario(cmd *cobra.Command) (sim.Scenario, error) {
	sc := sim.NewScenario()
	fromBase := false
	if preset != "" {
		p, ok := config.GetPreset(preset)
		if !ok {
			return sc, fmt.Errorf("unknown preset %q (available: %s)",
				preset, strings.Join(config.ListPresets(), ", "))
		}
		sc = p
		fromBase = true
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return sc, err
		}
		sc = loaded
		fromBase = true
	}

	// Explicit flags override preset and file values.
	set := func(name string, apply func()) {
		if !fromBase || cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("label", func() { sc.Label = label })
	set("route", func() { sc.Route = route })
	set("compound", func() { sc.Compound = compound })
	set("formulation", func() { sc.Formulation = formulation })
	set("dose-mg", func() { sc.DoseMg = doseMg })
	set("infusion-h", func() { sc.InfusionDurationH = infusionH })
	set("age", func() { sc.AgeYears = ageYears })
	set("horizon", func() { sc.HorizonH = horizonH })
	set("points", func() { sc.OutputPoints = points })
	set("seed", func() { sc.Seed = seed })
	set("supplements", func() { sc.Supplements = supplements })
	if sc.Route == "iv" {
		sc.Formulation = ""
	}

	var err error
	var pairs map[string]float64
	if pairs, err = parseFloatPairs(suppDoses); err != nil {
		return sc, fmt.Errorf("--doses: %w", err)
	}
	if pairs != nil {
		sc.SupplementDoses = pairs
	}
	if pairs, err = parseFloatPairs(overrides); err != nil {
		return sc, fmt.Errorf("--override: %w", err)
	}
	if pairs != nil {
		sc.RuleOverrides = pairs
	}
	if pairs, err = parseFloatPairs(paramOver); err != nil {
		return sc, fmt.Errorf("--param: %w", err)
	}
	if pairs != nil {
		sc.ParamOverrides = pairs
	}
	return sc, nil
}

func parseFloatPairs(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		out[key] = f
	}
	return out, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	sc, err := buildScenario(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := sim.NewOrchestrator(catalog, registry, log).Run(ctx, sc)
	if err != nil {
		return err
	}

	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.SaveRun(res); err != nil {
		return err
	}

	fmt.Printf("run: %s\n", sc.ID)
	if res.Cancelled {
		fmt.Println("status: cancelled (partial result saved)")
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	printExposure(res)
	return nil
}

func printExposure(res *sim.Result) {
	names := make([]string, 0, len(res.Exposure))
	for n := range res.Exposure {
		names = append(names, n)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIES\tBASELINE uM\tCMAX uM\tTMAX h\tAUC uM*h\tDELTA %")
	for _, n := range names {
		ex := res.Exposure[n]
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.2f\t%.1f\t%+.1f\n",
			n, ex.BaselineUM, ex.CmaxUM, ex.TmaxH, ex.AUCuMh, ex.DeltaPercent)
	}
	w.Flush()
}

func validateStack(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	doses, err := parseFloatPairs(suppDoses)
	if err != nil {
		return fmt.Errorf("--doses: %w", err)
	}

	report := supplement.Validate(registry, route, supplements, doses)
	for _, is := range report.Errors {
		fmt.Printf("error [%s]: %s\n", is.Code, is.Message)
	}
	for _, is := range report.Warnings {
		fmt.Printf("warning [%s]: %s\n", is.Code, is.Message)
	}
	if !report.Admissible {
		return fmt.Errorf("stack is not admissible")
	}
	fmt.Println("stack is admissible")
	return nil
}

func listSupplements(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tROUTES\tDEFAULT mg\tENABLED\tMODEL READY")
	for _, d := range registry.Definitions() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%t\t%t\n",
			d.ID, d.MechanismClass, strings.Join(d.Routes, ","),
			d.DefaultDoseMg, d.Enabled, d.ModelReady)
	}
	w.Flush()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tPAIR\tTARGET\tKIND\tCOEFF\tBOUNDS\tFIT")
	for _, r := range registry.Rules() {
		a, b := r.Pair()
		fmt.Fprintf(w, "%s\t%s+%s\t%s\t%s\t%+.2f\t[%.2f, %.2f]\t%t\n",
			r.ID, a, b, r.Target, r.Kind, r.Coefficient, r.LowerBound, r.UpperBound, r.FitEnabled)
	}
	return w.Flush()
}

func listStored(cmd *cobra.Command, args []string) error {
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tROUTE\tCOMPOUND\tDOSE mg\tCREATED\tCANCELLED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%s\t%t\n",
				r.ID, r.Label, r.Route, r.Compound, r.DoseMg,
				r.CreatedAt.Format("2006-01-02 15:04:05"), r.Cancelled)
		}
		w.Flush()
	}

	fits, err := st.ListFits()
	if err != nil {
		return err
	}
	if len(fits) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FIT\tTARGET\tSTATUS\tFITTED")
		for _, f := range fits {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				f.ID, f.Target, f.Status, f.FittedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	}
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.GetRun(args[0])
	if err != nil {
		return err
	}

	sc := res.Scenario
	fmt.Printf("run: %s\n", sc.ID)
	if sc.Label != "" {
		fmt.Printf("label: %s\n", sc.Label)
	}
	fmt.Printf("dosing: %s %s %.0f mg", sc.Route, sc.Compound, sc.DoseMg)
	if sc.Route == "oral" {
		fmt.Printf(" (%s)", sc.Formulation)
	} else {
		fmt.Printf(" over %.1f h", sc.InfusionDurationH)
	}
	fmt.Println()
	if len(sc.Supplements) > 0 {
		fmt.Printf("stack: %s\n", strings.Join(sc.Supplements, ", "))
	}
	fmt.Printf("horizon: %.0f h, %d samples, %d steps (%d rejected)\n",
		sc.HorizonH, len(res.TimesH), res.StepsTaken, res.StepsRejected)
	fmt.Printf("mass drift: %.2e\n", res.MaxDriftRelative)
	for _, ac := range res.AppliedCoefficients {
		suffix := ""
		if ac.Overridden {
			suffix = " (override)"
		}
		fmt.Printf("rule %s: %+.3f%s\n", ac.RuleID, ac.Coefficient, suffix)
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Println()
	printExposure(res)
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.GetRun(args[0])
	if err != nil {
		return err
	}
	series, err := res.ConcentrationSeries(plotSeries)
	if err != nil {
		names := make([]string, 0, len(res.Concentrations))
		for n := range res.Concentrations {
			names = append(names, n)
		}
		sort.Strings(names)
		return fmt.Errorf("%w (available: %s)", err, strings.Join(names, ", "))
	}

	fmt.Printf("%s (uM) over %.0f h\n\n", plotSeries, res.Scenario.HorizonH)
	fmt.Println(asciigraph.Plot(series,
		asciigraph.Width(plotWidth),
		asciigraph.Height(plotHeight),
		asciigraph.Caption(fmt.Sprintf("run %s", res.Scenario.ID))))
	return nil
}

func exportRunJSON(cmd *cobra.Command, args []string) error {
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.GetRun(args[0])
	if err != nil {
		return err
	}
	path := outPath
	if path == "" {
		path = args[0] + ".json"
	}
	if err := store.ExportJSON(path, res); err != nil {
		return err
	}
	fmt.Printf("exported %s\n", path)
	return nil
}

func exportRunCSV(cmd *cobra.Command, args []string) error {
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.GetRun(args[0])
	if err != nil {
		return err
	}
	path := outPath
	if path == "" {
		path = args[0] + ".csv"
	}
	if err := store.ExportCSV(path, res); err != nil {
		return err
	}
	fmt.Printf("exported %s\n", path)
	return nil
}

func exportRunSVG(cmd *cobra.Command, args []string) error {
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.GetRun(args[0])
	if err != nil {
		return err
	}
	path := outPath
	if path == "" {
		path = args[0] + ".svg"
	}
	if err := export.WriteSVG(path, res, svgSeries...); err != nil {
		return err
	}
	fmt.Printf("exported %s\n", path)
	return nil
}

func deleteRun(cmd *cobra.Command, args []string) error {
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.DeleteRun(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

// observationsDoc is the YAML shape of a fit's observed data. CSV files
// carry a time_h column and an observed_<target>_uM column instead.
type observationsDoc struct {
	Observations []calib.Observation `yaml:"observations"`
}

func loadObservations(path, target string) ([]calib.Observation, error) {
	if strings.HasSuffix(path, ".csv") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return calib.ParseObservationsCSV(f, target)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc observationsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc.Observations, nil
}

func fitCoefficients(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	sc, err := buildScenario(cmd)
	if err != nil {
		return err
	}

	obs, err := loadObservations(fitObsPath, fitTarget)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch := sim.NewOrchestrator(catalog, registry, log)
	eng := calib.NewEngine(orch, registry, log)
	fit, err := eng.Fit(ctx, sc, fitTarget, obs, fitRules,
		calib.Options{MaxIter: fitMaxIter})
	if err != nil {
		return err
	}

	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()
	id, err := st.SaveFit(fit)
	if err != nil {
		return err
	}

	fmt.Printf("fit: %s (%s)\n", id, fit.Status)
	fmt.Printf("objective: %.6g after %d iterations, %d evaluations\n",
		fit.Objective, fit.Iterations, fit.Evaluations)
	ids := make([]string, 0, len(fit.Coefficients))
	for rid := range fit.Coefficients {
		ids = append(ids, rid)
	}
	sort.Strings(ids)
	for _, rid := range ids {
		fmt.Printf("  %s = %+.4f\n", rid, fit.Coefficients[rid])
	}
	return nil
}

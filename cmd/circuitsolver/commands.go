package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edp1096/circuitsolver/internal/chart"
	"github.com/edp1096/circuitsolver/internal/server"
	"github.com/edp1096/circuitsolver/internal/store"
	"github.com/edp1096/circuitsolver/pkg/analysis"
	"github.com/edp1096/circuitsolver/pkg/api"
	"github.com/edp1096/circuitsolver/pkg/netlist"
)

var (
	outPath   string
	outFormat string
	quiet     bool

	sweepEdge  string
	sweepParam string
	sweepStart float64
	sweepStop  float64
	sweepStep  float64
	plotPath   string
	plotSeries []string
	plotTitle  string

	serveAddr string

	solveCmd = &cobra.Command{
		Use:   "solve FILE",
		Short: "Solve the operating point of a circuit",
		Long: `Solve the operating point of a circuit and print its node voltages and
branch currents.

Examples:
  circuitsolver solve bridge.cir
  circuitsolver solve bridge.cir --out solved.json
  circuitsolver solve graph.pb --out - --out-format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runSolve,
	}
	sweepCmd = &cobra.Command{
		Use:   "sweep FILE",
		Short: "Sweep one edge parameter and solve every point",
		Long: `Sweep one edge parameter and solve the circuit at every point. The
sweep comes from the netlist's .dc card unless --edge is given.

Examples:
  circuitsolver sweep diode.cir
  circuitsolver sweep diode.cir --edge Vin --param v --start 0 --stop 5 --step 0.1 --plot iv.png`,
		Args: cobra.ExactArgs(1),
		RunE: runSweep,
	}
	convertCmd = &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Convert a circuit between formats",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the solver over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	solveCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the solved circuit to this file (- for stdout)")
	solveCmd.Flags().StringVar(&outFormat, "out-format", "", "Output format (default: from --out extension, else the input format)")
	solveCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the result table")

	sweepCmd.Flags().StringVar(&sweepEdge, "edge", "", "Edge to sweep")
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "Parameter of the edge to sweep")
	sweepCmd.Flags().Float64Var(&sweepStart, "start", 0, "First sweep value")
	sweepCmd.Flags().Float64Var(&sweepStop, "stop", 0, "Last sweep value")
	sweepCmd.Flags().Float64Var(&sweepStep, "step", 0, "Sweep increment")
	sweepCmd.Flags().StringVar(&plotPath, "plot", "", "Plot the sweep to this image (png, svg)")
	sweepCmd.Flags().StringSliceVar(&plotSeries, "series", nil, "Series to plot, e.g. V(out),I(d1) (default: all node voltages)")
	sweepCmd.Flags().StringVar(&plotTitle, "title", "", "Plot title (default: circuit title)")
	sweepCmd.MarkFlagsRequiredTogether("edge", "param", "step")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func inputFormat(path string) (netlist.Format, error) {
	if formatFlag != "" {
		return netlist.ParseFormat(formatFlag)
	}
	return netlist.FormatFromPath(path), nil
}

func readCircuit(path string) ([]byte, netlist.Format, error) {
	format, err := inputFormat(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading circuit file: %w", err)
	}
	return data, format, nil
}

func analysisOptions() []analysis.Option {
	return []analysis.Option{
		analysis.WithConfig(cfg.AnalysisOptions()),
		analysis.WithLogger(logger),
	}
}

func openStore() (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	return store.New(cfg.Store.Path)
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runSolve(cmd *cobra.Command, args []string) error {
	data, format, err := readCircuit(args[0])
	if err != nil {
		return err
	}

	start := time.Now()
	o := api.Run(cmd.Context(), data, format, analysisOptions()...)
	elapsed := time.Since(start)

	st, err := openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		r := &store.Record{
			Format:   string(format),
			Status:   o.Code.String(),
			Duration: elapsed,
			Input:    data,
			Output:   o.Output,
		}
		if o.Document != nil {
			r.Title = o.Document.Title
		}
		if o.Result != nil {
			r.Attempts, r.Bases, r.Cost = o.Result.Attempts, o.Result.Bases, o.Result.Cost
		}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		if err := st.Save(context.WithoutCancel(cmd.Context()), r); err != nil {
			logger.Warn("failed to record solve", "error", err)
		}
	}

	if o.Code != api.OK {
		return fmt.Errorf("%s: %w", o.Code, o.Err)
	}
	logger.Info("solved", "attempts", o.Result.Attempts, "discontinuities", o.Result.Bases,
		"cost", o.Result.Cost, "elapsed", elapsed)

	if !quiet {
		printResults(documentResults(o.Document))
	}
	if outPath == "" {
		return nil
	}

	out := o.Output
	target := format
	if outFormat != "" {
		if target, err = netlist.ParseFormat(outFormat); err != nil {
			return err
		}
	} else if outPath != "-" {
		target = netlist.FormatFromPath(outPath)
	}
	if target != format {
		if out, err = netlist.Encode(target, o.Document); err != nil {
			return err
		}
	}
	return writeOutput(outPath, out)
}

func runSweep(cmd *cobra.Command, args []string) error {
	data, format, err := readCircuit(args[0])
	if err != nil {
		return err
	}
	doc, err := netlist.Decode(format, data)
	if err != nil {
		return err
	}
	if sweepEdge != "" {
		doc.Analysis = &netlist.AnalysisDoc{
			Type:  netlist.AnalysisDC,
			Edge:  sweepEdge,
			Param: sweepParam,
			Start: sweepStart,
			Stop:  sweepStop,
			Step:  sweepStep,
		}
	}

	res, err := api.Sweep(cmd.Context(), doc, analysisOptions()...)
	if err != nil {
		return err
	}
	printResults(res.Series)

	if plotPath == "" {
		return nil
	}
	title := plotTitle
	if title == "" {
		title = doc.Title
	}
	p, err := chart.Sweep(title, res, plotSeries)
	if err != nil {
		return err
	}
	if err := chart.Save(plotPath, p); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	logger.Info("plot written", "path", plotPath)
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	data, format, err := readCircuit(args[0])
	if err != nil {
		return err
	}
	doc, err := netlist.Decode(format, data)
	if err != nil {
		return err
	}
	out, err := netlist.Encode(netlist.FormatFromPath(args[1]), doc)
	if err != nil {
		return err
	}
	return writeOutput(args[1], out)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(cfg, st, logger).Run(ctx)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cellgraph/cellgraph/pkg/config"
	"github.com/cellgraph/cellgraph/pkg/execctx"
	"github.com/cellgraph/cellgraph/pkg/gc"
	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/log"
	"github.com/cellgraph/cellgraph/pkg/manager"
	"github.com/cellgraph/cellgraph/pkg/metrics"
	"github.com/cellgraph/cellgraph/pkg/taskinput"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cellgraph",
	Short: "cellgraph - an incremental computation engine core",
	Long: `cellgraph memoizes pure function invocations over a task graph,
tracks which slots each task reads, and re-executes only the tasks whose
dependencies actually changed.

This binary demonstrates the engine embedded as a library: it registers a
couple of native functions, runs a pipeline, and prints what the manager
observed.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"cellgraph version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a small add/double pipeline and report what re-executed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		m := manager.New(cfg)
		m.Start()
		defer m.Stop()

		reaper := gc.New(m, cfg.ReaperInterval)
		reaper.Start()
		defer reaper.Stop()

		intType := m.RegisterValueType("int")

		add := m.RegisterFunction("add", 2, intType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
			x, _ := taskinput.TryReadAs[int](inputs[0])
			y, _ := taskinput.TryReadAs[int](inputs[1])
			log.WithComponent("demo").Info().Int("x", x).Int("y", y).Msg("add executing")
			return x + y, nil
		})

		seed := m.NewExternalSlot(intType)
		m.Seed(seed.ID(), intType, 4)

		double := m.RegisterFunction("double", 0, nil, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
			st, _ := execctx.From(ctx)
			n, err := st.API.Read(ctx, handle.FromSlot(seed.ID()))
			if err != nil {
				return nil, err
			}
			a, err := taskinput.FromValue(n.(int))
			if err != nil {
				return nil, err
			}
			return st.API.Call(ctx, add, []taskinput.Input{a, a})
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h, err := m.NativeCall(ctx, double, nil)
		if err != nil {
			return fmt.Errorf("call double: %w", err)
		}
		if _, _, err := m.WaitDone(ctx); err != nil {
			return fmt.Errorf("wait_done: %w", err)
		}

		v, err := m.Read(ctx, h)
		if err != nil {
			return fmt.Errorf("read double: %w", err)
		}
		fmt.Printf("double(seed=4) = %v\n", v)

		m.Seed(seed.ID(), intType, 9)
		if _, _, err := m.WaitDone(ctx); err != nil {
			return fmt.Errorf("wait_done after reseed: %w", err)
		}
		v, err = m.Read(ctx, h)
		if err != nil {
			return fmt.Errorf("read double after reseed: %w", err)
		}
		fmt.Printf("double(seed=9) = %v\n", v)

		for _, ts := range m.CachedTasksIter() {
			fmt.Printf("task %s: identity=%s state=%s parents=%d children=%d\n",
				ts.ID, ts.Identity, ts.State, ts.Parents, ts.Children)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine and expose its Prometheus metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("metrics-addr")

		cfg := config.Default()
		m := manager.New(cfg)
		m.Start()
		defer m.Stop()

		reaper := gc.New(m, cfg.ReaperInterval)
		reaper.Start()
		defer reaper.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		fmt.Printf("serving metrics on http://%s/metrics\n", addr)
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve Prometheus metrics on")
}

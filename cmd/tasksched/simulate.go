package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	taskscheduler "github.com/Swind/go-task-scheduler"
	"github.com/Swind/go-task-scheduler/config"
	"github.com/Swind/go-task-scheduler/core"
	promexp "github.com/Swind/go-task-scheduler/observability/prometheus"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated presentation workload",
	Long: `Schedules hierarchy and content requests for several connections and rulesets,
plus non-cancelable ruleset updates that block their ruleset's requests, optionally
cancels one connection mid-flight, then waits for every task and prints statistics.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.Int("connections", 3, "number of simulated connections")
	f.Int("rulesets", 2, "number of simulated rulesets")
	f.Int("requests", 4, "requests per connection and ruleset")
	f.Duration("task-duration", 50*time.Millisecond, "maximum simulated task duration")
	f.String("cancel-connection", "conn-2", "connection whose tasks are canceled mid-flight (empty = none)")
	f.Duration("cancel-after", 30*time.Millisecond, "delay before the mid-flight cancel")
	f.Duration("timeout", 30*time.Second, "give up waiting for tasks after this long")
	f.String("metrics-addr", "", "serve Prometheus /metrics on this address")
	f.Bool("watch", false, "hot-reload allocations when the config file changes")
	f.Int("history", 10, "recent task records to print")
	_ = viper.BindPFlags(f)

	rootCmd.AddCommand(simulateCmd)
}

type workload struct {
	Connections int
	Rulesets    int
	Requests    int
	MaxDuration time.Duration
	Seed        int64
}

// enqueueWorkload schedules the simulated requests and returns how many were scheduled.
func enqueueWorkload(s *core.TasksScheduler, w workload) int {
	rng := rand.New(rand.NewSource(w.Seed))
	n := 0
	for r := 1; r <= w.Rulesets; r++ {
		ruleset := fmt.Sprintf("ruleset-%d", r)
		// the update invalidates everything computed for the ruleset
		update := core.NewTask(sleepBody(jitter(rng, w.MaxDuration)), core.TaskTraits{
			Priority:   core.TaskPriorityUserBlocking,
			Name:       "update " + ruleset,
			Cancelable: false,
		},
			core.WithDependencies(core.TaskDependencies{RulesetID: ruleset}),
			core.WithBlockedTasksPredicate(core.ByRuleset(ruleset)),
		)
		s.Schedule(update)
		n++

		for c := 1; c <= w.Connections; c++ {
			conn := fmt.Sprintf("conn-%d", c)
			for i := 0; i < w.Requests; i++ {
				kind, traits := "content", core.TraitsBestEffort()
				if i%2 == 0 {
					kind, traits = "hierarchy", core.DefaultTaskTraits()
				}
				traits.Name = fmt.Sprintf("%s %s/%s #%d", kind, conn, ruleset, i)
				s.Schedule(core.NewTask(sleepBody(jitter(rng, w.MaxDuration)), traits,
					core.WithDependencies(core.TaskDependencies{
						ConnectionID: conn,
						RulesetID:    ruleset,
						DisplayType:  kind,
					})))
				n++
			}
		}
	}
	return n
}

func jitter(rng *rand.Rand, limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(limit))) + 1
}

func sleepBody(d time.Duration) core.TaskBody[time.Duration] {
	return func(ctx context.Context) (time.Duration, error) {
		select {
		case <-time.After(d):
			return d, nil
		case <-ctx.Done():
			return 0, core.ErrTaskCanceled
		}
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := taskscheduler.NewGoroutineThreadPoolWithLogger(cfg.Name+"-pool", cfg.PoolWorkers(), logger)
	pool.Start(ctx)
	defer pool.Stop()

	schedCfg := core.DefaultTasksSchedulerConfig(cfg.ThreadAllocations())
	schedCfg.Name = cfg.Name
	schedCfg.Executor = pool
	schedCfg.Logger = logger
	schedCfg.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
	schedCfg.HistorySize = cfg.HistorySize

	var poller *promexp.SnapshotPoller
	if addr := viper.GetString("metrics-addr"); addr != "" {
		reg := prom.NewRegistry()
		exporter, err := promexp.NewMetricsExporter("", reg, promexp.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		schedCfg.Metrics = exporter
		if poller, err = promexp.NewSnapshotPoller(reg, time.Second); err != nil {
			return fmt.Errorf("snapshot poller: %w", err)
		}
		defer poller.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", core.F("addr", addr))
	}

	scheduler := core.NewTasksSchedulerWithConfig(schedCfg)
	if poller != nil {
		poller.AddScheduler(scheduler.Name(), scheduler)
		poller.AddPool(pool.ID(), pool)
		poller.Start(ctx)
	}
	return simulate(ctx, cmd, scheduler, logger)
}

func simulate(ctx context.Context, cmd *cobra.Command, s *core.TasksScheduler, logger core.Logger) error {
	if viper.GetBool("watch") {
		path := viper.GetString("config")
		if path == "" {
			return errors.New("--watch needs --config")
		}
		w := config.NewWatcher(path, logger, func(next config.Config) error {
			s.SetThreadAllocationsMap(next.ThreadAllocations())
			logger.Info("allocations reloaded", core.F("allocations", next.ThreadAllocations().String()))
			return nil
		})
		if err := w.Prime(); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() { _ = w.Watch(watchCtx) }()
	}

	printAllocations(cmd, s.ThreadAllocations())

	scheduled := enqueueWorkload(s, workload{
		Connections: viper.GetInt("connections"),
		Rulesets:    viper.GetInt("rulesets"),
		Requests:    viper.GetInt("requests"),
		MaxDuration: viper.GetDuration("task-duration"),
		Seed:        time.Now().UnixNano(),
	})
	logger.Info("workload scheduled", core.F("tasks", scheduled))

	var canceled atomic.Int64
	if conn := viper.GetString("cancel-connection"); conn != "" {
		timer := time.AfterFunc(viper.GetDuration("cancel-after"), func() {
			res := s.Cancel(core.ByConnection(conn))
			canceled.Store(int64(res.Len()))
			logger.Info("connection canceled", core.F("connection", conn), core.F("tasks", res.Len()))
		})
		defer timer.Stop()
	}

	waitCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("timeout"))
	defer cancel()
	started := time.Now()
	if err := s.GetAllTasksCompletion(nil).Wait(waitCtx); err != nil {
		return fmt.Errorf("waiting for tasks: %w", err)
	}
	elapsed := time.Since(started)

	if err := s.ShutdownGraceful(waitCtx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	stats := s.Stats()
	fmt.Fprintf(out, "\nscheduled %d tasks, %d hit by cancel, finished in %s\n",
		scheduled, canceled.Load(), elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "queued=%d pending=%d running=%d closed=%v\n",
		stats.Queued, stats.Pending, stats.Running, stats.Closed)

	fmt.Fprintln(out, "\nrecent tasks:")
	for _, rec := range s.RecentTasks(viper.GetInt("history")) {
		fmt.Fprintf(out, "  %-10s %-36s %8s  %s\n",
			rec.Outcome, rec.Name, rec.Duration.Round(time.Millisecond), priorityName(rec.Priority))
	}
	return nil
}

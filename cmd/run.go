package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/posepipe/internal/config"
	"github.com/andresmejia3/posepipe/internal/pipeline"
	"github.com/andresmejia3/posepipe/internal/pool"
	"github.com/andresmejia3/posepipe/internal/reassemble"
	"github.com/andresmejia3/posepipe/internal/sink"
	"github.com/andresmejia3/posepipe/internal/source"
	"github.com/andresmejia3/posepipe/internal/store"
	"github.com/andresmejia3/posepipe/internal/transform"
	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/andresmejia3/posepipe/internal/utils"
	"github.com/andresmejia3/posepipe/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a transform over every frame of a video and write the result in order",
	Example: `  posepipe run -i clip.mp4 -o annotated.mp4 -w 8 --transform pose
  posepipe run -i /dev/video0 --format v4l2 --limit 300 -o webcam.mp4
  ffmpeg -i rtsp://cam/stream -f mjpeg - | posepipe run -i - -o frames/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
		applyRunFlags(cmd, cfg)
		if err := validateRunFlags(cfg); err != nil {
			return err
		}
		return runPipeline(cmd.Context(), cfg)
	},
}

var runFlags struct {
	input, format, output, transform string
	workers, maxAttempts, every      int
	limit, outputCapacity            int
	pollTimeout, drainTimeout        time.Duration
	frameRate                        float64
	policy, model                    string
	strict                           bool
}

func init() {
	d := config.Default()
	f := runCmd.Flags()
	f.StringVarP(&runFlags.input, "input", "i", "", "Video file, capture device, image directory, or - for MJPEG on stdin")
	f.StringVar(&runFlags.format, "format", "", "Force an ffmpeg input format (e.g. v4l2 for webcams)")
	f.StringVarP(&runFlags.output, "output", "o", "", "Output video path, or a directory (trailing /) for PNG frames")
	f.StringVarP(&runFlags.transform, "transform", "t", d.Transform, fmt.Sprintf("Per-frame transform: pose or one of %v", transform.Names()))
	f.IntVarP(&runFlags.workers, "workers", "w", d.Pipeline.Workers, "Number of parallel workers, each with its own engine")
	f.DurationVar(&runFlags.pollTimeout, "poll-timeout", d.Pipeline.PollTimeout, "How long an idle worker waits for input before exiting")
	f.DurationVar(&runFlags.drainTimeout, "drain-timeout", d.Pipeline.DrainTimeout, "How long to wait for the next result before giving up on the rest")
	f.StringVar(&runFlags.policy, "failure-policy", d.Pipeline.FailurePolicy, "On a failed frame: degrade (retire worker), skip (keep going), abort (stop the run)")
	f.IntVar(&runFlags.maxAttempts, "max-attempts", d.Pipeline.MaxAttempts, "Attempts per frame before it is recorded as failed")
	f.IntVar(&runFlags.outputCapacity, "output-capacity", d.Pipeline.OutputCapacity, "Bound on buffered results (0 = unbounded)")
	f.Float64Var(&runFlags.frameRate, "fps", d.Pipeline.FrameRate, "Output frame rate (0 = source rate, else 30)")
	f.IntVarP(&runFlags.every, "every", "n", d.Pipeline.Every, "Keep one frame out of every N")
	f.IntVar(&runFlags.limit, "limit", d.Pipeline.Limit, "Stop after this many frames (0 = all)")
	f.BoolVar(&runFlags.strict, "strict", d.Pipeline.Strict, "Refuse to write output if any frame failed or is missing")
	f.StringVar(&runFlags.model, "model", d.Pose.Model, "Pose engine model name")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags lets explicitly set flags override the config file.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("input") {
		cfg.Input = runFlags.input
	}
	if set("format") {
		cfg.Format = runFlags.format
	}
	if set("output") {
		cfg.Output = runFlags.output
	}
	if set("transform") {
		cfg.Transform = runFlags.transform
	}
	if set("workers") {
		cfg.Pipeline.Workers = runFlags.workers
	}
	if set("poll-timeout") {
		cfg.Pipeline.PollTimeout = runFlags.pollTimeout
	}
	if set("drain-timeout") {
		cfg.Pipeline.DrainTimeout = runFlags.drainTimeout
	}
	if set("failure-policy") {
		cfg.Pipeline.FailurePolicy = runFlags.policy
	}
	if set("max-attempts") {
		cfg.Pipeline.MaxAttempts = runFlags.maxAttempts
	}
	if set("output-capacity") {
		cfg.Pipeline.OutputCapacity = runFlags.outputCapacity
	}
	if set("fps") {
		cfg.Pipeline.FrameRate = runFlags.frameRate
	}
	if set("every") {
		cfg.Pipeline.Every = runFlags.every
	}
	if set("limit") {
		cfg.Pipeline.Limit = runFlags.limit
	}
	if set("strict") {
		cfg.Pipeline.Strict = runFlags.strict
	}
	if set("model") {
		cfg.Pose.Model = runFlags.model
	}
}

// validateRunFlags ensures all arguments are valid before starting heavy processes.
func validateRunFlags(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	// Devices and stdin are checked when opened
	if cfg.Input != "-" && cfg.Format == "" {
		if _, err := os.Stat(cfg.Input); err != nil {
			if os.IsNotExist(err) {
				utils.ShowError("Input does not exist", err, nil)
				return err
			}
			utils.ShowError("Unable to access input", err, nil)
			return err
		}
	}

	if cfg.Transform != "pose" && !transform.IsBuiltin(cfg.Transform) {
		err := fmt.Errorf("invalid transform '%s'. Must be 'pose' or one of %v", cfg.Transform, transform.Names())
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	if _, err := pool.ParsePolicy(cfg.Pipeline.FailurePolicy); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	return nil
}

func buildFactory(cfg *config.Config) (transform.Factory, error) {
	if cfg.Transform == "pose" {
		return worker.Factory(worker.PoseConfig{
			Python:      cfg.Pose.Python,
			Script:      cfg.Pose.Script,
			Model:       cfg.Pose.Model,
			ReadTimeout: cfg.Pose.ReadTimeout,
		}), nil
	}
	return transform.Builtin(cfg.Transform)
}

func openSink(ctx context.Context, path string, fps float64, g types.Geometry) (pipeline.FrameWriter, error) {
	return sink.Open(ctx, path, fps, g)
}

func runPipeline(ctx context.Context, cfg *config.Config) error {
	factory, err := buildFactory(cfg)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	policy, _ := pool.ParsePolicy(cfg.Pipeline.FailurePolicy)

	pcfg := pipeline.Config{
		Workers:        cfg.Pipeline.Workers,
		PollTimeout:    cfg.Pipeline.PollTimeout,
		DrainTimeout:   cfg.Pipeline.DrainTimeout,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		Policy:         policy,
		OutputCapacity: cfg.Pipeline.OutputCapacity,
		Every:          cfg.Pipeline.Every,
		Limit:          cfg.Pipeline.Limit,
		OutputPath:     cfg.Output,
		FrameRate:      cfg.Pipeline.FrameRate,
		Strict:         cfg.Pipeline.Strict,
	}

	log := Log.WithComponent("run")
	p, err := pipeline.New(pcfg,
		source.Opener(source.Options{Input: cfg.Input, Format: cfg.Format}),
		factory,
		pipeline.SinkFunc(openSink),
		pipeline.WithLogger(Log),
		pipeline.WithProgress(newProgressBar),
	)
	if err != nil {
		utils.ShowError("Failed to build pipeline", err, nil)
		return err
	}

	fmt.Printf("🎬 Processing %s with %d %s workers\n", cfg.Input, cfg.Pipeline.Workers, cfg.Transform)
	rep, runErr := p.Run(ctx)
	printSummary(rep, cfg.Output)

	if DB != nil {
		// Background: the run context may already be cancelled, the ledger entry still matters
		if err := DB.RecordRun(context.Background(), toRunRecord(cfg, rep, runErr)); err != nil {
			log.Warn("failed to record run in ledger: %v", err)
		}
	}

	if runErr != nil {
		utils.ShowError(failureContext(runErr), runErr, nil)
		return runErr
	}
	return nil
}

func newProgressBar(total int) reassemble.Progress {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🏃 Estimating poses"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func failureContext(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrSourceUnavailable):
		return "Could not open input"
	case errors.Is(err, pipeline.ErrSinkWriteFailure):
		return "Could not write output"
	case errors.Is(err, pipeline.ErrIncompleteOutput):
		return "Output incomplete (strict mode)"
	case errors.Is(err, pipeline.ErrWorkerTransformFailure):
		return "Transform failed (abort policy)"
	case errors.Is(err, context.Canceled):
		return "Run cancelled"
	default:
		return "Run failed"
	}
}

func runStatus(rep *pipeline.Report, err error) string {
	switch {
	case err != nil:
		return "failed"
	case rep.Missing() > 0:
		return "incomplete"
	default:
		return "complete"
	}
}

func printSummary(rep *pipeline.Report, output string) {
	if rep == nil {
		return
	}
	fmt.Printf("\n📊 Run %s\n", rep.RunID)
	if rep.Total == 0 {
		fmt.Println("   No frames ingested.")
		return
	}
	fmt.Printf("   Frames:   %d ingested (%s, %s @ %.2f fps)\n", rep.Total, rep.Geometry, fmtTime(float64(rep.Total)/rep.FrameRate), rep.FrameRate)
	fmt.Printf("   Results:  %d done, %d failed, %d missing\n", rep.Completed, rep.Failed, rep.Pending)
	for _, w := range rep.Workers {
		fmt.Printf("   Worker %d: %d processed, %d failed, exit %s\n", w.ID, w.Processed, w.Failed, w.Exit)
	}
	if rep.SourceStopped != "" {
		fmt.Printf("⚠️  Source stopped early: %s\n", rep.SourceStopped)
	}
	if rep.DrainTimedOut {
		fmt.Println("⚠️  Drain timeout elapsed before every result arrived")
	}
	if rep.Written > 0 {
		fmt.Printf("✅ Wrote %d frames to %s\n", rep.Written, output)
	}
}

func toRunRecord(cfg *config.Config, rep *pipeline.Report, err error) store.RunRecord {
	r := store.RunRecord{
		ID:        rep.RunID,
		SourceID:  utils.GenerateSourceID(cfg.Input),
		Input:     cfg.Input,
		Output:    cfg.Output,
		Transform: cfg.Transform,
		Policy:    cfg.Pipeline.FailurePolicy,
		Workers:   cfg.Pipeline.Workers,
		Width:     rep.Geometry.Width,
		Height:    rep.Geometry.Height,
		FrameRate: rep.FrameRate,
		Total:     rep.Total,
		Completed: rep.Completed,
		Failed:    rep.Failed,
		Pending:   rep.Pending,
		Written:   rep.Written,
		Status:    runStatus(rep, err),
		StartedAt: rep.StartedAt,
		EndedAt:   rep.EndedAt,
		Failures:  rep.Failures,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tiroq/qacut/internal/config"
	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/ipc"
	"github.com/tiroq/qacut/internal/pidfile"
	"github.com/tiroq/qacut/internal/pipeline"
	"github.com/tiroq/qacut/internal/watch"
)

const logPrefix = "[qacut]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

const usage = `usage: qacut <command> [flags]

commands:
  run          cut one recording into chunks
  watch        process every recording dropped into an inbox
  status       show what the watcher of an inbox is doing
  ctl          send pause, resume or quit to a running watcher
  health       check the configured embedding backends
  export-diag  write a diagnostic bundle from the debug log
  version      print the version
`

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in qacut: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	initLogging(os.Stdout, os.Stderr)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var code int
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		code = cmdRun(args)
	case "watch":
		code = cmdWatch(args)
	case "status":
		code = cmdStatus(args)
	case "ctl":
		code = cmdCtl(args)
	case "health":
		code = cmdHealth(args)
	case "export-diag", "--export-diag":
		code = cmdExportDiag(args)
	case "version", "--version":
		fmt.Println("qacut " + Version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		code = 2
	}
	os.Exit(code)
}

func initLogging(out, errw io.Writer) {
	outLog = log.New(out, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errw, logPrefix+" ERROR: ", log.LstdFlags)
}

// openDiagLog returns the debug logger, or a no-op one when it cannot be
// opened.
func openDiagLog() *diaglog.Logger {
	logger, err := diaglog.New(diaglog.DefaultPath())
	if err != nil {
		errLog.Printf("Failed to open debug log, continuing without it: %v", err)
		return diaglog.NewNoOp()
	}
	if diaglog.IsDebugEnabled() {
		outLog.Printf("[STARTUP] Debug log: %s", diaglog.DefaultPath())
	}
	return logger
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			outLog.Printf("[SHUTDOWN] Received %s, finishing current step...", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// exitCode maps a run error to a process exit code: 3 for configuration
// problems, 1 otherwise.
func exitCode(err error) int {
	var cerr *config.ConfigurationError
	if errors.As(err, &cerr) {
		return 3
	}
	return 1
}

type commonFlags struct {
	configPath string
	mode       string
	category   string
	target     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (default ~/.config/qacut/config.json)")
	fs.StringVar(&c.mode, "mode", "", "segmentation mode: continuity or question")
	fs.StringVar(&c.category, "category", "", "question category (question mode)")
	fs.StringVar(&c.target, "target", "", "target speaker label")
}

// load reads the config and applies flag overrides on top.
func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.mode != "" {
		cfg.Mode = c.mode
	}
	if c.category != "" {
		cfg.Questions.Category = c.category
	}
	if c.target != "" {
		cfg.TargetSpeaker = c.target
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	var in pipeline.Input
	fs.StringVar(&in.Transcript, "transcript", "", "transcript file (.vtt, .srt or .json)")
	fs.StringVar(&in.Video, "video", "", "video source")
	fs.StringVar(&in.Audio, "audio", "", "audio source")
	fs.StringVar(&in.Subtitle, "subtitle", "", "subtitle source (defaults to the transcript when it is .vtt or .srt)")
	fs.StringVar(&in.OutDir, "out", "", "output directory")
	_ = fs.Parse(args)

	if in.Transcript == "" || in.OutDir == "" {
		errLog.Println("-transcript and -out are required")
		fs.Usage()
		return 2
	}
	if in.Subtitle == "" && isSubtitle(in.Transcript) {
		in.Subtitle = in.Transcript
	}

	cfg, err := common.load()
	if err != nil {
		errLog.Printf("%v", err)
		return exitCode(err)
	}

	logger := openDiagLog()
	defer logger.Close()

	runner, closeAll, err := buildRunner(cfg, logger)
	if err != nil {
		errLog.Printf("%v", err)
		return exitCode(err)
	}
	defer closeAll()

	ctx, cancel := signalContext()
	defer cancel()

	outLog.Printf("[RUN] %s -> %s (mode=%s)", in.Transcript, in.OutDir, cfg.Mode)
	rep, err := runner.Run(ctx, in)
	if rep != nil {
		fmt.Println(renderSummary(rep))
	}
	if err != nil {
		errLog.Printf("Run failed: %v", err)
		return exitCode(err)
	}
	return 0
}

func cmdWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	inbox := fs.String("inbox", "", "directory to watch for recordings")
	outRoot := fs.String("out", "", "root output directory; each recording gets <out>/<name>/")
	_ = fs.Parse(args)

	if *inbox == "" || *outRoot == "" {
		errLog.Println("-inbox and -out are required")
		fs.Usage()
		return 2
	}

	cfg, err := common.load()
	if err != nil {
		errLog.Printf("%v", err)
		return exitCode(err)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting qacut watch v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Println("===========================================")

	pidPath := pidfile.PathFor(*inbox)
	lock, err := pidfile.Acquire(pidPath)
	if err != nil {
		errLog.Printf("Failed to lock inbox: %v", err)
		errLog.Printf("If you're sure no other watcher is running, remove: %s", pidPath)
		return 1
	}
	defer func() {
		if err := lock.Release(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("[STARTUP] PID file created: %s", pidPath)

	logger := openDiagLog()
	defer logger.Close()

	runner, closeAll, err := buildRunner(cfg, logger)
	if err != nil {
		errLog.Printf("%v", err)
		return exitCode(err)
	}
	defer closeAll()

	ctx, cancel := signalContext()
	defer cancel()

	ctl := ipc.NewController(*inbox, ipc.PathsFor(*inbox))
	ctl.Errorf = errLog.Printf
	ctlDone := make(chan struct{})
	go func() {
		defer close(ctlDone)
		ctl.Run(ctx, time.Second, func() {
			outLog.Println("[SHUTDOWN] Quit requested")
			cancel()
		})
	}()
	defer func() {
		cancel()
		<-ctlDone
	}()

	w := &watch.Watcher{
		Dir:          *inbox,
		PollInterval: time.Duration(cfg.Watch.PollIntervalSeconds) * time.Second,
		Settle:       time.Duration(cfg.Watch.SettleMillis) * time.Millisecond,
		Logger:       logger,
		Errorf:       errLog.Printf,
	}
	outLog.Printf("[WATCH] Watching %s (poll every %ds)", *inbox, cfg.Watch.PollIntervalSeconds)

	err = w.Run(ctx, func(ctx context.Context, job watch.Job) {
		in := pipeline.Input{
			Transcript: job.Transcript,
			Video:      job.Video,
			Audio:      job.Audio,
			Subtitle:   job.Subtitle,
			OutDir:     filepath.Join(*outRoot, job.Name),
		}
		if err := ctl.Wait(ctx); err != nil {
			return
		}
		outLog.Printf("[WATCH] Processing %s", job.Name)
		ctl.Begin(job.Name)
		rep, err := runner.Run(ctx, in)
		var runID string
		if rep != nil {
			runID = rep.RunID
		}
		ctl.Done(runID, err)
		if err != nil {
			errLog.Printf("[WATCH] %s failed: %v", job.Name, err)
			return
		}
		outLog.Printf("[WATCH] %s done: %d chunks, %d tracks ok, %d failed, %d warnings",
			job.Name, rep.Chunks, rep.TracksOK, rep.TracksFailed, rep.Warnings)
	})
	if err != nil {
		errLog.Printf("Watcher stopped: %v", err)
		return 1
	}
	outLog.Println("[SHUTDOWN] Shutting down gracefully")
	return 0
}

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	inbox := fs.String("inbox", "", "inbox of the watcher")
	_ = fs.Parse(args)
	if *inbox == "" {
		errLog.Println("-inbox is required")
		return 2
	}

	st, err := ipc.ReadStatus(ipc.PathsFor(*inbox).Status)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "no watcher has run for %s\n", *inbox)
			return 1
		}
		errLog.Printf("Failed to read status: %v", err)
		return 1
	}
	if st.State != ipc.StateStopped {
		if _, running := pidfile.Owner(pidfile.PathFor(*inbox)); !running {
			st.State = ipc.StateStopped
		}
	}
	fmt.Println(renderStatus(st))
	return 0
}

func cmdCtl(args []string) int {
	fs := flag.NewFlagSet("ctl", flag.ExitOnError)
	inbox := fs.String("inbox", "", "inbox of the watcher")
	_ = fs.Parse(args)
	if *inbox == "" || fs.NArg() != 1 {
		errLog.Println("usage: qacut ctl -inbox <dir> pause|resume|quit")
		return 2
	}
	cmd, ok := ipc.ParseCommand(fs.Arg(0))
	if !ok {
		errLog.Printf("unknown command %q", fs.Arg(0))
		return 2
	}
	if _, running := pidfile.Owner(pidfile.PathFor(*inbox)); !running {
		errLog.Printf("no watcher is running for %s", *inbox)
		return 1
	}
	if err := ipc.WriteCommand(ipc.PathsFor(*inbox).Command, cmd); err != nil {
		errLog.Printf("Failed to send command: %v", err)
		return 1
	}
	fmt.Printf("Sent %s\n", cmd)
	return 0
}

func cmdHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		errLog.Printf("%v", err)
		return exitCode(err)
	}
	logger := openDiagLog()
	defer logger.Close()

	reg, closeAll, err := buildRegistry(cfg, logger)
	if err != nil {
		errLog.Printf("%v", err)
		return exitCode(err)
	}
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second)
	defer cancel()

	statuses := reg.HealthCheck(ctx)
	fmt.Println(renderHealth(statuses))
	for _, s := range statuses {
		if !s.OK {
			return 1
		}
	}
	return 0
}

func cmdExportDiag(args []string) int {
	fs := flag.NewFlagSet("export-diag", flag.ExitOnError)
	dest := fs.String("dest", ".", "directory for the bundle")
	runID := fs.String("run", "", "only include entries of this run id")
	_ = fs.Parse(args)

	diaglog.Version = Version
	path, n, err := diaglog.Export(diaglog.DefaultPath(), *dest, diaglog.ExportOptions{RunID: *runID})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "hint: run with QACUT_DEBUG=true to enable logging")
			return 1
		}
		return 2
	}
	fmt.Printf("Wrote: %s (%d entries)\n", path, n)
	return 0
}

func isSubtitle(path string) bool {
	switch filepath.Ext(path) {
	case ".vtt", ".srt", ".VTT", ".SRT":
		return true
	}
	return false
}

package main

import (
	"io"
	"time"

	"github.com/tiroq/qacut/internal/config"
	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/embed"
	"github.com/tiroq/qacut/internal/embed/command"
	"github.com/tiroq/qacut/internal/embed/onnx"
	"github.com/tiroq/qacut/internal/embed/openaiemb"
	"github.com/tiroq/qacut/internal/embed/remote"
	"github.com/tiroq/qacut/internal/embed/wsembed"
	"github.com/tiroq/qacut/internal/extract"
	"github.com/tiroq/qacut/internal/media"
	"github.com/tiroq/qacut/internal/pipeline"
	"github.com/tiroq/qacut/internal/sink"
	"github.com/tiroq/qacut/internal/sink/cassandra"
	"github.com/tiroq/qacut/internal/sink/redisq"
	"github.com/tiroq/qacut/internal/sink/sqlite"
	"github.com/tiroq/qacut/internal/tokencount"
)

// newBackend constructs the named embedding backend.
func newBackend(name string, cfg *config.Config, logger *diaglog.Logger) (embed.Backend, error) {
	e := cfg.Embedding
	switch name {
	case config.BackendRemote:
		c := remote.NewClient(remote.Config{
			BaseURL:        e.Remote.BaseURL,
			Token:          e.Remote.Token,
			TimeoutSeconds: e.TimeoutSeconds,
			Retries:        e.Remote.Retries,
			Model:          e.Remote.Model,
		})
		c.SetLogger(logger)
		return c, nil
	case config.BackendWebSocket:
		if e.WebSocket.URL == "" {
			return nil, config.Errorf("embedding.websocket.url", "required for the websocket backend")
		}
		c := wsembed.NewClient(e.WebSocket.URL)
		c.SetLogger(logger)
		return c, nil
	case config.BackendOpenAI:
		b, err := openaiemb.New(openaiemb.Config{
			APIKey:  e.OpenAI.APIKey,
			BaseURL: e.OpenAI.BaseURL,
			Model:   e.OpenAI.Model,
		})
		if err != nil {
			return nil, config.Errorf("embedding.openai", "%v", err)
		}
		return b, nil
	case config.BackendONNX:
		b, err := onnx.New(onnx.Config{
			ModelPath:     e.ONNX.ModelPath,
			TokenizerPath: e.ONNX.TokenizerPath,
			LibraryPath:   e.ONNX.LibraryPath,
			MaxLength:     e.ONNX.MaxLength,
		})
		if err != nil {
			return nil, config.Errorf("embedding.onnx", "%v", err)
		}
		return b, nil
	case config.BackendCommand:
		if e.Command.Path == "" {
			return nil, config.Errorf("embedding.command.path", "required for the command backend")
		}
		return command.NewBackend(command.Config{
			Path:           e.Command.Path,
			Args:           e.Command.Args,
			TimeoutSeconds: e.TimeoutSeconds,
		}), nil
	default:
		return nil, config.Errorf("embedding.backend", "unknown backend %q", name)
	}
}

// buildRegistry registers the primary and optional fallback backends. The
// returned func closes any backend holding a connection.
func buildRegistry(cfg *config.Config, logger *diaglog.Logger) (*embed.Registry, func(), error) {
	reg := embed.NewRegistry()
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	names := []string{cfg.Embedding.Backend}
	if cfg.Embedding.Fallback != "" {
		names = append(names, cfg.Embedding.Fallback)
	}
	for _, name := range names {
		b, err := newBackend(name, cfg, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if c, ok := b.(io.Closer); ok {
			closers = append(closers, c)
		}
		reg.Register(name, b)
	}
	reg.SetPrimary(cfg.Embedding.Backend)
	if cfg.Embedding.Fallback != "" {
		reg.SetFallback(cfg.Embedding.Fallback)
	}
	return reg, closeAll, nil
}

// buildSinks opens every configured sink.
func buildSinks(cfg *config.Config) ([]sink.Sink, error) {
	var sinks []sink.Sink
	s := cfg.Sinks
	if s.SQLite.Path != "" {
		store, err := sqlite.Open(s.SQLite.Path)
		if err != nil {
			return nil, config.Errorf("sinks.sqlite.path", "%v", err)
		}
		sinks = append(sinks, store)
	}
	if len(s.Cassandra.Hosts) > 0 {
		sinks = append(sinks, cassandra.New(cassandra.Config{
			Hosts:    s.Cassandra.Hosts,
			Keyspace: s.Cassandra.Keyspace,
			Timeout:  time.Duration(s.Cassandra.TimeoutSeconds) * time.Second,
		}))
	}
	if s.Redis.Addr != "" {
		sinks = append(sinks, redisq.New(redisq.Config{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
			Queue:    s.Redis.Queue,
		}))
	}
	return sinks, nil
}

// buildRunner wires the pipeline from cfg.
func buildRunner(cfg *config.Config, logger *diaglog.Logger) (*pipeline.Runner, func(), error) {
	var cleanups []func()
	closeAll := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	runner := &pipeline.Runner{
		Config: cfg,
		Slicers: map[extract.Track]extract.Slicer{
			extract.TrackVideo:    media.FFmpeg{Path: cfg.Extract.FFmpegPath},
			extract.TrackAudio:    media.FFmpeg{Path: cfg.Extract.FFmpegPath},
			extract.TrackSubtitle: &media.Subtitle{},
		},
		Logger: logger,
	}

	if cfg.Mode == config.ModeQuestion || cfg.Output.Vectors {
		reg, closeReg, err := buildRegistry(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, closeReg)
		runner.Embedder = reg
		outLog.Printf("[STARTUP] Embedding backends: %v (primary %s)", reg.Backends(), cfg.Embedding.Backend)
	}

	if cfg.Output.TokenizerPath != "" {
		counter, err := tokencount.Load(cfg.Output.TokenizerPath)
		if err != nil {
			closeAll()
			return nil, nil, config.Errorf("output.tokenizer_path", "%v", err)
		}
		runner.Tokens = counter
	}

	sinks, err := buildSinks(cfg)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	for _, s := range sinks {
		s := s
		cleanups = append(cleanups, func() { _ = s.Close() })
		outLog.Printf("[STARTUP] Sink enabled: %s", s.Name())
	}
	runner.Sinks = sinks

	return runner, closeAll, nil
}

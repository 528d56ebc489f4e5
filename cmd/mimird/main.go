// Command mimird serves a personal long-term memory store over a
// line-delimited JSON protocol on stdin/stdout. Each request names a
// registered tool and carries its arguments; each response is a single
// JSON line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/attislabs/mimir/internal/store"
	"github.com/attislabs/mimir/pkg/config"
	"github.com/attislabs/mimir/pkg/mirror"
	"github.com/attislabs/mimir/pkg/tools"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML config file (optional)")
		dbPath     = flag.String("db", "", "Path to SQLite database (overrides config)")
		user       = flag.String("user", "", "User id to scope memory to (overrides config)")
		mirrorDir  = flag.String("mirror", "", "Directory for JSON snapshots after each write (overrides config)")
		useGit     = flag.Bool("git", false, "Commit each mirror snapshot to git")
		verbose    = flag.Bool("verbose", false, "Enable debug logging to stderr")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.Empty()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	path := cfg.GetStringOrDefault("db_path", "memory.db")
	if *dbPath != "" {
		path = *dbPath
	}
	userID := cfg.GetStringOrDefault("user_id", store.DefaultUser)
	if *user != "" {
		userID = *user
	}
	mirrorPath := cfg.GetString("mirror_dir")
	if *mirrorDir != "" {
		mirrorPath = *mirrorDir
	}
	gitMirror := cfg.GetBoolOrDefault("mirror_git", false) || *useGit

	st, err := store.New(path, store.WithUser(userID))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	if mirrorPath != "" {
		var opts []mirror.Option
		if gitMirror {
			opts = append(opts, mirror.WithGit())
		}
		opts = append(opts, mirror.WithLogger(logger))
		sync, err := mirror.New(st, mirrorPath, opts...)
		if err != nil {
			log.Fatalf("Failed to set up mirror: %v", err)
		}
		st.SetHook(sync)
		logger.Info("mirroring enabled", "dir", mirrorPath, "git", gitMirror)
	}

	reg := tools.NewRegistry()
	registerTools(reg, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("memory store ready", "db", path, "user", userID, "tools", len(reg.List()))
	if err := serve(ctx, reg, os.Stdin, os.Stdout, logger); err != nil {
		log.Fatalf("Serve failed: %v", err)
	}
}

type request struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// serve reads one JSON request per line and writes one JSON response per
// line. Malformed requests and unknown tools produce error responses,
// not session failures; the loop ends at EOF or context cancellation.
func serve(ctx context.Context, reg *tools.Registry, in io.Reader, out io.Writer, logger *slog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeError(enc, fmt.Errorf("malformed request: %w", err))
			continue
		}

		if req.Tool == "tools/list" {
			if err := enc.Encode(map[string]any{"tools": reg.List()}); err != nil {
				return err
			}
			continue
		}

		logger.Debug("dispatch", "tool", req.Tool)
		result, err := reg.Execute(ctx, req.Tool, req.Args)
		if err != nil {
			writeError(enc, err)
			continue
		}
		if err := enc.Encode(map[string]any{
			"result":   json.RawMessage(result.Content),
			"is_error": result.IsError,
		}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeError(enc *json.Encoder, err error) {
	enc.Encode(map[string]string{"error": err.Error()})
}

// meshdb prints the contents of a mesh telemetry store as indented JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/pdxlocations/meshdb"
	"github.com/pdxlocations/meshdb/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "", "config file path")
	basePath := flag.String("db", "", "store base path (overrides config and MESHDB_PATH)")
	owner := flag.Uint("owner", 0, "owner node id to dump (0 dumps every store)")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("meshdb", Version)
		return
	}

	logging.Init(parseLevel(*logLevel), false)

	cfg := meshdb.DefaultConfig()
	if *cfgPath != "" {
		loaded, err := meshdb.LoadConfig(*cfgPath)
		if err != nil {
			fatal("load config: %v", err)
		}
		cfg = loaded
	}
	if p := os.Getenv("MESHDB_PATH"); p != "" {
		cfg.BasePath = p
	}
	if *basePath != "" {
		cfg.BasePath = *basePath
	}

	db, err := meshdb.Open(cfg)
	if err != nil {
		fatal("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	owners := []uint32{uint32(*owner)}
	if *owner == 0 {
		owners, err = db.KnownOwners()
		if err != nil {
			fatal("enumerate stores: %v", err)
		}
		if len(owners) == 0 {
			fmt.Fprintf(os.Stderr, "no stores under %s\n", cfg.BasePath)
			return
		}
	}

	// One JSON object per owner, keyed by the owner's canonical id.
	out := make(map[string]map[string]meshdb.DumpEntry, len(owners))
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	for _, o := range owners {
		dump, err := db.Dump(ctx, o)
		if err != nil {
			fatal("dump store %d: %v", o, err)
		}
		out[fmt.Sprintf("!%08x", o)] = dump
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal("encode: %v", err)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "meshdb: "+format+"\n", args...)
	os.Exit(1)
}

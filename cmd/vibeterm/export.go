package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/GriffinCanCode/vibeterm/internal/store"
)

// openStore opens the configured session database. It does not create one.
func openStore(ctx context.Context, fs *flag.FlagSet, args []string) (*store.Store, []string, error) {
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Store.Path
	if path == "" {
		if path, err = store.DefaultPath(); err != nil {
			return nil, nil, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("no session database at %s", path)
	}
	st, err := store.Open(ctx, path, nil)
	if err != nil {
		return nil, nil, err
	}
	return st, fs.Args(), nil
}

// runExport writes one recorded session to a file or stdout.
//
//	vibeterm export [-format json|zstd|gzip] [-o file] SESSION_ID
func runExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	formatName := fs.String("format", "json", "Export format: json, zstd or gzip")
	outPath := fs.String("o", "", `Output file; "." names it after the session`)

	ctx := context.Background()
	st, rest, err := openStore(ctx, fs, args)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(rest) != 1 {
		return errors.New("usage: vibeterm export [flags] SESSION_ID")
	}
	sessionID := rest[0]

	format, err := store.ParseFormat(*formatName)
	if err != nil {
		return err
	}

	w := stdout
	if *outPath != "" {
		name := *outPath
		if name == "." {
			name = sessionID + format.Extension()
		}
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return st.Export(ctx, sessionID, w, format)
}

// runHistory lists recent recorded sessions.
//
//	vibeterm history [-n 20]
func runHistory(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("n", 20, "Number of sessions to list")

	ctx := context.Background()
	st, _, err := openStore(ctx, fs, args)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.SessionsWithCommands(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tCOMMANDS\tCWD")
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.StartedAt.Local().Format(time.DateTime), duration, s.CommandCount, s.Cwd)
	}
	return tw.Flush()
}

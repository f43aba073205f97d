// Command hstore-dump prints the contents of a store file as an indented
// tree, one line per node, with value kinds and array shapes. Intended for
// inspecting stores written by other tools without loading them through the
// typed protocol.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/andreyvit/hstore"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "hstore-dump: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	group := pflag.StringP("group", "g", "", "dump only the given group path (slash-separated)")
	optionsFile := pflag.StringP("options", "o", "", "YAML options file overriding the defaults")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))

	if pflag.NArg() != 1 {
		return fmt.Errorf("usage: hstore-dump [flags] <store-file>")
	}
	path := pflag.Arg(0)

	opts := hstore.DefaultOptions()
	if *optionsFile != "" {
		var err error
		if opts, err = hstore.LoadOptions(*optionsFile); err != nil {
			return err
		}
	}

	store, err := hstore.Open(path, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	slog.Debug("opened store", "path", path, "identity", store.Identity())

	g := store.Root()
	if *group != "" {
		if g = g.Group(*group); g == nil {
			return fmt.Errorf("no group %q in %s", *group, path)
		}
	}
	fmt.Printf("# %s (identity %s)\n", path, store.Identity())
	fmt.Print(hstore.Dump(g))
	return nil
}

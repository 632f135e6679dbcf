// Package cli wires the ck3ls binary's subcommands to the library
// packages: catalog, scope, schema, index, coordinator, lspserver, and
// workspace. It owns no analysis logic itself.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jomini-lang/ck3lsp/catalog"
	"github.com/jomini-lang/ck3lsp/coordinator"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/index"
	"github.com/jomini-lang/ck3lsp/lspserver"
	"github.com/jomini-lang/ck3lsp/schema"
	"github.com/jomini-lang/ck3lsp/scope"
	"github.com/jomini-lang/ck3lsp/workspace"
)

var (
	schemaDir string
	verbose   bool
)

// Root returns the ck3ls command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "ck3ls",
		Short: "Language server and workspace analyzer for Crusader Kings III mods",
	}
	root.PersistentFlags().StringVar(&schemaDir, "schema-dir", "schema/data", "directory of schema YAML files")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd(), scanCmd())
	return root
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildRuntime loads the catalog and schema registry, the two immutable
// startup dependencies every subcommand needs, failing fast on either
// ConfigError per §3's "registry never comes up half-loaded" invariant.
func buildRuntime(logger *zap.Logger) (*catalog.Catalog, *schema.Registry, *scope.Engine, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading catalog: %w", err)
	}
	reg, err := schema.Load(schemaDir, nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading schema registry from %s: %w", schemaDir, err)
	}
	engine := scope.New(cat)
	logger.Debug("runtime loaded",
		zap.Int("schemas", len(reg.AllSchemas())),
		zap.Int("effects", len(cat.Effects)),
		zap.Int("triggers", len(cat.Triggers)),
	)
	return cat, reg, engine, nil
}

func serveCmd() *cobra.Command {
	var poolSize int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, reg, engine, err := buildRuntime(logger)
			if err != nil {
				return err
			}

			ix := index.New()
			server := lspserver.New(nil, logger)
			coord := coordinator.New(logger, reg, engine, ix, server, poolSize)
			server.Bind(coord)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return server.Serve(ctx, stdio{})
		},
	}
	cmd.Flags().IntVar(&poolSize, "pool-size", 4, "max concurrent document analyses")
	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [root]",
		Short: "Analyze every script and localization file under root once and print diagnostics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, reg, _, err := buildRuntime(logger)
			if err != nil {
				return err
			}

			ix := index.New()
			scanner := index.NewScanner(ix, reg, workspace.New())
			diags, err := scanner.ScanWorkspace(context.Background(), root)
			if err != nil {
				return err
			}
			diags = append(diags, ix.Snapshot().DuplicateDiagnostics(index.KindEvent)...)

			p := message.NewPrinter(localeFromEnv())
			for _, d := range diags {
				printDiagnostic(p, d)
			}
			p.Printf("%d diagnostic(s)\n", len(diags))
			return nil
		},
	}
	return cmd
}

func printDiagnostic(p *message.Printer, d diag.Diagnostic) {
	pos := d.Range.Start.Position()
	p.Printf("%s:%d:%d: %s [%s] %s\n", pos.Filename, pos.Line, pos.Column, d.Severity, d.Code, d.Message)
}

// localeFromEnv mirrors the teacher's LC_ALL/LANG-derived locale lookup
// so diagnostic output formats numbers the way the user's shell expects.
func localeFromEnv() language.Tag {
	loc := os.Getenv("LC_ALL")
	if loc == "" {
		loc = os.Getenv("LANG")
	}
	for i, r := range loc {
		if r == '.' {
			loc = loc[:i]
			break
		}
	}
	return language.Make(loc)
}

// stdio bundles os.Stdin/os.Stdout into the io.ReadWriteCloser Serve
// expects, closing both on Close.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error {
	_ = os.Stdin.Close()
	return os.Stdout.Close()
}

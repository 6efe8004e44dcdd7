// Command skyec is the CLI front door for the Skye-to-C pipeline, grounded
// on the teacher's cmd/cmd.go: a github.com/urfave/cli/v3 command tree with
// an `emit` subcommand and a default action that emits a file given without
// a subcommand the same way, generalized from Rugo's "compile straight to a runnable Go
// binary" model to Skye's "compile to portable C text" one.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/skyelang/skyec/ast"
	"github.com/skyelang/skyec/compiler"
	"github.com/skyelang/skyec/diag"
	"github.com/urfave/cli/v3"
)

var version = "v0.1.0"

// noFrontend is the seam spec §1 calls out as external ("treated as an
// opaque 'parse this path to AST' service"): this binary ships no lexer or
// parser, so it reports the missing collaborator instead of guessing at
// Skye's grammar. A real distribution links a concrete compiler.Frontend
// (lexer+parser) in its place; the core pipeline below is unchanged either
// way.
type noFrontend struct{}

func (noFrontend) Parse(path string) (*ast.Program, error) {
	return nil, fmt.Errorf("skyec: no frontend registered to parse %s (lexing/parsing is an external collaborator, see spec §1)", path)
}

func main() {
	cmd := &cli.Command{
		Name:                   "skyec",
		Usage:                  "Skye semantic analysis + C emission pipeline",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "compile mode: debug, release, release-unsafe",
				Value: "debug",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return cli.DefaultShowRootCommandHelp(cmd)
			}
			return emitAction(ctx, cmd)
		},
		Commands: []*cli.Command{
			{
				Name:      "emit",
				Usage:     "Emit the generated C source for a Skye source file",
				ArgsUsage: "<file.skye>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Write C output to this path instead of stdout",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "compile mode: debug, release, release-unsafe",
						Value: "debug",
					},
				},
				Action: emitAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func emitAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: skyec emit <file.skye>")
	}
	mode, ok := compiler.ParseCompileMode(cmd.String("mode"))
	if !ok {
		return fmt.Errorf("unknown --mode %q", cmd.String("mode"))
	}

	path := cmd.Args().First()
	sink := diag.NewTermSink(os.Stderr, os.Stderr.Fd())

	res, err := compiler.Compile(noFrontend{}, path, compiler.Options{
		SourceFile: path,
		Mode:       mode,
	}, sink)
	if err != nil {
		return err
	}
	if res.HadErrors {
		return fmt.Errorf("%d error(s)", sink.ErrorCount())
	}

	if out := cmd.String("out"); out != "" {
		return os.WriteFile(out, []byte(res.C), 0o644)
	}
	fmt.Print(res.C)
	return nil
}

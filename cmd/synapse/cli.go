package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/extract"
	"github.com/hpungsan/synapse/internal/ops"
	"github.com/hpungsan/synapse/internal/web"
)

// newCLIApp creates the CLI application with all commands.
// rt may be nil when only help or version output is needed.
func newCLIApp(rt *ops.Runtime) *cli.App {
	app := &cli.App{
		Name:    "synapse",
		Usage:   "Local-first capture store with remote sync",
		Version: Version,
		Commands: []*cli.Command{
			captureCmd(rt),
			listCmd(rt),
			showCmd(rt),
			countCmd(rt),
			exportCmd(rt),
			clearCmd(rt),
			syncCmd(rt),
			queueCmd(rt),
			configCmd(rt),
			authCmd(rt),
			serveCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureFlags returns the flags shared by the capture subcommands.
func captureFlags(extra ...cli.Flag) []cli.Flag {
	return append(extra,
		&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Source page URL"},
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title (defaults to metadata title)"},
		&cli.StringSliceFlag{Name: "meta", Usage: "Metadata entry key=value (repeatable)"},
		&cli.BoolFlag{Name: "sync", Usage: "Run a sync pass after saving (default: sync_on_capture; --sync=false to skip)"},
	)
}

// captureCmd creates the capture command.
func captureCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Save a capture (reads content from stdin)",
		Subcommands: []*cli.Command{
			{
				Name:    "selection",
				Aliases: []string{"text"},
				Usage:   "Save selected text",
				Flags:   captureFlags(),
				Action: func(c *cli.Context) error {
					content, err := readInput(c)
					if err != nil {
						return outputError(err)
					}
					return runCapture(c, rt, capture.Input{
						Kind:    capture.KindSelectedText,
						Content: content,
					})
				},
			},
			{
				Name:  "page",
				Usage: "Save a whole page (Markdown, or HTML with --html)",
				Flags: captureFlags(
					&cli.BoolFlag{Name: "html", Usage: "Stdin is HTML; extract title, meta tags, and Markdown body"},
				),
				Action: func(c *cli.Context) error {
					content, err := readInput(c)
					if err != nil {
						return outputError(err)
					}
					if !c.Bool("html") {
						return runCapture(c, rt, capture.Input{
							Kind:    capture.KindPage,
							Content: content,
						})
					}
					page, err := extract.FromHTML(strings.NewReader(content), c.String("url"))
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					return runCapture(c, rt, page.Input())
				},
			},
		},
	}
}

// runCapture merges flags into in and saves it.
func runCapture(c *cli.Context, rt *ops.Runtime, in capture.Input) error {
	meta, err := parseMeta(c.StringSlice("meta"))
	if err != nil {
		return outputError(errors.NewInvalidRequest(err.Error()))
	}
	if in.Metadata == nil {
		in.Metadata = capture.Metadata{}
	}
	for k, v := range meta {
		in.Metadata[k] = v
	}
	if len(in.Metadata) == 0 {
		in.Metadata = nil
	}
	if url := c.String("url"); url != "" {
		in.URL = url
	}
	if title := c.String("title"); title != "" {
		in.Title = title
	}

	input := ops.CaptureInput{
		Kind:     string(in.Kind),
		Content:  in.Content,
		URL:      in.URL,
		Title:    in.Title,
		Metadata: in.Metadata,
	}
	if c.IsSet("sync") {
		sync := c.Bool("sync")
		input.Sync = &sync
	}

	output, err := ops.Capture(c.Context, rt, input)
	if err != nil {
		return outputError(err)
	}
	return outputJSON(c, output)
}

// listCmd creates the list command.
func listCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored captures, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: page|selected_text"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, rt, ops.ListInput{
				Kind:   c.String("kind"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one capture with full content",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Get(c.Context, rt, ops.GetInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// countCmd creates the count command.
func countCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "count",
		Usage: "Count stored captures and unsynced queue entries",
		Action: func(c *cli.Context) error {
			output, err := ops.Count(c.Context, rt)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export stored captures to a CSV file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.synapse/exports/synapse-captures-<date>.csv)"},
			&cli.BoolFlag{Name: "clear", Usage: "Clear stored captures after the file is written"},
			&cli.BoolFlag{Name: "stdout", Usage: "Write the CSV to stdout instead of a file"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("stdout") {
				export, err := ops.ExportCSV(c.Context, rt)
				if err != nil {
					return outputError(err)
				}
				_, err = c.App.Writer.Write(export.Data)
				return err
			}

			output, err := ops.Export(c.Context, rt, ops.ExportInput{
				Path:  c.String("path"),
				Clear: c.Bool("clear"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Clear stored captures (the sync queue is kept unless --all)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Also drop every queue entry, including unsynced ones"},
		},
		Action: func(c *cli.Context) error {
			var (
				output *ops.ClearOutput
				err    error
			)
			if c.Bool("all") {
				output, err = ops.ClearAll(c.Context, rt)
			} else {
				output, err = ops.ClearCaptures(c.Context, rt)
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// syncCmd creates the sync command.
func syncCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync pass over due queue entries",
		Action: func(c *cli.Context) error {
			output, err := ops.Sync(c.Context, rt)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// queueCmd creates the queue command group.
func queueCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect and manage the sync queue",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show queue counts and retry policy",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "entries", Aliases: []string{"e"}, Usage: "List pending and parked entries"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum entries per list"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.QueueStatus(c.Context, rt, ops.QueueStatusInput{
						IncludeEntries: c.Bool("entries"),
						Limit:          c.Int("limit"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "requeue",
				Usage:     "Reset parked entries for retry (all parked entries when no ids are given)",
				ArgsUsage: "[queue-id...]",
				Action: func(c *cli.Context) error {
					ids, err := parseIDs(c.Args().Slice())
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					output, err := ops.Requeue(c.Context, rt, ops.RequeueInput{IDs: ids})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "clear",
				Usage: "Drop every queue entry, including unsynced ones",
				Action: func(c *cli.Context) error {
					output, err := ops.ClearQueue(c.Context, rt)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// configCmd creates the config command group.
func configCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the remote API settings",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Show the effective API base and sync settings",
				Action: func(c *cli.Context) error {
					output, err := ops.GetConfig(c.Context, rt)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "set-api-base",
				Usage:     "Persist the remote API base URL",
				ArgsUsage: "<url>",
				Action: func(c *cli.Context) error {
					output, err := ops.UpdateConfig(c.Context, rt, ops.UpdateConfigInput{APIBase: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "reset-api-base",
				Usage: "Drop the stored API base and use the configured default",
				Action: func(c *cli.Context) error {
					output, err := ops.UpdateConfig(c.Context, rt, ops.UpdateConfigInput{Reset: true})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// authCmd creates the auth command group.
func authCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the stored session token",
		Subcommands: []*cli.Command{
			{
				Name:      "set-token",
				Usage:     "Store a session token (argument or stdin)",
				ArgsUsage: "[token]",
				Action: func(c *cli.Context) error {
					token := c.Args().First()
					if token == "" {
						var err error
						if token, err = readInput(c); err != nil {
							return outputError(err)
						}
					}
					output, err := ops.SetToken(c.Context, rt, ops.SetTokenInput{Token: token})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "clear",
				Usage: "Remove the stored session token",
				Action: func(c *cli.Context) error {
					output, err := ops.ClearToken(c.Context, rt)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "whoami",
				Usage: "Show the user the stored token resolves to",
				Action: func(c *cli.Context) error {
					output, err := ops.Whoami(c.Context, rt)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(rt *ops.Runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI and the local message endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 7788, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(rt, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, rt.Logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to the app writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readInput reads piped content from the app reader.
// A terminal on stdin is rejected instead of blocking for input.
func readInput(c *cli.Context) (string, error) {
	r := c.App.Reader
	if f, ok := r.(*os.File); ok && !stdinHasData(f) {
		return "", errors.NewInvalidRequest("content must be piped via stdin")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.NewInvalidRequest("content is required")
	}
	return text, nil
}

// stdinHasData returns true if f is piped data (not a terminal).
func stdinHasData(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// parseMeta parses key=value pairs into string metadata.
func parseMeta(pairs []string) (capture.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(capture.Metadata, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q (want key=value)", p)
		}
		meta[k] = capture.String(strings.TrimSpace(v))
	}
	return meta, nil
}

// parseIDs converts positional queue ids.
func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid queue id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

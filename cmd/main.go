// cmd/main.go

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/invoicing-editor/pkg/config"
	"github.com/invoicing-editor/pkg/editor"
	"github.com/invoicing-editor/pkg/export"
	"github.com/invoicing-editor/pkg/httpapi"
	"github.com/invoicing-editor/pkg/invoice"
	"github.com/invoicing-editor/pkg/logging"
	"github.com/invoicing-editor/pkg/notify"
	"github.com/invoicing-editor/pkg/qrcode"
	"github.com/invoicing-editor/pkg/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every command runs against.
type env struct {
	out     io.Writer
	cfg     *config.Config
	logger  *zap.Logger
	kv      store.KV
	session *editor.Session
}

func newApp(out io.Writer) *cli.App {
	e := &env{out: out}
	return &cli.App{
		Name:  "invoice",
		Usage: "edit, export and send a single invoice",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML config file", EnvVars: []string{"INVOICE_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level"},
		},
		Before:   e.setup,
		After:    e.close,
		Commands: e.commands(),
	}
}

func (e *env) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	kv, err := store.Open(c.Context, cfg.Storage, logger)
	if err != nil {
		return err
	}
	opts := editor.Options{
		Repo:      store.NewRepository(kv, logger),
		QR:        qrcode.NewRenderer(nil, qrcode.DefaultOptions(), logger),
		Clipboard: editor.TerminalClipboard{Out: os.Stderr},
		Logger:    logger,
	}
	if cfg.Email.WebhookURL != "" {
		wh, err := notify.NewWebhook(cfg.Email.WebhookURL, cfg.Email.Timeout, logger)
		if err != nil {
			kv.Close()
			return err
		}
		opts.Sender = wh
	}
	if s3 := cfg.Export.S3; s3.Bucket != "" {
		sink, err := export.NewS3Sink(s3.Region, s3.Bucket, s3.Prefix, logger)
		if err != nil {
			kv.Close()
			return err
		}
		opts.Sink = sink
	} else {
		opts.Sink = export.DirSink{Dir: cfg.Export.Dir}
	}
	session, err := editor.Open(c.Context, opts)
	if err != nil {
		kv.Close()
		return err
	}
	e.cfg, e.logger, e.kv, e.session = cfg, logger, kv, session
	return nil
}

func (e *env) close(*cli.Context) error {
	if e.logger != nil {
		_ = e.logger.Sync()
	}
	if e.kv != nil {
		return e.kv.Close()
	}
	return nil
}

func (e *env) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "new",
			Usage: "start a new empty invoice",
			Action: func(c *cli.Context) error {
				inv, err := e.session.Reset(c.Context)
				if err != nil {
					return err
				}
				return e.print(inv, "text")
			},
		},
		{
			Name:  "show",
			Usage: "print the invoice",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "text", Usage: "text, json or yaml"},
			},
			Action: func(c *cli.Context) error {
				return e.print(e.session.Invoice(), c.String("output"))
			},
		},
		{
			Name:  "fields",
			Usage: "list the editable fields",
			Action: func(c *cli.Context) error {
				for _, f := range invoice.Fields() {
					fmt.Fprintln(e.out, f)
				}
				return nil
			},
		},
		{
			Name:      "set",
			Usage:     "change one field, e.g. set meta.taxRate 8",
			ArgsUsage: "<field> <value>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return usageError("usage: invoice set <field> <value>")
				}
				_, err := e.session.SetField(c.Context, c.Args().Get(0), c.Args().Get(1))
				return err
			},
		},
		e.itemCommand(),
		{
			Name:  "number",
			Usage: "assign the next invoice number for today",
			Action: func(c *cli.Context) error {
				n, err := e.session.AutoNumber(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintln(e.out, n)
				return nil
			},
		},
		{
			Name:      "status",
			Usage:     "set the invoice status",
			ArgsUsage: "<draft|sent|viewed|paid|overdue>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return usageError("usage: invoice status <status>")
				}
				_, err := e.session.SetStatus(c.Context, invoice.Status(c.Args().First()))
				return err
			},
		},
		e.logoCommand(),
		e.clientCommand(),
		{
			Name:  "totals",
			Usage: "print subtotal, tax, discount and total",
			Action: func(c *cli.Context) error {
				inv := e.session.Invoice()
				t := inv.Totals()
				tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', tabwriter.AlignRight)
				for _, row := range []struct {
					label string
					v     float64
				}{{"Subtotal", t.Subtotal}, {"Tax", t.Tax}, {"Discount", t.Discount}, {"Total", t.Total}} {
					fmt.Fprintf(tw, "%s\t%s\t\n", row.label, invoice.FormatMoney(row.v, inv.Meta.Currency))
				}
				return tw.Flush()
			},
		},
		{
			Name:  "export",
			Usage: "render the invoice as PDF and mark it sent",
			Action: func(c *cli.Context) error {
				out, err := e.session.ExportPDF(c.Context)
				if out.Location != "" {
					fmt.Fprintln(e.out, out.Location)
				}
				return err
			},
		},
		{
			Name:  "email",
			Usage: "email the invoice to the client",
			Action: func(c *cli.Context) error {
				res, err := e.session.Email(c.Context)
				if err != nil {
					return err
				}
				if res.Mailto != "" {
					fmt.Fprintln(e.out, res.Mailto)
					return nil
				}
				fmt.Fprintf(e.out, "Email request sent to %s\n", res.To)
				return nil
			},
		},
		{
			Name:  "link",
			Usage: "print the public view link",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "copy", Usage: "also copy the link to the clipboard"},
			},
			Action: func(c *cli.Context) error {
				var (
					link string
					err  error
				)
				if c.Bool("copy") {
					link, err = e.session.CopyViewLink()
				} else {
					link, err = e.session.ViewLink()
				}
				if link != "" {
					fmt.Fprintln(e.out, link)
				}
				return err
			},
		},
		{
			Name:      "qr",
			Usage:     "write the payment link QR code as PNG",
			ArgsUsage: "<file>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return usageError("usage: invoice qr <file>")
				}
				img, err := e.session.PaymentQR(c.Context)
				if err != nil {
					return err
				}
				if img == nil {
					return errors.New("no payment link set")
				}
				return os.WriteFile(c.Args().First(), img, 0o644)
			},
		},
		{
			Name:  "serve",
			Usage: "serve the preview and JSON API over HTTP",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "addr", Usage: "listen address, overrides server.addr"},
			},
			Action: func(c *cli.Context) error {
				srv, err := httpapi.New(e.session, e.logger)
				if err != nil {
					return err
				}
				cfg := e.cfg.Server
				if a := c.String("addr"); a != "" {
					cfg.Addr = a
				}
				return srv.ListenAndServe(c.Context, cfg)
			},
		},
	}
}

func (e *env) itemCommand() *cli.Command {
	return &cli.Command{
		Name:  "item",
		Usage: "manage line items",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "append a blank item and print its id",
				Action: func(c *cli.Context) error {
					it, err := e.session.AddItem(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintln(e.out, it.ID)
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "remove an item",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return usageError("usage: invoice item remove <id>")
					}
					_, err := e.session.RemoveItem(c.Context, c.Args().First())
					return err
				},
			},
			{
				Name:      "update",
				Usage:     "change the description, quantity or price of an item",
				ArgsUsage: "[--description D] [--qty N] [--price N] <id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
					&cli.StringFlag{Name: "qty", Aliases: []string{"q"}},
					&cli.StringFlag{Name: "price", Aliases: []string{"p"}},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return usageError("usage: invoice item update [--description D] [--qty N] [--price N] <id>")
					}
					var patch invoice.ItemPatch
					if c.IsSet("description") {
						d := c.String("description")
						patch.Description = &d
					}
					for _, f := range []struct {
						name string
						dst  **float64
					}{{"qty", &patch.Quantity}, {"price", &patch.UnitPrice}} {
						if !c.IsSet(f.name) {
							continue
						}
						n, err := strconv.ParseFloat(c.String(f.name), 64)
						if err != nil {
							return fmt.Errorf("%s: %w", f.name, invoice.ErrInvalidValue)
						}
						*f.dst = &n
					}
					_, err := e.session.UpdateItem(c.Context, c.Args().First(), patch)
					return err
				},
			},
		},
	}
}

func (e *env) logoCommand() *cli.Command {
	return &cli.Command{
		Name:  "logo",
		Usage: "set or remove the logo",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "use a PNG, JPEG or GIF file as the logo",
				ArgsUsage: "<file>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return usageError("usage: invoice logo set <file>")
					}
					data, err := os.ReadFile(c.Args().First())
					if err != nil {
						return err
					}
					if len(data) > httpapi.MaxLogoSize {
						return errors.New("logo larger than 5 MB")
					}
					_, err = e.session.SetLogo(c.Context, http.DetectContentType(data), data)
					return err
				},
			},
			{
				Name:  "remove",
				Usage: "remove the logo",
				Action: func(c *cli.Context) error {
					_, err := e.session.RemoveLogo(c.Context)
					return err
				},
			},
		},
	}
}

func (e *env) clientCommand() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "manage saved clients",
		Subcommands: []*cli.Command{
			{
				Name:  "save",
				Usage: "save the invoice's client to the directory",
				Action: func(c *cli.Context) error {
					rec, err := e.session.SaveClient(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintln(e.out, rec.ID)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list saved clients",
				Action: func(c *cli.Context) error {
					tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tCOMPANY\tNAME\tEMAIL\tSENT")
					for _, r := range e.session.Clients() {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.Company, r.Name, r.Email, len(r.History))
					}
					return tw.Flush()
				},
			},
			{
				Name:      "use",
				Usage:     "fill the invoice's client from a saved client",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return usageError("usage: invoice client use <id>")
					}
					_, err := e.session.SelectClient(c.Context, c.Args().First())
					return err
				},
			},
			{
				Name:      "delete",
				Usage:     "delete a saved client",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return usageError("usage: invoice client delete <id>")
					}
					return e.session.DeleteClient(c.Context, c.Args().First())
				},
			},
		},
	}
}

func usageError(msg string) error { return errors.New(msg) }

func (e *env) print(inv invoice.Invoice, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(inv)
	case "yaml":
		b, err := yaml.Marshal(inv)
		if err != nil {
			return err
		}
		_, err = e.out.Write(b)
		return err
	case "text", "":
		return printText(e.out, inv)
	}
	return errors.New("unknown output format " + strconv.Quote(format))
}

func printText(w io.Writer, inv invoice.Invoice) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range invoice.Fields() {
		v, err := invoice.Get(inv, f)
		if err != nil {
			return err
		}
		if v == "" || f == invoice.MetaLogo {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", f, v)
	}
	if inv.Meta.Logo != "" {
		fmt.Fprintf(tw, "%s\t(set)\n", invoice.MetaLogo)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ID\tDESCRIPTION\tQTY\tPRICE\tAMOUNT")
	for _, it := range inv.Items {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%s\n", it.ID, it.Description, it.Quantity,
			invoice.FormatMoney(it.UnitPrice, inv.Meta.Currency),
			invoice.FormatMoney(it.Amount(), inv.Meta.Currency))
	}
	fmt.Fprintf(tw, "\t\t\tTotal\t%s\n", invoice.FormatMoney(inv.Totals().Total, inv.Meta.Currency))
	return tw.Flush()
}

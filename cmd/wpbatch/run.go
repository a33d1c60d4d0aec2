package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/spf13/cobra"

	"github.com/kalambet/wpbatch/internal/audit"
	"github.com/kalambet/wpbatch/internal/batch"
	"github.com/kalambet/wpbatch/internal/config"
	"github.com/kalambet/wpbatch/internal/credential"
	"github.com/kalambet/wpbatch/internal/notify"
)

// progressPrinter renders batch events as terminal lines.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Notify(_ context.Context, ev notify.Event) error {
	switch ev.Kind {
	case notify.BatchStarted:
		fmt.Fprintf(p.w, "%s Publishing %d posts to %s\n", colorize(colorCyan, "→"), ev.Total, ev.Site)
	case notify.ItemSucceeded:
		fmt.Fprintf(p.w, "%s %s\n", colorize(colorGreen, "✓"), ev.Title)
	case notify.ItemFailed:
		fmt.Fprintf(p.w, "%s %s: %s\n", colorize(colorRed, "✗"), ev.Title, ev.Error)
	case notify.Paused, notify.Resumed:
		fmt.Fprintf(p.w, "%s %s\n", colorize(colorYellow, "!"), ev.Text())
	case notify.BatchCompleted:
		fmt.Fprintf(p.w, "\n%s %d succeeded, %d failed\n", colorize(colorBold, "Done:"), ev.Succeeded, ev.Failed)
	}
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate and publish a batch in this process, without a server",
	Long: `Generate and publish a batch in this process, without a server.

Each line of the topics file is "title///keyword". Interrupting with Ctrl-C
stops after the current post; unprocessed items are left pending.

Examples:
  wpbatch run --file topics.txt
  wpbatch run --file topics.txt --status future --start 2025-03-01T09:00 --interval 120`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		topics, err := readTopics(file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		req := batchRequestFromFlags(cmd, topics)
		if err := req.Validate(); err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		c, err := buildComponents(cfg, logger, progressPrinter{w: os.Stdout})
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		done, err := c.batch.Start(ctx, req.Topics, req.Schedule(cfg.Batch.DefaultInterval))
		if err != nil {
			var ce *batch.ConfigError
			if errors.As(err, &ce) {
				return errors.New(ce.Msg)
			}
			return err
		}
		<-done

		snap := c.batch.Snapshot()
		if ctx.Err() != nil {
			printWarning("Interrupted with %d items pending", snap.Pending)
		}
		if snap.Failed > 0 {
			return fmt.Errorf("%d of %d posts failed", snap.Failed, snap.Total)
		}
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <title///keyword>",
	Short: "Generate one article with the active profile and print it as Markdown",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		c, err := buildComponents(cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer c.Close()

		p, err := c.profiles.Active()
		if err != nil {
			return err
		}
		keys := p.Config.Keys()
		if len(keys) == 0 {
			keys = cfg.FallbackKeys()
		}
		if len(keys) == 0 {
			return errors.New("no API keys: add them to the profile or set gemini.api_key")
		}

		printStep("Generating %q", line)
		article, err := c.gen.Generate(cmd.Context(), line, batch.OptionsFor(p.Config), credential.NewRotator(keys, 0, nil))
		if err != nil {
			return err
		}

		markdown, err := md.NewConverter("", true, nil).ConvertString(article.Content)
		if err != nil {
			return fmt.Errorf("converting to markdown: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n\n", article.Title)
		if article.Excerpt != "" {
			fmt.Fprintf(out, "> %s\n\n", article.Excerpt)
		}
		fmt.Fprintln(out, markdown)
		printAudit(out, audit.Audit(article.Content))
		return nil
	},
}

func printAudit(w io.Writer, r audit.Result) {
	verdict := colorize(colorGreen, "passed")
	if !r.Passed {
		verdict = colorize(colorRed, "failed")
	}
	fmt.Fprintf(w, "\n%s %s (%d headings, %d images, html valid: %t)\n",
		colorize(colorBold, "Audit:"), verdict, r.Headings, r.Images, r.HTMLValid)
	for _, link := range r.BrokenLinks {
		fmt.Fprintf(w, "  broken link: %s\n", link)
	}
}

func init() {
	addScheduleFlags(runCmd)
}

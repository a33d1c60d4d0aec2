package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalambet/wpbatch/internal/api"
	"github.com/kalambet/wpbatch/internal/batch"
	"github.com/kalambet/wpbatch/internal/config"
	"github.com/kalambet/wpbatch/internal/profile"
	"github.com/kalambet/wpbatch/internal/storage"
	"github.com/kalambet/wpbatch/internal/wordpress"
)

// readTopics returns the topic lines from path, or from stdin when path is
// "-" or empty.
func readTopics(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading topics file: %w", err)
	}
	return string(data), nil
}

// batchRequestFromFlags builds a batch request from the shared schedule
// flags. A negative interval means "use the server default".
func batchRequestFromFlags(cmd *cobra.Command, topics string) api.BatchRequest {
	status, _ := cmd.Flags().GetString("status")
	start, _ := cmd.Flags().GetString("start")
	interval, _ := cmd.Flags().GetInt("interval")
	req := api.BatchRequest{Topics: topics, Status: status, StartTime: start}
	if interval >= 0 {
		req.IntervalMinutes = &interval
	}
	return req
}

func addScheduleFlags(cmd *cobra.Command) {
	cmd.Flags().String("file", "", "topics file, one title///keyword per line (default: stdin)")
	cmd.Flags().String("status", "", "draft, publish or future (default: profile setting)")
	cmd.Flags().String("start", "", "first publish time, YYYY-MM-DDTHH:MM or RFC3339")
	cmd.Flags().Int("interval", -1, "minutes between scheduled posts (default: configured)")
}

func queueSummary(s batch.Snapshot) string {
	state := "idle"
	switch {
	case s.Running && s.Paused:
		state = "paused"
	case s.Running:
		state = "running"
	}
	out := fmt.Sprintf("%s, %d total, %d pending, %d completed, %d failed", state, s.Total, s.Pending, s.Completed, s.Failed)
	if s.Current != "" {
		out += ", now: " + s.Current
	}
	return out
}

func printQueue(w io.Writer, s batch.Snapshot) {
	fmt.Fprintln(w, colorize(colorBold, "Queue: ")+queueSummary(s))
	if s.Stats != nil {
		fmt.Fprintf(w, "Site: %d drafts, %d scheduled, %d published\n", s.Stats.Draft, s.Stats.Future, s.Stats.Publish)
	}
	for _, it := range s.Items {
		status := colorize(statusColor(string(it.Status)), fmt.Sprintf("%-10s", it.Status))
		line := fmt.Sprintf("%3d  %s  %s", it.Index, status, truncate(it.Topic.Title, 60))
		if it.ScheduledAt != nil {
			line += "  " + colorize(colorCyan, it.ScheduledAt.Format("2006-01-02 15:04"))
		}
		if it.Result != nil && it.Result.Link != "" {
			line += "  " + it.Result.Link
		}
		fmt.Fprintln(w, line)
		if it.Error != "" {
			fmt.Fprintf(w, "     %s\n", colorize(colorRed, truncate(it.Error, 100)))
		}
	}
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Control the batch queue of a running server",
}

var batchSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Replace the queue with new topics and start it",
	Long: `Replace the queue with new topics and start it.

Examples:
  wpbatch batch submit --file topics.txt --status future --start 2025-03-01T09:00 --interval 60
  printf 'Best budget laptops///budget laptop\n' | wpbatch batch submit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		topics, err := readTopics(file, cmd.InOrStdin())
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/batch", batchRequestFromFlags(cmd, topics))
		if err != nil {
			return err
		}
		var result struct {
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Started batch of %d posts", result.Total)
		return nil
	},
}

var batchQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/queue")
		if err != nil {
			return err
		}
		var snap batch.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		printQueue(os.Stdout, snap)
		return nil
	},
}

func toggleCmd(use, path, done, unchanged string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: strings.ToUpper(use[:1]) + use[1:] + " the batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), path, nil)
			if err != nil {
				return err
			}
			var result struct {
				Changed bool `json:"changed"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			if result.Changed {
				printSuccess("%s", done)
			} else {
				printWarning("%s", unchanged)
			}
			return nil
		},
	}
}

var batchRetryCmd = &cobra.Command{
	Use:   "retry <index>",
	Short: "Retry one failed item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return fmt.Errorf("index must be a non-negative integer, got %q", args[0])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/queue/%d/retry", idx), nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Retrying item %d", idx)
		return nil
	},
}

var batchCommandCmd = &cobra.Command{
	Use:   "command <pause|resume|status>",
	Short: "Queue a remote command for the server's command poller",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/commands", api.CommandRequest{Command: args[0]})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Queued %s (%s)", result["command"], result["id"])
		return nil
	},
}

func init() {
	addScheduleFlags(batchSubmitCmd)
	batchCmd.AddCommand(batchSubmitCmd)
	batchCmd.AddCommand(batchQueueCmd)
	batchCmd.AddCommand(toggleCmd("pause", "/pause", "Batch paused", "Batch was already paused"))
	batchCmd.AddCommand(toggleCmd("resume", "/resume", "Batch resumed", "Batch was not paused"))
	batchCmd.AddCommand(batchRetryCmd)
	batchCmd.AddCommand(batchCommandCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage site profiles",
}

// findProfile resolves ref as a profile id, an id prefix, or a
// case-insensitive name.
func findProfile(profiles []profile.SiteProfile, ref string) (profile.SiteProfile, error) {
	ref = strings.TrimSpace(ref)
	var matches []profile.SiteProfile
	for _, p := range profiles {
		if p.ID == ref {
			return p, nil
		}
		if strings.HasPrefix(p.ID, ref) || strings.EqualFold(p.Name, ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return profile.SiteProfile{}, fmt.Errorf("no profile matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return profile.SiteProfile{}, fmt.Errorf("%q matches %d profiles; use the id", ref, len(matches))
	}
}

func fetchSettings(ctx context.Context, client *apiClient) (profile.Settings, error) {
	resp, err := client.get(ctx, "/profiles")
	if err != nil {
		return profile.Settings{}, err
	}
	var s profile.Settings
	err = decodeJSON(resp, &s)
	return s, err
}

func printProfiles(w io.Writer, s profile.Settings) {
	if len(s.Profiles) == 0 {
		fmt.Fprintln(w, "No site profiles.")
		return
	}
	for _, p := range s.Profiles {
		marker := " "
		if p.ID == s.CurrentProfileID {
			marker = colorize(colorGreen, "*")
		}
		fmt.Fprintf(w, "%s %s  %-24s %s  %d keys  used %s\n",
			marker,
			colorize(colorCyan, p.ID[:min(8, len(p.ID))]),
			truncate(p.Name, 24),
			p.Config.SiteURL,
			len(p.Config.Keys()),
			when(p.LastUsedAt),
		)
	}
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List site profiles (* marks the active one)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		s, err := fetchSettings(cmd.Context(), client)
		if err != nil {
			return err
		}
		printProfiles(os.Stdout, s)
		return nil
	},
}

// profileFromFlags builds a profile from the add flags.
func profileFromFlags(cmd *cobra.Command) profile.SiteProfile {
	str := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	keys, _ := cmd.Flags().GetStringSlice("keys")
	aiImage, _ := cmd.Flags().GetBool("ai-image")
	interval, _ := cmd.Flags().GetInt("interval")
	return profile.SiteProfile{
		ID:   str("id"),
		Name: str("name"),
		Config: profile.SiteConfig{
			SiteURL:           str("url"),
			Username:          str("user"),
			AppPassword:       str("password"),
			APIKeys:           keys,
			CustomInstruction: str("instruction"),
			AdCode1:           str("ad1"),
			AdCode2:           str("ad2"),
			DefaultCategoryID: str("category"),
			EnableAIImage:     aiImage,
			DefaultStatus:     str("status"),
			PublishInterval:   interval,
			StartTime:         str("start"),
		},
	}
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a site profile, or update one with --id",
	Long: `Create a site profile, or update one with --id.

Examples:
  wpbatch profile add --name "My blog" --url myblog.com --user admin --password "abcd efgh ijkl" --keys KEY1,KEY2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := profileFromFlags(cmd)
		if p.Config.SiteURL == "" {
			return fmt.Errorf("--url is required")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/profiles", p)
		if err != nil {
			return err
		}
		var saved profile.SiteProfile
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}
		printSuccess("Saved profile %s (%s)", saved.Name, saved.ID)
		return nil
	},
}

func profileRefCmd(use, short, verb string, act func(ctx context.Context, client *apiClient, p profile.SiteProfile) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			s, err := fetchSettings(cmd.Context(), client)
			if err != nil {
				return err
			}
			p, err := findProfile(s.Profiles, args[0])
			if err != nil {
				return err
			}
			if err := act(cmd.Context(), client, p); err != nil {
				return err
			}
			printSuccess("%s profile %s", verb, p.Name)
			return nil
		},
	}
}

var profileUseCmd = profileRefCmd("use", "Make a profile the active one", "Switched to",
	func(ctx context.Context, client *apiClient, p profile.SiteProfile) error {
		resp, err := client.post(ctx, "/profiles/"+url.PathEscape(p.ID)+"/activate", nil)
		if err != nil {
			return err
		}
		return decodeJSON(resp, nil)
	})

var profileDeleteCmd = profileRefCmd("delete", "Delete a profile", "Deleted",
	func(ctx context.Context, client *apiClient, p profile.SiteProfile) error {
		resp, err := client.delete(ctx, "/profiles/"+url.PathEscape(p.ID))
		if err != nil {
			return err
		}
		return decodeJSON(resp, nil)
	})

// openLocalProfiles opens the profile store directly, for commands that
// exchange files with the local disk.
func openLocalProfiles() (*profile.Manager, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return profile.NewManager(store), func() { store.Close() }, nil
}

var profileExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all profiles as YAML (includes credentials)",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		mgr, closeStore, err := openLocalProfiles()
		if err != nil {
			return err
		}
		defer closeStore()

		w := io.Writer(os.Stdout)
		if output != "" {
			f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := mgr.Export(w); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Profiles exported to %s", output)
		}
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import profiles from a YAML export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		mgr, closeStore, err := openLocalProfiles()
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := mgr.Import(f)
		if err != nil {
			return err
		}
		printSuccess("Imported %d profiles", n)
		printStep("A running server picks up imported profiles within a minute")
		return nil
	},
}

func addProfileFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("id", "", "id of an existing profile to update")
	f.String("name", "", "display name (default: site host)")
	f.String("url", "", "site address")
	f.String("user", "", "WordPress username")
	f.String("password", "", "WordPress application password")
	f.StringSlice("keys", nil, "generation API keys, comma-separated")
	f.String("instruction", "", "custom instruction appended to the writing prompt")
	f.String("ad1", "", "ad code inserted after the intro")
	f.String("ad2", "", "ad code inserted at the end")
	f.String("category", "", "default category id")
	f.Bool("ai-image", false, "add a generated companion image")
	f.String("status", "", "default post status")
	f.Int("interval", 0, "default minutes between scheduled posts")
	f.String("start", "", "default start time")
}

var profileMigrateCmd = &cobra.Command{
	Use:   "migrate <settings.json>",
	Short: "Create the first profile from a single-site JSON settings file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var legacy profile.SiteConfig
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		mgr, closeStore, err := openLocalProfiles()
		if err != nil {
			return err
		}
		defer closeStore()

		migrated, err := mgr.MigrateLegacy(legacy)
		if err != nil {
			return err
		}
		if !migrated {
			printWarning("Nothing migrated: profiles already exist or the file has no site_url")
			return nil
		}
		printSuccess("Created a profile for %s", legacy.SiteURL)
		return nil
	},
}

func init() {
	addProfileFlags(profileAddCmd)
	profileExportCmd.Flags().String("output", "", "output file path (default: stdout)")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileExportCmd)
	profileCmd.AddCommand(profileImportCmd)
	profileCmd.AddCommand(profileMigrateCmd)
}

// --- site ---

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Inspect the active WordPress site",
}

var siteTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the active profile's credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/site/test")
		if err != nil {
			return err
		}
		var result struct {
			User wordpress.User `json:"user"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Connected as %s (%s)", result.User.Name, result.User.Slug)
		return nil
	},
}

var siteStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count drafts, scheduled and published posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/site/stats")
		if err != nil {
			return err
		}
		var stats wordpress.Stats
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}
		printStatus("Drafts", "%s", humanize.Comma(int64(stats.Draft)))
		printStatus("Scheduled", "%s", humanize.Comma(int64(stats.Future)))
		printStatus("Published", "%s", humanize.Comma(int64(stats.Publish)))
		return nil
	},
}

func printRecent(w io.Writer, posts []wordpress.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "No posts.")
		return
	}
	for _, p := range posts {
		date := "-"
		if !p.Date.IsZero() {
			date = p.Date.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%6d  %s  %s  %s\n",
			p.ID,
			colorize(statusColor(p.Status), fmt.Sprintf("%-7s", p.Status)),
			date,
			truncate(p.Title, 70),
		)
	}
}

var siteRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the latest posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/site/recent")
		if err != nil {
			return err
		}
		var posts []wordpress.Post
		if err := decodeJSON(resp, &posts); err != nil {
			return err
		}
		printRecent(os.Stdout, posts)
		return nil
	},
}

func init() {
	siteCmd.AddCommand(siteTestCmd)
	siteCmd.AddCommand(siteStatsCmd)
	siteCmd.AddCommand(siteRecentCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the local publish log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}
		var entries []struct {
			Title     string `json:"title"`
			Status    string `json:"status"`
			RemoteID  int    `json:"remote_id"`
			Error     string `json:"error"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history.")
			return nil
		}
		for _, e := range entries {
			detail := fmt.Sprintf("#%d", e.RemoteID)
			if e.Error != "" {
				detail = truncate(e.Error, 60)
			}
			fmt.Printf("%s  %s  %s  %s\n",
				e.CreatedAt,
				colorize(statusColor(e.Status), fmt.Sprintf("%-9s", e.Status)),
				truncate(e.Title, 50),
				detail,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store gemini.api_key or telegram.bot_token in the secrets file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

// Package main provides the entry point for the narrate CLI application.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/readwell/narrate/audio"
	"github.com/readwell/narrate/document"
	"github.com/readwell/narrate/narrate"
	"github.com/readwell/narrate/narrate/cache"
	"github.com/readwell/narrate/narrate/engine"
	"github.com/readwell/narrate/narrate/quota"
	"github.com/readwell/narrate/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	voiceFlag  string
	rateFlag   float64
	printOnly  bool
	width      uint

	scope = gap.NewScope(gap.User, "narrate")

	rootCmd = &cobra.Command{
		Use:   "narrate [FILE]",
		Short: "Read long-form content aloud, right from your terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead documents aloud %s, with word-by-word highlighting and adaptive voice selection.", keyword("in your terminal")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(cmd)
		},
		RunE: execute,
	}
)

// keyword renders a string with the accent color.
func keyword(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Render(s)
}

// paragraph wraps help text the way the rest of the output is styled.
func paragraph(s string) string {
	return lipgloss.NewStyle().Width(78).Padding(0, 0, 1, 2).Render(strings.TrimSpace(s))
}

func bindFlags(cmd *cobra.Command) error {
	if cmd.Flags().Changed("voice") {
		viper.Set("voice", voiceFlag)
	}
	if cmd.Flags().Changed("rate") {
		viper.Set("rate", rateFlag)
	}
	return nil
}

// loadDocument reads a document from the argument, or stdin for "-".
// A .json extension selects the structured loader; anything else is parsed
// as markdown.
func loadDocument(arg string) (*document.Document, error) {
	var r io.Reader = os.Stdin
	name := arg
	if arg != "-" {
		f, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("unable to open file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	if filepath.Ext(name) == ".json" {
		return document.DecodeJSON(r)
	}
	return document.DecodeMarkdown(r)
}

// stdinIsPipe reports whether content was piped in.
func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	arg := "-"
	switch {
	case len(args) == 1:
		arg = args[0]
	default:
		piped, err := stdinIsPipe()
		if err != nil {
			return err
		}
		if !piped {
			return cmd.Help()
		}
	}

	doc, err := loadDocument(arg)
	if err != nil {
		return err
	}

	if printOnly {
		return printDocument(doc, os.Stdout)
	}
	return runReader(doc)
}

// printDocument renders the document to the terminal without narration.
func printDocument(doc *document.Document, w io.Writer) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(int(width)), //nolint:gosec
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}

	out, err := r.Render(documentMarkdown(doc))
	if err != nil {
		return fmt.Errorf("unable to render document: %w", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}

// documentMarkdown flattens the structured document back into markdown for
// rendering.
func documentMarkdown(doc *document.Document) string {
	var b strings.Builder
	if doc.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	}
	for _, p := range doc.Introduction {
		b.WriteString(p + "\n\n")
	}
	for _, lp := range doc.LearningPoints {
		b.WriteString("- " + lp + "\n")
	}
	if len(doc.LearningPoints) > 0 {
		b.WriteString("\n")
	}
	var writeSection func(sec document.Section, level int)
	writeSection = func(sec document.Section, level int) {
		fmt.Fprintf(&b, "%s %s\n\n", strings.Repeat("#", level), sec.Heading)
		if sec.Body != "" {
			b.WriteString(sec.Body + "\n\n")
		}
		for _, item := range sec.Items {
			b.WriteString(item + "\n\n")
		}
		for _, sub := range sec.Subsections {
			writeSection(sub, level+1)
		}
	}
	for _, sec := range doc.Sections {
		writeSection(sec, 2)
	}
	return b.String()
}

// runReader wires the playback stack and runs the bubbletea reader.
func runReader(doc *document.Document) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	device, err := audio.NewOutput()
	if err != nil {
		return fmt.Errorf("unable to open audio output: %w", err)
	}

	disk, err := cache.NewDisk(cfg.CacheDir, int64(cfg.CacheMB)*1024*1024)
	if err != nil {
		return fmt.Errorf("unable to open synthesis cache: %w", err)
	}

	quotaPath, err := scope.DataPath("quota.json")
	if err != nil {
		return fmt.Errorf("unable to resolve data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(quotaPath), 0o755); err != nil {
		return fmt.Errorf("unable to create data dir: %w", err)
	}
	tracker := quota.NewTracker(quota.NewFileStore(quotaPath), quota.WithLimit(cfg.QuotaLimit))

	remote := engine.NewRemote(cfg.Endpoint, device,
		engine.WithDiskCache(disk),
		engine.WithRemoteLogger(log.Default()),
	)
	local := engine.NewLocal(device,
		engine.WithPitch(cfg.Pitch),
		engine.WithLocalLogger(log.Default()),
	)
	if !local.Available() {
		log.Warn("on-device synthesizer not found; network failures will stop playback")
	}

	ctrl := narrate.NewController(remote, local, tracker,
		narrate.WithSettings(cfg.Voice, cfg.Rate),
		narrate.WithLogger(log.Default()),
	)
	defer ctrl.Close() //nolint:errcheck

	// Config file edits take effect mid-session.
	viper.OnConfigChange(func(fsnotify.Event) {
		ctrl.SetVoice(viper.GetString("voice"))
		ctrl.SetRate(viper.GetFloat64("rate"))
	})
	viper.WatchConfig()

	p := tea.NewProgram(ui.NewModel(doc, ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run reader: %w", err)
	}

	persistSettings(ctrl.Snapshot())
	return nil
}

// persistSettings writes the session's final voice and rate back to the
// config file so the next run picks them up.
func persistSettings(snap narrate.SnapshotMsg) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.Set("voice", snap.Voice)
	viper.Set("rate", snap.Rate)
	if err := viper.WriteConfig(); err != nil {
		log.Debug("could not persist settings", "error", err)
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&voiceFlag, "voice", "v", "", "voice to narrate with (\"local\" for on-device synthesis)")
	rootCmd.Flags().Float64VarP(&rateFlag, "rate", "r", 0, "playback rate, 0.5 to 2.0")
	rootCmd.Flags().BoolVarP(&printOnly, "print", "p", false, "render the document and exit without narrating")
	rootCmd.Flags().UintVarP(&width, "width", "w", 80, "word-wrap at width when printing")

	viper.SetDefault("voice", narrate.DefaultVoice)
	viper.SetDefault("rate", narrate.DefaultRate)
	viper.SetDefault("quota.limit", quota.DefaultLimit)
	viper.SetDefault("cache.max_size", 256)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find the configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "narrate")}, dirs...)
	}

	if c := os.Getenv("NARRATE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("narrate")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("narrate")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "narrate.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

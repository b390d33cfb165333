// Package main provides the entry point for the prank-deck CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/OmniDock/od-prank-deck/internal/config"
	"github.com/OmniDock/od-prank-deck/internal/scenario"
	"github.com/OmniDock/od-prank-deck/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	conferenceID string
	voiceName    string
	style        string
	width        uint
	mouse        bool
	debug        bool

	rootCmd = &cobra.Command{
		Use:   "prankdeck SCENARIO_ID",
		Short: "Drive prank-call playback from your terminal",
		Long: paragraph(fmt.Sprintf(
			"\nPreview, generate and fire prank-call voice lines, %s.",
			keyword("with a live visualizer"))),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	debug = viper.GetBool("debug")

	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTerminal && !cmd.Flags().Changed("style") {
		style = "notty"
	}

	// Word-wrap at the terminal width unless one was given explicitly.
	if !cmd.Flags().Changed("width") {
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}
			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

// validateStyle checks if the style is a built-in glamour style, if not,
// checks that the custom style file exists.
func validateStyle(style string) error {
	if style != "auto" && styles.DefaultStyles[style] == nil {
		expanded, err := homedir.Expand(style)
		if err != nil {
			expanded = style
		}
		if _, err := os.Stat(expanded); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func execute(_ *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("scenario ID must be a number, got %q", args[0])
	}
	return runTUI(scenario.ScenarioID(id))
}

func runTUI(scenarioID scenario.ScenarioID) error {
	fileCfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fileCfg.BaseURL == "" {
		return errors.New("no backend configured: set base_url in the config file or PRANKDECK_BASE_URL")
	}

	// Environment catches the remaining debugging knobs.
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.BaseURL = fileCfg.BaseURL
	cfg.Token = fileCfg.Token
	cfg.WSURL = wsURL(fileCfg.BaseURL)
	cfg.ScenarioID = scenarioID
	cfg.ConferenceID = conferenceID
	cfg.Voice = scenario.VoiceID(fileCfg.Voice)
	cfg.CacheDir = fileCfg.CacheDir
	cfg.CacheMemMB = fileCfg.CacheMemMB
	cfg.CacheDiskMB = fileCfg.CacheDiskMB
	cfg.CacheTTLDays = fileCfg.CacheTTLDays
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse
	cfg.RequestsPerMinute = fileCfg.RequestsPerMinute
	if cfg.GlamourStyle == "" {
		cfg.GlamourStyle = style
	}
	if err := validateStyle(cfg.GlamourStyle); err != nil {
		cfg.GlamourStyle = style
	}
	if debug {
		cfg.Debug = true
	}

	// Pick up config edits while the deck is open. Only the log level takes
	// effect without a restart.
	stopWatch, err := config.Watch(viper.GetViper(), func(c config.Config) {
		if c.Debug {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
		log.Info("configuration reloaded, restart to apply connection changes")
	})
	if err != nil {
		log.Debug("config watch unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	p, err := ui.NewProgram(cfg)
	if err != nil {
		return err
	}
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// wsURL derives the websocket endpoint from the backend base URL.
func wsURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/")
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
	rootCmd.Flags().StringVarP(&conferenceID, "conference", "C", "", "conference to relay call playback into")
	rootCmd.Flags().StringVarP(&voiceName, "voice", "V", "default", "voice whose renderings are previewed")
	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "script style name or JSON path")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap the script at width (set to 0 to auto-detect)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "verbose logging")

	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))

	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := config.Dirs()
	if err != nil {
		fmt.Println("Could not find the configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("prankdeck")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("prankdeck")
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

	configFile = filepath.Join(dirs[0], "prankdeck.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

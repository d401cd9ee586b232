package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/Seednode/quizmatch/games/memory/content"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const maxPairs = 50

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	topic           string
	pairs           int
	mismatchDelay   time.Duration
	showcaseOnMatch bool

	geminiKey    string
	geminiModel  string
	quizzes      bool
	deck         string
	deckDir      string
	cache        string
	cacheTTL     time.Duration
	generateRate time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.pairs < 1 || c.pairs > maxPairs {
		return fmt.Errorf("invalid pair count (must be between 1-%d inclusive): %d", maxPairs, c.pairs)
	}
	if c.mismatchDelay <= 0 {
		return fmt.Errorf("invalid mismatch delay (must be positive): %s", c.mismatchDelay)
	}
	if c.cacheTTL < 0 || c.generateRate < 0 {
		return errors.New("--cache-ttl and --generate-rate must not be negative")
	}
	if strings.TrimSpace(c.topic) == "" {
		return errors.New("--topic must not be empty")
	}
	if c.geminiKey == "" && c.deck == "" {
		return errors.New("no content source: provide --gemini-key or --deck")
	}
	if c.cache != "" && c.geminiKey == "" {
		return errors.New("--cache requires --gemini-key")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizmatch",
		Short:         "A memory matching quiz game for one table, generated on any topic.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.geminiKey == "" {
				cfg.geminiKey = os.Getenv("GEMINI_API_KEY")
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZMATCH_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZMATCH_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZMATCH_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZMATCH_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: QUIZMATCH_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZMATCH_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZMATCH_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZMATCH_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZMATCH_VERSION)")

	fs.StringVarP(&cfg.topic, "topic", "t", "Marxism-Leninism", "default topic for generated cards (env: QUIZMATCH_TOPIC)")
	fs.IntVar(&cfg.pairs, "pairs", 8, "question/answer pairs per board (env: QUIZMATCH_PAIRS)")
	fs.DurationVar(&cfg.mismatchDelay, "mismatch-delay", memory.DefaultMismatchDelay, "time a mismatched pair stays face up (env: QUIZMATCH_MISMATCH_DELAY)")
	fs.BoolVar(&cfg.showcaseOnMatch, "showcase-on-match", false, "open the quiz as soon as a pair with a quiz is matched (env: QUIZMATCH_SHOWCASE_ON_MATCH)")

	fs.StringVar(&cfg.geminiKey, "gemini-key", "", "Gemini API key, falls back to GEMINI_API_KEY (env: QUIZMATCH_GEMINI_KEY)")
	fs.StringVar(&cfg.geminiModel, "gemini-model", content.DefaultModel, "Gemini model name (env: QUIZMATCH_GEMINI_MODEL)")
	fs.BoolVar(&cfg.quizzes, "quizzes", true, "ask Gemini for a quiz on every pair (env: QUIZMATCH_QUIZZES)")
	fs.StringVar(&cfg.deck, "deck", "", "local directory or git URL of .md decks, used when Gemini is unavailable (env: QUIZMATCH_DECK)")
	fs.StringVar(&cfg.deckDir, "deck-dir", "decks", "directory git decks are cloned into (env: QUIZMATCH_DECK_DIR)")
	fs.StringVar(&cfg.cache, "cache", "", "path to SQLite cache of generated cards (env: QUIZMATCH_CACHE)")
	fs.DurationVar(&cfg.cacheTTL, "cache-ttl", 24*time.Hour, "time before cached cards expire, 0 to keep forever (env: QUIZMATCH_CACHE_TTL)")
	fs.DurationVar(&cfg.generateRate, "generate-rate", 5*time.Second, "minimum interval between Gemini requests, 0 to disable (env: QUIZMATCH_GENERATE_RATE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizmatch v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

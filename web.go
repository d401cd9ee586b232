package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/quizmatch/games/memory"
	"github.com/Seednode/quizmatch/games/memory/content"
	"github.com/julienschmidt/httprouter"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data: https:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("quizmatch v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func isGitURL(s string) bool {
	return strings.Contains(s, "://") || (strings.Contains(s, "@") && strings.Contains(s, ":"))
}

// newContentSource assembles the card source chain: Gemini behind the rate
// limit and cache, falling back to the deck. On success the returned func
// releases whatever the chain opened.
func newContentSource(ctx context.Context, cfg *Config) (memory.ContentSource, func(), error) {
	var (
		sources []memory.ContentSource
		closers []func() error
	)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	contentLog := func(format string, args ...any) {
		logf(cfg, "CONTENT: "+format, args...)
	}

	if cfg.geminiKey != "" {
		g, err := content.NewGemini(ctx, content.GeminiOptions{
			APIKey:  cfg.geminiKey,
			Model:   cfg.geminiModel,
			Quizzes: cfg.quizzes,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, g.Close)

		var src memory.ContentSource = g
		if cfg.generateRate > 0 {
			src = content.NewLimited(src, cfg.generateRate, 2)
		}
		if cfg.cache != "" {
			c, err := content.OpenCache(cfg.cache, src, cfg.cacheTTL, contentLog)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			closers = append(closers, c.Close)
			src = c
		}

		sources = append(sources, src)
		logf(cfg, "CONTENT: Using Gemini model %s", cfg.geminiModel)
	}

	switch {
	case cfg.deck == "":
	case isGitURL(cfg.deck):
		g, err := content.NewGitDeck(cfg.deck, cfg.deckDir, contentLog)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := g.Sync(ctx); err != nil {
			contentLog("initial sync of %s failed, will retry on first game: %v", cfg.deck, err)
		}
		sources = append(sources, g)
	default:
		d, err := content.LoadDeck(cfg.deck, contentLog)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sources = append(sources, d)
	}

	if len(sources) == 0 {
		return nil, nil, errors.New("no content source configured")
	}
	if len(sources) == 1 {
		return sources[0], cleanup, nil
	}

	return content.NewFallback(contentLog, sources...), cleanup, nil
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: quizmatch v%s", releaseVersion)

	source, closeSource, err := newContentSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up content source: %w", err)
	}
	defer closeSource()

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logf(cfg, "ERROR: Panic serving %s to %s: %v", r.URL.Path, realIP(r), i)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage(cfg, "Server Error", "An error has occurred. Please try again."))
	}

	errs := make(chan error, 64)
	go watchErrors(ctx, cfg, errs)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, errs))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	rm := registerMemoryGame(cfg, "/play", source, mux, errs)
	defer rm.closeAll()

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}

// Command famousjsons runs the Famous JSONs backend and its offline tools.
//
// Usage:
//
//	famousjsons serve    [-config famousjsons.yaml]     # HTTP API + refresh scheduler
//	famousjsons refresh  [-config famousjsons.yaml]     # one refresh, print the state
//	famousjsons state    [-config ...] [-summary]       # print the cached state
//	famousjsons mosaic   -image in.png -text-file t.json [-paths] [-o out.svg]
//	famousjsons metadata -collection public -out metadata
//	famousjsons watch    -url https://api.famousjsons.com [-update]
//
// Environment overrides: PORT, LISTEN, RPC_URL, CONTRACT_ADDRESS, STATE_DB,
// COLLECTION_DIR, SITE_URL, FONT_PATH, LOG_RANGE, TRUST_PROXY, LOG_LEVEL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/famousjsons/chain"
	"github.com/hazyhaar/famousjsons/gallery"
	"github.com/hazyhaar/famousjsons/kit"
	"github.com/hazyhaar/famousjsons/mosaic"
	"github.com/hazyhaar/famousjsons/projectstate"
	"github.com/hazyhaar/famousjsons/stateclient"
	"github.com/hazyhaar/famousjsons/svgpath"
	"github.com/hazyhaar/famousjsons/typeface"
)

const usage = "usage: famousjsons serve|refresh|state|mosaic|metadata|watch [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, logger, args)
	case "refresh":
		err = runRefresh(ctx, logger, args)
	case "state":
		err = runState(ctx, logger, args)
	case "mosaic":
		err = runMosaic(args)
	case "metadata":
		err = runMetadata(args)
	case "watch":
		err = runWatch(ctx, logger, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("famousjsons: "+cmd, "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to famousjsons.yaml")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	contract, svc, err := openState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	face, err := loadFace(cfg.FontPath)
	if err != nil {
		return err
	}

	g, err := gallery.Load(os.DirFS(cfg.CollectionDir))
	if err != nil {
		logger.Warn("famousjsons: no collection, gallery endpoints disabled", "dir", cfg.CollectionDir, "error", err)
		g = nil
	} else {
		logger.Info("famousjsons: collection loaded", "dir", cfg.CollectionDir, "items", g.Len())
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "famousjsons",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(mcpSrv)

	a := newAPI(cfg, svc.Updater(), contract, g, face, logger)
	a.mcp = mcpSrv
	a.limiter.StartGC(ctx, 5*time.Minute)

	svc.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// confirmMint holds the request open while the receipt is polled.
		WriteTimeout: cfg.ReceiptInterval*time.Duration(cfg.ReceiptAttempts) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Listen, "contract", contract.Address().Hex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func runRefresh(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", "", "path to famousjsons.yaml")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	_, svc, err := openState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	st, err := svc.Updater().Refresh(kit.WithTransport(ctx, "cli"))
	if err != nil {
		return err
	}
	return printJSON(st)
}

func runState(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	configPath := fs.String("config", "", "path to famousjsons.yaml")
	summary := fs.Bool("summary", false, "include price and countdown strings")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	_, svc, err := openState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	st, err := svc.Updater().Current(kit.WithTransport(ctx, "cli"))
	if err != nil {
		return err
	}
	if *summary {
		return printJSON(st.Summarize())
	}
	return printJSON(st)
}

func runMosaic(args []string) error {
	fs := flag.NewFlagSet("mosaic", flag.ExitOnError)
	imagePath := fs.String("image", "", "source image (png, jpeg, gif, webp, bmp)")
	text := fs.String("text", "", "text to paint with")
	textFile := fs.String("text-file", "", "read the text from a file (e.g. a collection JSON)")
	background := fs.String("background", "none", "none, white or black")
	paths := fs.Bool("paths", false, "convert glyphs to outlined paths")
	fontPath := fs.String("font", env("FONT_PATH", ""), "TTF/OTF font (default: embedded Go Regular)")
	out := fs.String("o", "", "output file (default stdout)")
	fs.Parse(args)

	if *imagePath == "" {
		return errors.New("-image is required")
	}
	if *textFile != "" {
		data, err := os.ReadFile(*textFile)
		if err != nil {
			return err
		}
		*text = string(data)
	}
	bg, err := mosaic.ParseBackground(*background)
	if err != nil {
		return err
	}
	face, err := loadFace(*fontPath)
	if err != nil {
		return err
	}

	f, err := os.Open(*imagePath)
	if err != nil {
		return err
	}
	defer f.Close()
	img, err := mosaic.LoadImage(f)
	if err != nil {
		return err
	}

	doc, err := mosaic.Encode(img, *text, bg, face)
	if err != nil {
		return err
	}
	svg := doc.SVG()
	if *paths {
		svg, err = svgpath.Convert(doc.Markup(), svgpath.Dimensions{Width: doc.Width, Height: doc.Height}, face)
		if err != nil {
			return err
		}
	}

	if *out == "" {
		_, err = os.Stdout.WriteString(svg)
		return err
	}
	return os.WriteFile(*out, []byte(svg), 0o644)
}

func runMetadata(args []string) error {
	fs := flag.NewFlagSet("metadata", flag.ExitOnError)
	collection := fs.String("collection", env("COLLECTION_DIR", "public"), "directory holding jsons.txt")
	outDir := fs.String("out", "metadata", "output directory")
	site := fs.String("site", env("SITE_URL", gallery.DefaultSiteURL), "public site URL")
	fs.Parse(args)

	names, err := gallery.LoadManifest(os.DirFS(*collection), gallery.ManifestFile)
	if err != nil {
		return err
	}
	if err := gallery.WriteMetadata(*outDir, names, *site); err != nil {
		return err
	}
	slog.Info("metadata written", "dir", *outDir, "count", len(names))
	return nil
}

// runWatch follows a running server's state and prints a summary line on
// every change, the way the site header does.
func runWatch(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	baseURL := fs.String("url", env("API_URL", "http://localhost:8080"), "famousjsons API base URL")
	interval := fs.Duration("interval", 5*time.Minute, "poll interval")
	update := fs.Bool("update", false, "ask the server to refresh first")
	fs.Parse(args)

	c := stateclient.New(*baseURL, stateclient.WithLogger(logger), stateclient.WithPollInterval(*interval))
	unsubscribe := c.Subscribe(func(st projectstate.State) {
		sum := st.Summarize()
		fmt.Printf("block %d  price %s  minted %d  next discount %s  free %s\n",
			st.CurrentBlock, sum.PriceEth, len(st.TokenIDsMinted), sum.NextDiscount, sum.FreeAfter)
	})
	defer unsubscribe()

	if *update {
		if _, err := c.Update(ctx); err != nil {
			return err
		}
	}
	c.Run(ctx)
	return nil
}

// openState dials the contract and opens the state service over it.
func openState(ctx context.Context, cfg *appConfig, logger *slog.Logger) (*chain.Contract, *projectstate.Service, error) {
	if cfg.RPCURL == "" {
		return nil, nil, errors.New("RPC_URL (or rpc_url) is required")
	}
	contract, err := chain.Dial(ctx, cfg.RPCURL, cfg.ContractAddress, chain.WithLogRange(cfg.LogRange))
	if err != nil {
		return nil, nil, err
	}
	svc, err := projectstate.Open(&cfg.State, contract, logger)
	if err != nil {
		return nil, nil, err
	}
	return contract, svc, nil
}

func loadFace(path string) (*typeface.Face, error) {
	if path == "" {
		return typeface.Default()
	}
	return typeface.Load(path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

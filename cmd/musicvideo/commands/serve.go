package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Fato07/runway-music-video-generator/internal/server"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generation API, image proxy and results",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Int("rate-limit-per-minute", 60, "Requests per minute per client IP on /api (0 disables)")

	viper.BindPFlag("listen-addr", serveCmd.Flags().Lookup("listen-addr"))
	viper.BindPFlag("rate-limit-per-minute", serveCmd.Flags().Lookup("rate-limit-per-minute"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ImageProxyURL = cfg.ServerProxyURL()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	router := server.NewRouter(server.Deps{
		Store:              a.store,
		Generator:          a.runner,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv := server.NewHTTPServer(cfg.ListenAddr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr()).Str("results_dir", a.store.Dir()).Msg("http_server_started")
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("http_server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

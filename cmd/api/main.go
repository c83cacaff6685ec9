package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/jhoicas/medstock-rfid/internal/domain/rfid"
	"github.com/jhoicas/medstock-rfid/internal/infrastructure/postgres"
	"github.com/jhoicas/medstock-rfid/internal/interfaces/feed"
	httpRouter "github.com/jhoicas/medstock-rfid/internal/interfaces/http"
	"github.com/jhoicas/medstock-rfid/pkg/config"
	"github.com/jhoicas/medstock-rfid/pkg/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "medstock",
		Short:         "Servicio de resolución de stock por lectura RFID",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(normalizeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Inicia la API HTTP (y el feed TCP si RFID_FEED_ADDR está definido)",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			feedStdin, _ := cmd.Flags().GetBool("feed-stdin")
			return runServer(migrate, feedStdin)
		},
	}
	cmd.Flags().Bool("migrate", false, "Aplicar migraciones pendientes antes de iniciar")
	cmd.Flags().Bool("feed-stdin", false, "Leer lecturas NDJSON también desde stdin")
	return cmd
}

func runServer(migrate, feedStdin bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cargar configuración: %w", err)
	}
	log := newLogger(cfg)
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.App.StoreDriver).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg, log, migrate)
	if err != nil {
		return err
	}
	defer deps.Close()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(httpRouter.RequestLogger(log.Component("http")))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "MedStock RFID API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "store": cfg.App.StoreDriver})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Stock:   deps.Stock,
		Matcher: deps.Matcher,
		Scan:    deps.Router,
	})

	reader := feed.NewReader(deps.Router, "", log.Component("feed"))
	var feedSrv *feed.Server
	if cfg.RFID.FeedAddr != "" {
		feedSrv = feed.NewServer(cfg.RFID.FeedAddr, reader, log.Component("feed"))
		if err := feedSrv.Start(ctx); err != nil {
			return err
		}
	}
	if feedStdin {
		go func() {
			if err := reader.Consume(ctx, os.Stdin, os.Stdout); err != nil {
				log.Warn().Err(err).Msg("feed stdin finalizado")
			}
		}()
	}

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if feedSrv != nil {
		if err := feedSrv.Stop(); err != nil {
			log.Warn().Err(err).Msg("cerrar feed TCP")
		}
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migraciones de base de datos",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Aplicar migraciones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := context.Background()
			pool, err := postgres.NewPool(ctx, cfg.DB, log.Component("postgres"))
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := migrateUp(ctx, cfg, pool, log)
			if err != nil {
				return fmt.Errorf("migración fallida: %w", err)
			}
			fmt.Printf("%d migración(es) aplicada(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Mostrar el estado de las migraciones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := context.Background()
			pool, err := postgres.NewPool(ctx, cfg.DB, log.Component("postgres"))
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := postgres.NewMigrator(pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("estado de migraciones: %w", err)
			}
			fmt.Printf("%-8s %-32s %-10s %s\n", "VERSION", "NOMBRE", "ESTADO", "APLICADA")
			for _, s := range statuses {
				status, at := "pendiente", ""
				if s.Applied {
					status = "aplicada"
					if s.AppliedAt != nil {
						at = s.AppliedAt.Format(time.DateTime)
					}
				}
				fmt.Printf("%-8d %-32s %-10s %s\n", s.Version, s.Name, status, at)
			}
			return nil
		},
	})
	return cmd
}

func feedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Procesa lecturas NDJSON desde stdin y escribe un ack por línea",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := wire(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			reader := feed.NewReader(deps.Router, session, log.Component("feed"))
			return reader.Consume(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("session", "", "Sesión por defecto para las líneas sin session_id")
	return cmd
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [uid...]",
		Short: "Normaliza UIDs (argumentos o stdin, uno por línea) al formato canónico",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			raws := args
			if len(raws) == 0 {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					raws = append(raws, sc.Text())
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			normalized, invalid := rfid.NewNormalizer(cfg.RFID.TagWidth).NormalizeAll(raws)
			keys := make([]string, 0, len(normalized))
			for k := range normalized {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "%s\t%s\n", k, normalized[k])
			}
			for _, raw := range invalid {
				fmt.Fprintf(cmd.ErrOrStderr(), "inválido: %q\n", raw)
			}
			return nil
		},
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
}

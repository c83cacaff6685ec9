package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/scan"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
	"github.com/jhoicas/medstock-rfid/internal/domain/rfid"
	"github.com/jhoicas/medstock-rfid/internal/infrastructure/memory"
	"github.com/jhoicas/medstock-rfid/internal/infrastructure/postgres"
	infraredis "github.com/jhoicas/medstock-rfid/internal/infrastructure/redis"
	"github.com/jhoicas/medstock-rfid/pkg/config"
	"github.com/jhoicas/medstock-rfid/pkg/logger"
)

// deps casos de uso construidos para serve y feed.
type deps struct {
	Stock   *stock.Service
	Matcher *dispensing.Matcher
	Router  *scan.Router
	closers []func()
}

// Close libera conexiones en orden inverso.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

type stores struct {
	tx            stock.TxRunner
	batches       repository.BatchRepository
	ledger        repository.StockLedgerRepository
	products      repository.ProductRepository
	areas         repository.AreaRepository
	prescriptions repository.PrescriptionRepository
}

// wire arma el almacenamiento (STORE_DRIVER), Redis opcional y los casos de uso.
func wire(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) (*deps, error) {
	d := &deps{}
	var st stores

	switch cfg.App.StoreDriver {
	case "memory":
		store := memory.NewStore()
		st = stores{store, store.Batches(), store.Ledger(), store.Products(), store.Areas(), store.Prescriptions()}
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB, log.Component("postgres"))
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		if migrate {
			n, err := migrateUp(ctx, cfg, pool, log)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("migraciones: %w", err)
			}
			log.Info().Int("applied", n).Msg("migraciones aplicadas")
		}
		st = stores{
			tx:            postgres.NewTxRunner(pool),
			batches:       postgres.NewBatchRepository(pool),
			ledger:        postgres.NewStockLedgerRepository(pool),
			products:      postgres.NewProductRepository(pool),
			areas:         postgres.NewAreaRepository(pool),
			prescriptions: postgres.NewPrescriptionRepository(pool),
		}
	}

	var (
		publisher stock.EventPublisher
		debouncer scan.Debouncer
	)
	if cfg.Redis.Enabled() {
		rdb, err := infraredis.Connect(ctx, cfg.Redis, log.Component("redis"))
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = rdb.Close() })
		publisher = infraredis.NewPublisher(rdb, cfg.Events.Channel, log.Component("events"))
		debouncer = infraredis.NewDebouncer(rdb, "")
	}

	stockSvc := stock.NewService(
		st.tx, st.batches, st.ledger, st.products, st.areas,
		publisher,
		rfid.NewNormalizer(cfg.RFID.TagWidth),
		stock.Options{
			MaxRetries:             cfg.RFID.ConsumeMaxRetries,
			DefaultRemovalQuantity: cfg.RFID.DefaultRemovalQuantity,
			DefaultEntryQuantity:   cfg.RFID.DefaultEntryQuantity,
		},
		log.Component("stock"),
	)
	matcher := dispensing.NewMatcher(st.tx, stockSvc, st.prescriptions, nil, log.Component("dispensing"))
	coord := scan.NewCoordinator(scan.NewRegistry(), stockSvc, matcher, scan.Config{
		BindingTimeout: cfg.RFID.BindingTimeout,
		ContextTimeout: cfg.RFID.ContextTimeout,
		DebounceWindow: cfg.RFID.DebounceWindow,
	}, log.Component("scan"))

	d.Stock = stockSvc
	d.Matcher = matcher
	d.Router = scan.NewRouter(coord, debouncer, log.Component("scan"))
	return d, nil
}

// migrateUp aplica las migraciones; con Redis configurado las serializa entre réplicas.
func migrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) (int, error) {
	migrator := postgres.NewMigrator(pool)
	if !cfg.Redis.Enabled() {
		return migrator.Up(ctx)
	}
	rdb, err := infraredis.Connect(ctx, cfg.Redis, log.Component("redis"))
	if err != nil {
		return 0, err
	}
	defer rdb.Close()

	var count int
	err = infraredis.WithLock(ctx, infraredis.NewLocker(rdb), infraredis.MigrationLockKey,
		2*time.Minute, time.Minute, log.Component("redis"), func(ctx context.Context) error {
			n, err := migrator.Up(ctx)
			count = n
			return err
		})
	return count, err
}

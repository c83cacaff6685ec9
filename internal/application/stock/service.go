package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/inventory"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
	"github.com/jhoicas/medstock-rfid/internal/domain/rfid"
)

// Options parámetros del servicio de stock.
type Options struct {
	MaxRetries             int
	DefaultRemovalQuantity int64
	DefaultEntryQuantity   int64
	Now                    func() time.Time
}

// Service registra movimientos de stock por lote de forma transaccional: salidas FIFO,
// entradas, ajustes manuales y asignación de tags. También expone las consultas
// que usan el catálogo, los reportes y las alertas.
type Service struct {
	txRunner    TxRunner
	batchRepo   repository.BatchRepository
	ledgerRepo  repository.StockLedgerRepository
	productRepo repository.ProductRepository
	areaRepo    repository.AreaRepository
	publisher   EventPublisher
	normalizer  rfid.Normalizer
	resolver    *Resolver
	engine      *Engine
	ledger      *LedgerWriter
	opts        Options
	log         zerolog.Logger
}

// NewService construye el caso de uso.
func NewService(
	txRunner TxRunner,
	batchRepo repository.BatchRepository,
	ledgerRepo repository.StockLedgerRepository,
	productRepo repository.ProductRepository,
	areaRepo repository.AreaRepository,
	publisher EventPublisher,
	normalizer rfid.Normalizer,
	opts Options,
	log zerolog.Logger,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultRemovalQuantity <= 0 {
		opts.DefaultRemovalQuantity = 1
	}
	if opts.DefaultEntryQuantity <= 0 {
		opts.DefaultEntryQuantity = 1
	}
	if publisher == nil {
		publisher = NewLogPublisher(log)
	}
	ledger := NewLedgerWriter(opts.Now)
	return &Service{
		txRunner:    txRunner,
		batchRepo:   batchRepo,
		ledgerRepo:  ledgerRepo,
		productRepo: productRepo,
		areaRepo:    areaRepo,
		publisher:   publisher,
		normalizer:  normalizer,
		resolver:    NewResolver(batchRepo),
		engine:      NewEngine(ledger, opts.MaxRetries),
		ledger:      ledger,
		opts:        opts,
		log:         log,
	}
}

// Engine expone el motor FIFO para los casos de uso que comparten la transacción (dispensación).
func (s *Service) Engine() *Engine { return s.engine }

// Resolver expone el resolvedor de lotes.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Normalizer expone el normalizador configurado.
func (s *Service) Normalizer() rfid.Normalizer { return s.normalizer }

// DefaultRemovalQuantity cantidad por lectura de una salida genérica.
func (s *Service) DefaultRemovalQuantity() int64 { return s.opts.DefaultRemovalQuantity }

// RemovalInput salida genérica hacia un área.
type RemovalInput struct {
	UID       string // ya normalizado
	ProductID string // opcional: filtra los lotes del tag
	AreaID    string
	Quantity  int64 // 0 = cantidad por defecto
	SessionID string
	Note      string
}

// Remove consume FIFO los lotes del tag y confirma lo asignado aunque haya faltante.
// Con faltante devuelve el resultado y *domain.InsufficientStockError.
func (s *Service) Remove(ctx context.Context, in RemovalInput) (*Consumption, error) {
	if in.UID == "" && in.ProductID == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.AreaID == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.Quantity == 0 {
		in.Quantity = s.opts.DefaultRemovalQuantity
	}
	if in.Quantity < 0 {
		return nil, domain.ErrInvalidInput
	}
	area, err := s.areaRepo.GetByID(ctx, in.AreaID)
	if err != nil {
		return nil, err
	}
	if area == nil {
		return nil, domain.ErrNotFound
	}

	note := in.Note
	if note == "" {
		note = "salida hacia " + area.Name
	}
	req := ConsumeRequest{
		Query:        CandidateQuery{UID: in.UID, ProductID: in.ProductID},
		Quantity:     in.Quantity,
		AreaID:       area.ID,
		Note:         note,
		Reference:    in.SessionID,
		AllowPartial: true,
	}

	var result *Consumption
	err = s.txRunner.Run(ctx, func(
		batchRepo repository.BatchRepository,
		ledgerRepo repository.StockLedgerRepository,
		_ repository.ProductRepository,
		_ repository.PrescriptionRepository,
	) error {
		var err error
		result, err = s.engine.Consume(ctx, batchRepo, ledgerRepo, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("uid", in.UID).
		Str("area_id", area.ID).
		Int64("requested", result.Requested).
		Int64("allocated", result.Allocated()).
		Int64("shortfall", result.Shortfall).
		Msg("salida registrada")

	s.PublishChanges(ctx, result.ProductIDs())
	if shortErr := result.ShortfallError(req.Query); shortErr != nil {
		s.PublishInsufficient(ctx, in.ProductID, in.UID, result.Requested, result.Shortfall)
		return result, shortErr
	}
	return result, nil
}

// InboundInput entrada de mercancía: crea un lote o repone uno existente (mismo producto y lote).
type InboundInput struct {
	ProductID  string
	LotNumber  string
	ExpiryDate time.Time
	Quantity   int64
	UnitCost   *decimal.Decimal
	TagUID     string // crudo; se normaliza
	Note       string
}

// Inbound registra la entrada, recalcula el costo promedio ponderado y agrega el asiento "inbound".
func (s *Service) Inbound(ctx context.Context, in InboundInput) (*entity.Batch, error) {
	if in.ProductID == "" || in.LotNumber == "" || in.Quantity <= 0 {
		return nil, domain.ErrInvalidInput
	}
	if in.UnitCost != nil && in.UnitCost.LessThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	var tag *string
	if in.TagUID != "" {
		uid, err := s.normalizer.Normalize(in.TagUID)
		if err != nil {
			return nil, err
		}
		tag = &uid
	}
	product, err := s.productRepo.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}

	now := s.opts.Now()
	note := in.Note
	if note == "" {
		note = "entrada lote " + in.LotNumber
	}

	var out *entity.Batch
	err = s.txRunner.Run(ctx, func(
		batchRepo repository.BatchRepository,
		ledgerRepo repository.StockLedgerRepository,
		productRepo repository.ProductRepository,
		_ repository.PrescriptionRepository,
	) error {
		if in.UnitCost != nil {
			current, err := batchRepo.SumByProduct(ctx, in.ProductID)
			if err != nil {
				return err
			}
			newCost := inventory.CostCalculator(current, product.AverageCost, in.Quantity, *in.UnitCost)
			if err := productRepo.UpdateCost(ctx, in.ProductID, newCost); err != nil {
				return err
			}
		}

		existing, err := batchRepo.FindByLot(ctx, in.ProductID, in.LotNumber)
		if err != nil {
			return err
		}
		var previous, newQty int64
		if existing != nil {
			newQty, err = batchRepo.Increment(ctx, existing.ID, in.Quantity)
			if err != nil {
				return err
			}
			previous = newQty - in.Quantity
			if tag != nil && !existing.HasTag() {
				if err := batchRepo.SetTagUID(ctx, existing.ID, *tag); err != nil {
					return err
				}
				existing.TagUID = tag
			}
			existing.Quantity = newQty
			out = existing
		} else {
			if in.ExpiryDate.IsZero() {
				return domain.ErrInvalidInput
			}
			unitCost := decimal.Zero
			if in.UnitCost != nil {
				unitCost = *in.UnitCost
			}
			out = &entity.Batch{
				ID:         uuid.New().String(),
				ProductID:  in.ProductID,
				LotNumber:  in.LotNumber,
				ExpiryDate: in.ExpiryDate,
				Quantity:   in.Quantity,
				EntryDate:  now,
				TagUID:     tag,
				UnitCost:   unitCost,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := batchRepo.Create(ctx, out); err != nil {
				return err
			}
			newQty = in.Quantity
		}
		return s.ledger.Append(ctx, ledgerRepo, &entity.StockLedgerEntry{
			ProductID:        in.ProductID,
			BatchID:          out.ID,
			PreviousQuantity: previous,
			NewQuantity:      newQty,
			Kind:             entity.LedgerKindInbound,
			Note:             note,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("batch_id", out.ID).Str("product_id", in.ProductID).Int64("quantity", in.Quantity).Msg("entrada registrada")
	s.PublishChanges(ctx, []string{in.ProductID})
	return out, nil
}

// TopUpByTag entrada por lectura RFID: repone el lote del tag con la fecha de entrada más reciente.
func (s *Service) TopUpByTag(ctx context.Context, uid string, quantity int64, sessionID string) (*entity.Batch, error) {
	if uid == "" {
		return nil, domain.ErrInvalidInput
	}
	if quantity == 0 {
		quantity = s.opts.DefaultEntryQuantity
	}
	if quantity < 0 {
		return nil, domain.ErrInvalidInput
	}

	var out *entity.Batch
	err := s.txRunner.Run(ctx, func(
		batchRepo repository.BatchRepository,
		ledgerRepo repository.StockLedgerRepository,
		_ repository.ProductRepository,
		_ repository.PrescriptionRepository,
	) error {
		batches, err := batchRepo.ListByTagUID(ctx, uid)
		if err != nil {
			return err
		}
		target := latestEntry(batches)
		if target == nil {
			return domain.ErrNoMatchingBatch
		}
		newQty, err := batchRepo.Increment(ctx, target.ID, quantity)
		if err != nil {
			return err
		}
		target.Quantity = newQty
		out = target
		return s.ledger.Append(ctx, ledgerRepo, &entity.StockLedgerEntry{
			ProductID:        target.ProductID,
			BatchID:          target.ID,
			PreviousQuantity: newQty - quantity,
			NewQuantity:      newQty,
			Kind:             entity.LedgerKindInbound,
			Note:             "entrada por lectura RFID",
			Reference:        sessionID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.PublishChanges(ctx, []string{out.ProductID})
	return out, nil
}

func latestEntry(batches []*entity.Batch) *entity.Batch {
	var best *entity.Batch
	for _, b := range batches {
		if best == nil || b.EntryDate.After(best.EntryDate) ||
			(b.EntryDate.Equal(best.EntryDate) && b.ID > best.ID) {
			best = b
		}
	}
	return best
}

// Adjust fija la cantidad de un lote (corrección del operador, sin FIFO).
// Bloquea la fila (SELECT FOR UPDATE) y registra el delta en el libro.
func (s *Service) Adjust(ctx context.Context, batchID string, quantity int64, note string) (*entity.Batch, error) {
	if batchID == "" || quantity < 0 {
		return nil, domain.ErrInvalidInput
	}
	if note == "" {
		note = "ajuste manual"
	}
	var out *entity.Batch
	err := s.txRunner.Run(ctx, func(
		batchRepo repository.BatchRepository,
		ledgerRepo repository.StockLedgerRepository,
		_ repository.ProductRepository,
		_ repository.PrescriptionRepository,
	) error {
		batch, err := batchRepo.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if batch == nil {
			return domain.ErrNotFound
		}
		previous := batch.Quantity
		out = batch
		if previous == quantity {
			return nil
		}
		if err := batchRepo.SetQuantity(ctx, batchID, quantity); err != nil {
			return err
		}
		batch.Quantity = quantity
		kind := entity.LedgerKindInbound
		if quantity < previous {
			kind = entity.LedgerKindConsume
		}
		return s.ledger.Append(ctx, ledgerRepo, &entity.StockLedgerEntry{
			ProductID:        batch.ProductID,
			BatchID:          batch.ID,
			PreviousQuantity: previous,
			NewQuantity:      quantity,
			Kind:             kind,
			Note:             note,
		})
	})
	if err != nil {
		return nil, err
	}
	s.PublishChanges(ctx, []string{out.ProductID})
	return out, nil
}

// BindTag asigna el UID (crudo o normalizado) al lote. Es una actualización directa de campo,
// no un asiento del libro.
func (s *Service) BindTag(ctx context.Context, batchID, rawUID string) (*entity.Batch, error) {
	uid, err := s.normalizer.Normalize(rawUID)
	if err != nil {
		return nil, err
	}
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.batchRepo.SetTagUID(ctx, batchID, uid); err != nil {
		return nil, fmt.Errorf("asignar tag: %w", err)
	}
	batch.TagUID = &uid
	s.log.Info().Str("batch_id", batchID).Str("uid", uid).Msg("tag asignado al lote")
	return batch, nil
}

// PublishChanges emite stock.changed (y stock.low bajo el mínimo) por producto afectado.
// Los errores de publicación no afectan la mutación ya confirmada.
func (s *Service) PublishChanges(ctx context.Context, productIDs []string) {
	now := s.opts.Now()
	for _, pid := range productIDs {
		total, err := s.batchRepo.SumByProduct(ctx, pid)
		if err != nil {
			s.log.Warn().Err(err).Str("product_id", pid).Msg("calcular stock total")
			continue
		}
		s.publish(ctx, Event{Type: EventStockChanged, ProductID: pid, Total: total, At: now})

		product, err := s.productRepo.GetByID(ctx, pid)
		if err != nil || product == nil {
			continue
		}
		if product.MinimumStock > 0 && total < product.MinimumStock {
			s.publish(ctx, Event{Type: EventLowStock, ProductID: pid, Total: total, Minimum: product.MinimumStock, At: now})
		}
	}
}

// PublishInsufficient emite la advertencia de stock insuficiente.
func (s *Service) PublishInsufficient(ctx context.Context, productID, uid string, requested, shortfall int64) {
	s.publish(ctx, Event{
		Type:      EventInsufficientStock,
		ProductID: productID,
		UID:       uid,
		Requested: requested,
		Shortfall: shortfall,
		At:        s.opts.Now(),
	})
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("publicar evento de stock")
	}
}

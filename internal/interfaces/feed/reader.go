// Package feed recibe las lecturas del puente de hardware como JSON delimitado por
// saltos de línea (stdin o TCP) y las entrega al enrutador de lecturas.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/medstock-rfid/internal/application/scan"
	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// MaxLine tamaño máximo de una línea del feed. Las más largas se descartan con un Ack de error.
const MaxLine = 64 * 1024

// EventHandler procesa una lectura. Lo implementa *scan.Router.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev entity.TagEvent) (*scan.Result, error)
}

// Line una lectura tal como la envía el puente.
type Line struct {
	UID       string `json:"uid"`
	Action    string `json:"action"`
	AreaID    string `json:"area_id,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Ack respuesta por línea (una por cada lectura recibida, en el mismo orden).
type Ack struct {
	Line      int    `json:"line"`
	Outcome   string `json:"outcome,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UID       string `json:"uid,omitempty"`
	Allocated int64  `json:"allocated,omitempty"`
	Shortfall int64  `json:"shortfall,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Decode convierte una línea NDJSON en un TagEvent. La acción se normaliza a minúsculas.
// Los campos extra del puente (marca de tiempo del lector, antena...) se ignoran.
func Decode(raw []byte, now time.Time) (entity.TagEvent, error) {
	var l Line
	if err := json.Unmarshal(raw, &l); err != nil {
		return entity.TagEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if strings.TrimSpace(l.UID) == "" {
		return entity.TagEvent{}, domain.ErrMalformedTag
	}
	return entity.TagEvent{
		SessionID:  strings.TrimSpace(l.SessionID),
		UID:        l.UID,
		Action:     strings.ToLower(strings.TrimSpace(l.Action)),
		AreaID:     strings.TrimSpace(l.AreaID),
		Quantity:   l.Quantity,
		ReceivedAt: now,
	}, nil
}

// Reader consume un flujo NDJSON.
type Reader struct {
	handler        EventHandler
	defaultSession string
	now            func() time.Time
	log            zerolog.Logger
}

// NewReader construye el lector. defaultSession se usa cuando la línea no trae session_id.
func NewReader(handler EventHandler, defaultSession string, log zerolog.Logger) *Reader {
	if defaultSession == "" {
		defaultSession = scan.DefaultSession
	}
	return &Reader{handler: handler, defaultSession: defaultSession, now: time.Now, log: log}
}

// Consume procesa r línea por línea hasta EOF o hasta que ctx se cancele.
// Una línea inválida, demasiado larga o un error de negocio no detiene el flujo;
// si w no es nil se escribe un Ack por línea.
func (r *Reader) Consume(ctx context.Context, in io.Reader, w io.Writer) error {
	br := bufio.NewReaderSize(in, 4096)
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}

	var buf []byte
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, size, err := readLine(br, buf[:0])
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("leer feed: %w", err)
		}
		buf = raw
		n++

		var ack Ack
		if size > MaxLine {
			r.log.Warn().Int("line", n).Int("bytes", size).Msg("línea de feed demasiado larga, se descarta")
			ack = Ack{Line: n, Error: fmt.Errorf("%w: línea de %d bytes supera el máximo de %d", domain.ErrInvalidInput, size, MaxLine).Error()}
		} else {
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}
			ack = r.process(ctx, n, line)
		}
		if enc != nil {
			if err := enc.Encode(ack); err != nil {
				return fmt.Errorf("escribir ack: %w", err)
			}
		}
	}
}

// readLine lee una línea completa sobre buf y devuelve su tamaño total. Pasado MaxLine
// deja de acumular pero sigue leyendo hasta el salto de línea. io.EOF solo sin datos pendientes.
func readLine(br *bufio.Reader, buf []byte) ([]byte, int, error) {
	size := 0
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && size > 0 {
				return buf, size, nil
			}
			return buf, size, err
		}
		size += len(frag)
		if size <= MaxLine {
			buf = append(buf, frag...)
		}
		if !isPrefix {
			return buf, size, nil
		}
	}
}

func (r *Reader) process(ctx context.Context, n int, line []byte) Ack {
	ack := Ack{Line: n}
	ev, err := Decode(line, r.now())
	if err != nil {
		r.log.Warn().Err(err).Int("line", n).Msg("línea de feed inválida")
		ack.Error = err.Error()
		return ack
	}
	if ev.SessionID == "" {
		ev.SessionID = r.defaultSession
	}
	ack.SessionID = ev.SessionID

	res, err := r.handler.HandleEvent(ctx, ev)
	if res != nil {
		ack.Outcome = string(res.Outcome)
		ack.UID = res.UID
		if res.Consumption != nil {
			ack.Allocated = res.Consumption.Allocated()
			ack.Shortfall = res.Consumption.Shortfall
		}
	}
	if err != nil {
		var ise *domain.InsufficientStockError
		if errors.As(err, &ise) {
			ack.Shortfall = ise.Shortfall
		}
		r.log.Warn().Err(err).Int("line", n).Str("session", ev.SessionID).Msg("lectura rechazada")
		ack.Error = err.Error()
		return ack
	}
	r.log.Debug().Int("line", n).Str("session", ev.SessionID).Str("outcome", ack.Outcome).Msg("lectura procesada")
	return ack
}

package feed_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/medstock-rfid/internal/application/scan"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/interfaces/feed"
)

type fakeHandler struct {
	mu     sync.Mutex
	events []entity.TagEvent
}

func (f *fakeHandler) HandleEvent(_ context.Context, ev entity.TagEvent) (*scan.Result, error) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	switch ev.UID {
	case "0000000":
		return nil, domain.ErrNoMatchingBatch
	case "9999999":
		c := &stock.Consumption{Requested: 5, Shortfall: 2, Allocations: []stock.BatchAllocation{{BatchID: "A", Quantity: 3}}}
		return &scan.Result{Outcome: scan.OutcomeRemoved, SessionID: ev.SessionID, UID: ev.UID, Consumption: c},
			&domain.InsufficientStockError{Requested: 5, Allocated: 3, Shortfall: 2}
	}
	return &scan.Result{Outcome: scan.OutcomeRemoved, SessionID: ev.SessionID, UID: ev.UID}, nil
}

func (f *fakeHandler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestDecode(t *testing.T) {
	now := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   string
		want entity.TagEvent
		err  error
	}{
		{"completa", `{"uid":"2090074","action":"EXIT","area_id":" ICU ","quantity":3,"session_id":"s1"}`,
			entity.TagEvent{SessionID: "s1", UID: "2090074", Action: "exit", AreaID: "ICU", Quantity: 3, ReceivedAt: now}, nil},
		{"minima", `{"uid":"12","action":"entry"}`,
			entity.TagEvent{UID: "12", Action: "entry", ReceivedAt: now}, nil},
		{"sin uid", `{"action":"exit"}`, entity.TagEvent{}, domain.ErrMalformedTag},
		{"json roto", `{"uid":`, entity.TagEvent{}, domain.ErrInvalidInput},
		{"campos extra del puente", `{"uid":"1","action":"exit","antenna":2,"read_at":"2024-11-01T00:00:00Z"}`,
			entity.TagEvent{UID: "1", Action: "exit", ReceivedAt: now}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := feed.Decode([]byte(tc.in), now)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConsume_AckPorLinea(t *testing.T) {
	h := &fakeHandler{}
	r := feed.NewReader(h, "puesto-1", zerolog.Nop())
	in := strings.Join([]string{
		`{"uid":"2090074","action":"exit","area_id":"ICU"}`,
		``,
		`no es json`,
		`{"uid":"0000000","action":"exit","session_id":"s2"}`,
		`{"uid":"9999999","action":"exit","area_id":"ICU","quantity":5}`,
	}, "\n")

	var out strings.Builder
	require.NoError(t, r.Consume(context.Background(), strings.NewReader(in), &out))

	var acks []feed.Ack
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var a feed.Ack
		require.NoError(t, json.Unmarshal(sc.Bytes(), &a))
		acks = append(acks, a)
	}
	require.Len(t, acks, 4)

	assert.Equal(t, 1, acks[0].Line)
	assert.Equal(t, "removed", acks[0].Outcome)
	assert.Equal(t, "puesto-1", acks[0].SessionID)

	assert.Equal(t, 3, acks[1].Line)
	assert.NotEmpty(t, acks[1].Error)

	assert.Equal(t, "s2", acks[2].SessionID)
	assert.Contains(t, acks[2].Error, domain.ErrNoMatchingBatch.Error())

	assert.Equal(t, "removed", acks[3].Outcome)
	assert.Equal(t, int64(3), acks[3].Allocated)
	assert.Equal(t, int64(2), acks[3].Shortfall)
	assert.NotEmpty(t, acks[3].Error)

	assert.Equal(t, 3, h.count())
}

func TestConsume_LineaDemasiadoLargaNoCortaElFlujo(t *testing.T) {
	h := &fakeHandler{}
	r := feed.NewReader(h, "", zerolog.Nop())
	long := `{"uid":"1111111","action":"exit","note":"` + strings.Repeat("x", 70*1024) + `"}`
	in := strings.Join([]string{
		`{"uid":"2090074","action":"exit","area_id":"ICU"}`,
		long,
		`{"uid":"3000001","action":"exit","area_id":"ICU"}`,
	}, "\n")

	var out strings.Builder
	require.NoError(t, r.Consume(context.Background(), strings.NewReader(in), &out))

	var acks []feed.Ack
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var a feed.Ack
		require.NoError(t, json.Unmarshal(sc.Bytes(), &a))
		acks = append(acks, a)
	}
	require.Len(t, acks, 3)
	assert.Equal(t, "removed", acks[0].Outcome)
	assert.Equal(t, 2, acks[1].Line)
	assert.Contains(t, acks[1].Error, domain.ErrInvalidInput.Error())
	assert.Equal(t, 3, acks[2].Line)
	assert.Equal(t, "removed", acks[2].Outcome)
	assert.Equal(t, "3000001", acks[2].UID)
	assert.Equal(t, 2, h.count())
}

func TestConsume_ContextoCancelado(t *testing.T) {
	h := &fakeHandler{}
	r := feed.NewReader(h, "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Consume(ctx, strings.NewReader(`{"uid":"1","action":"exit"}`+"\n"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.count())
}

func TestServer_TCP(t *testing.T) {
	h := &fakeHandler{}
	srv := feed.NewServer("127.0.0.1:0", feed.NewReader(h, "", zerolog.Nop()), zerolog.Nop())
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"uid":"2090074","action":"exit","area_id":"ICU"}` + "\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var ack feed.Ack
	require.NoError(t, json.Unmarshal(line, &ack))
	assert.Equal(t, "removed", ack.Outcome)
	assert.Equal(t, scan.DefaultSession, ack.SessionID)
	assert.Equal(t, 1, h.count())
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-bus/pkg/bus"
)

func newOrderCoordinator(t *testing.T, rec *recorder, a, b bus.Interceptor[order], consume func(ctx *bus.ConsumeContext[order]) error, opts ...Option) *Coordinator {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, AddInterceptor(r, orderSubmitted, a))
	require.NoError(t, AddInterceptor(r, orderSubmitted, b))
	require.NoError(t, AddConsumerFunc(r, orderSubmitted, "billing", func(ctx *bus.ConsumeContext[order]) error {
		rec.add("consume(%s)", ctx.Message.ID)
		return consume(ctx)
	}))
	return New(r, opts...)
}

func TestChain_SuccessOrder(t *testing.T) {
	rec := &recorder{}
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", false, false, false),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error { return nil },
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{"order_id":"ORD-1"}`, orderSubmitted), nil)

	require.True(t, out.Completed())
	assert.NoError(t, out.Fault)
	assert.Equal(t, []string{"A.Pre", "B.Pre", "consume(ORD-1)", "A.Post", "B.Post"}, rec.list())
	require.Len(t, out.Results, 1)
	assert.Equal(t, StatusCompleted, out.Results[0].Status)
	assert.Equal(t, "billing", out.Results[0].ConsumerType)
}

func TestChain_ConsumerFault(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", false, false, false),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error { return boom },
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{"order_id":"ORD-2"}`, orderSubmitted), nil)

	require.False(t, out.Completed())
	assert.ErrorIs(t, out.Fault, boom)
	assert.Equal(t, []string{"A.Pre", "B.Pre", "consume(ORD-2)", "A.Fault(boom)", "B.Fault(boom)"}, rec.list())

	var fe *FaultError
	require.ErrorAs(t, out.Fault, &fe)
	assert.Equal(t, PhaseDispatch, fe.Phase)
	assert.Equal(t, orderSubmitted, fe.MessageType)
	assert.Equal(t, "billing", fe.ConsumerType)
}

func TestChain_PreDispatchFailureSkipsConsumer(t *testing.T) {
	rec := &recorder{}
	consumed := false
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", true, false, false),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error {
			consumed = true
			return nil
		},
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{"order_id":"ORD-3"}`, orderSubmitted), nil)

	assert.False(t, out.Completed())
	assert.False(t, consumed)
	assert.Equal(t, []string{"A.Pre"}, rec.list())
	assert.Equal(t, PhasePreDispatch, out.Results[0].Phase)
	assert.EqualError(t, errors.Unwrap(out.Results[0].Fault), "A pre failed")
}

func TestChain_PostDispatchFailureIsNotFatal(t *testing.T) {
	rec := &recorder{}
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", false, true, false),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error { return nil },
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{"order_id":"ORD-4"}`, orderSubmitted), nil)

	assert.True(t, out.Completed())
	assert.Equal(t, []string{"A.Pre", "B.Pre", "consume(ORD-4)", "A.Post", "B.Post"}, rec.list())
	require.Len(t, out.SecondaryFaults(), 1)
	assert.EqualError(t, out.SecondaryFaults()[0], "A post failed")
}

func TestChain_FaultHandlerFailureKeepsOriginalFault(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", false, false, true),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error { return boom },
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{"order_id":"ORD-5"}`, orderSubmitted), nil)

	assert.False(t, out.Completed())
	assert.ErrorIs(t, out.Fault, boom)
	// B still sees the fault after A's handler failed
	assert.Equal(t, []string{"A.Pre", "B.Pre", "consume(ORD-5)", "A.Fault(boom)", "B.Fault(boom)"}, rec.list())
	require.Len(t, out.Results[0].FaultHandlerFaults, 1)
	assert.EqualError(t, out.Results[0].FaultHandlerFaults[0], "A fault handler failed")
}

func TestChain_PanicIsRecovered(t *testing.T) {
	rec := &recorder{}
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", false, false, false),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error { panic("nil map write") },
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{"order_id":"ORD-6"}`, orderSubmitted), nil)

	assert.False(t, out.Completed())
	var perr *PanicError
	require.ErrorAs(t, out.Fault, &perr)
	assert.Equal(t, "nil map write", perr.Value)
	assert.NotEmpty(t, perr.Stack)
	assert.Len(t, rec.list(), 5)
}

func TestChain_PanicWithErrorUnwraps(t *testing.T) {
	rec := &recorder{}
	errLedgerClosed := errors.New("ledger closed")
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", false, false, false),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error { panic(errLedgerClosed) },
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{"order_id":"ORD-7"}`, orderSubmitted), nil)

	assert.ErrorIs(t, out.Fault, errLedgerClosed)
	var perr *PanicError
	require.ErrorAs(t, out.Fault, &perr)
	assert.EqualError(t, perr, "panic: ledger closed")

	assert.NoError(t, (&PanicError{Value: "not an error"}).Unwrap())
}

func TestChain_DeserializeFailure(t *testing.T) {
	rec := &recorder{}
	c := newOrderCoordinator(t, rec,
		recordingInterceptor[order](rec, "A", false, false, false),
		recordingInterceptor[order](rec, "B", false, false, false),
		func(ctx *bus.ConsumeContext[order]) error { return nil },
	)

	out := c.Dispatch(context.Background(), jsonMessage(`{not json`, orderSubmitted), nil)

	assert.False(t, out.Completed())
	assert.ErrorIs(t, out.Fault, ErrDeserialize)
	assert.Equal(t, PhaseDeserialize, out.Results[0].Phase)
	assert.Empty(t, rec.list())
}

func TestDecode(t *testing.T) {
	envelope, err := bus.ParseContentType(bus.EnvelopeMediaType)
	require.NoError(t, err)
	plain, err := bus.ParseContentType("application/json")
	require.NoError(t, err)
	text, err := bus.ParseContentType("text/plain")
	require.NoError(t, err)

	body := []byte(`{"messageType":["urn:message:OrderSubmitted"],"message":{"order_id":"ORD-7"}}`)

	o, err := decode[order](envelope, body)
	require.NoError(t, err)
	assert.Equal(t, "ORD-7", o.ID)

	raw, err := decode[json.RawMessage](envelope, body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"order_id":"ORD-7"}`, string(raw))

	o, err = decode[order](plain, []byte(`{"order_id":"ORD-8"}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD-8", o.ID)

	b, err := decode[[]byte](text, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = decode[order](text, []byte("hello"))
	assert.ErrorIs(t, err, ErrDeserialize)
}

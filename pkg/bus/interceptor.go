package bus

// ConsumeContext is the receive context of a message together with its
// decoded payload, as seen by one consumer type.
type ConsumeContext[T any] struct {
	*ReceiveContext

	// MessageType is the message type the payload was decoded as.
	MessageType string

	// ConsumerType identifies the consumer the message is dispatched to.
	ConsumerType string

	// Message is the decoded payload.
	Message T
}

// Interceptor observes dispatch of one message type.
//
// For a single consumer type, hooks run sequentially in registration order.
// Implementations holding state must tolerate concurrent calls for different
// in-flight messages.
type Interceptor[T any] interface {
	// PreDispatch is called before the consumer. An error skips the consumer
	// and every remaining hook for that consumer type.
	PreDispatch(ctx *ConsumeContext[T]) error

	// PostDispatch is called after the consumer completed without fault.
	PostDispatch(ctx *ConsumeContext[T]) error

	// DispatchFaulted is called once after the consumer faulted.
	DispatchFaulted(ctx *ConsumeContext[T], fault error) error
}

// InterceptorFuncs adapts plain functions to Interceptor. Nil fields are no-ops:
//
//	dispatch.AddInterceptor(r, "urn:message:OrderSubmitted", bus.InterceptorFuncs[Order]{
//	    Pre: func(ctx *bus.ConsumeContext[Order]) error {
//	        span.Start(ctx.Context())
//	        return nil
//	    },
//	})
type InterceptorFuncs[T any] struct {
	Pre   func(ctx *ConsumeContext[T]) error
	Post  func(ctx *ConsumeContext[T]) error
	Fault func(ctx *ConsumeContext[T], fault error) error
}

// PreDispatch implements the Interceptor interface.
func (f InterceptorFuncs[T]) PreDispatch(ctx *ConsumeContext[T]) error {
	if f.Pre == nil {
		return nil
	}
	return f.Pre(ctx)
}

// PostDispatch implements the Interceptor interface.
func (f InterceptorFuncs[T]) PostDispatch(ctx *ConsumeContext[T]) error {
	if f.Post == nil {
		return nil
	}
	return f.Post(ctx)
}

// DispatchFaulted implements the Interceptor interface.
func (f InterceptorFuncs[T]) DispatchFaulted(ctx *ConsumeContext[T], fault error) error {
	if f.Fault == nil {
		return nil
	}
	return f.Fault(ctx, fault)
}

// Consumer handles messages of type T.
type Consumer[T any] interface {
	Consume(ctx *ConsumeContext[T]) error
}

// ConsumerFunc is a function adapter for Consumer.
type ConsumerFunc[T any] func(ctx *ConsumeContext[T]) error

// Consume implements the Consumer interface.
func (f ConsumerFunc[T]) Consume(ctx *ConsumeContext[T]) error {
	return f(ctx)
}

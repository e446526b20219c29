package bus

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"golang.org/x/text/encoding"
)

// NativeMessage is the broker-specific message handed to the bus by a transport.
type NativeMessage interface {
	// Body returns the raw message body.
	Body() []byte

	// Properties returns the native property bag.
	Properties() map[string]any
}

// HeaderProvider is implemented by native messages that supply their own
// header store instead of a plain property bag.
type HeaderProvider interface {
	Headers() Headers
}

// ReceiveContext is the transport-agnostic view of one delivered message.
//
// A ReceiveContext is created once per delivery and must not be reused for a
// redelivery. All methods are safe for concurrent use.
type ReceiveContext struct {
	msg          NativeMessage
	body         []byte
	inputAddress *url.URL
	started      time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	headersOnce sync.Once
	headers     Headers

	contentTypeOnce sync.Once
	contentType     *ContentType
	contentTypeErr  error

	encodingOnce sync.Once
	encoding     encoding.Encoding
	encodingErr  error
}

// NewReceiveContext builds the receive context for msg using msg.Body() as the body.
func NewReceiveContext(msg NativeMessage, inputAddress *url.URL) *ReceiveContext {
	return NewReceiveContextWithBody(msg, inputAddress, msg.Body())
}

// NewReceiveContextWithBody builds the receive context for msg with an explicit
// body. The body is copied; later changes to the argument are not observed.
func NewReceiveContextWithBody(msg NativeMessage, inputAddress *url.URL, body []byte) *ReceiveContext {
	started := time.Now()
	ctx, cancel := context.WithCancelCause(context.Background())
	return &ReceiveContext{
		msg:          msg,
		body:         bytes.Clone(body),
		inputAddress: inputAddress,
		started:      started,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Native returns the wrapped native message.
func (c *ReceiveContext) Native() NativeMessage {
	return c.msg
}

// Body returns a fresh reader over the message body. Readers share no position.
func (c *ReceiveContext) Body() io.ReadSeeker {
	return bytes.NewReader(c.body)
}

// BodyLen returns the body length in bytes.
func (c *ReceiveContext) BodyLen() int {
	return len(c.body)
}

// InputAddress returns the logical endpoint the message arrived on.
func (c *ReceiveContext) InputAddress() *url.URL {
	return c.inputAddress
}

// ElapsedTime returns the time since the bus took ownership of the message.
func (c *ReceiveContext) ElapsedTime() time.Duration {
	return time.Since(c.started)
}

// Context returns the cancellation signal owned by this receive context. It is
// not derived from any broker or caller deadline.
func (c *ReceiveContext) Context() context.Context {
	return c.ctx
}

// Cancel signals cancellation with the given cause. Only the dispatch
// coordinator is expected to call it.
func (c *ReceiveContext) Cancel(cause error) {
	c.cancel(cause)
}

// Err returns the cancellation cause, or nil if not cancelled.
func (c *ReceiveContext) Err() error {
	return context.Cause(c.ctx)
}

// Headers returns the header store, building it on first use.
func (c *ReceiveContext) Headers() Headers {
	c.headersOnce.Do(func() {
		if hp, ok := c.msg.(HeaderProvider); ok {
			c.headers = hp.Headers()
			return
		}
		c.headers = NewPropertyHeaders(c.msg.Properties())
	})
	return c.headers
}

// ContentType resolves the message content type. The result, error included,
// is computed once and cached.
func (c *ReceiveContext) ContentType() (*ContentType, error) {
	c.contentTypeOnce.Do(func() {
		c.contentType, c.contentTypeErr = resolveContentType(c.Headers())
	})
	return c.contentType, c.contentTypeErr
}

// ContentEncoding returns the character encoding named by the content type
// charset, UTF-8 when none is given.
func (c *ReceiveContext) ContentEncoding() (encoding.Encoding, error) {
	c.encodingOnce.Do(func() {
		ct, err := c.ContentType()
		if err != nil {
			c.encodingErr = err
			return
		}
		c.encoding, c.encodingErr = resolveEncoding(ct)
	})
	return c.encoding, c.encodingErr
}

// Transport returns the transport-specific extension, or false when the
// native message does not carry transport fields.
func (c *ReceiveContext) Transport() (*TransportContext, bool) {
	tm, ok := c.msg.(TransportMessage)
	if !ok {
		return nil, false
	}
	return &TransportContext{TransportMessage: tm}, true
}

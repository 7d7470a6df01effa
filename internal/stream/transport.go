package stream

// Handlers receives socket lifecycle callbacks. Callbacks for one socket
// never overlap. A close callback always follows an error callback.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(err error)
}

// Transport opens sockets. Open must return without invoking any handler;
// the open (or error and close) callbacks arrive later.
type Transport interface {
	Open(url string, h Handlers) Socket
}

// Socket is one duplex connection attempt.
type Socket interface {
	// Send writes one text frame. It fails if the socket is not open.
	Send(data []byte) error
	IsOpen() bool
	// Detach drops the handlers so no further callbacks are delivered.
	Detach()
	Close() error
}

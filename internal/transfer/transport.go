package transfer

// Transport is an open, reliable, ordered message channel to the peer.
type Transport interface {
	// SendText sends a UTF-8 control message.
	SendText(text string) error
	// Send sends a binary frame.
	Send(data []byte) error
	// BufferedAmount reports bytes queued but not yet handed to the network.
	BufferedAmount() uint64
	// Drained fires after the buffered amount falls to the low-water mark.
	Drained() <-chan struct{}
	// Done is closed once the transport is closed.
	Done() <-chan struct{}
}

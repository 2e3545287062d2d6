package core

// Client is a live connection as seen by the core layer. ID is minted by
// the transport; Identity is the authenticated username and never changes
// for the lifetime of the connection.
type Client struct {
	ID       string
	Identity string
	Commands chan *Command
	Events   chan *Event

	// done is closed by the hub when the connection is unregistered.
	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, identity string) *Client {
	return &Client{
		ID:       id,
		Identity: identity,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub has finished cleanup for this client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// send is only called from the hub goroutine, which also closes the
// channels, so the done check cannot race the close.
func (c *Client) send(ev *Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
	}
}

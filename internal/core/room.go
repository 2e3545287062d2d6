package core

// room is the fan-out subscription set for one room name. Membership is
// mutated only by the hub loop, in the same step as the registry's
// currentRoom field, so the two cannot disagree.
type room struct {
	name    string
	clients map[*Client]struct{}
}

func newRoom(name string) *room {
	return &room{
		name:    name,
		clients: make(map[*Client]struct{}),
	}
}

func (r *room) add(c *Client) {
	r.clients[c] = struct{}{}
}

func (r *room) remove(c *Client) {
	delete(r.clients, c)
}

func (r *room) has(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// broadcast sends an event to all clients subscribed to the room.
func (r *room) broadcast(ev *Event) {
	for client := range r.clients {
		client.send(ev)
	}
}

func (r *room) empty() bool {
	return len(r.clients) == 0
}

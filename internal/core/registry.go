package core

// ConnectionRecord tracks the identity and presence state of one live
// connection. The registry owns these records exclusively; other
// components refer to connections by ID only.
type ConnectionRecord struct {
	ConnID        string
	Identity      string
	CurrentRoom   string // empty means not in any room
	ActiveDMPeers map[string]struct{}
}

// Registry is the bidirectional map between live connection IDs and
// authenticated identities. It is owned and mutated only by the hub
// loop, so it needs no locking of its own.
type Registry struct {
	records  map[string]*ConnectionRecord // connID -> record
	identity map[string]string            // username -> connID
	order    []string                     // connIDs in registration order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records:  make(map[string]*ConnectionRecord),
		identity: make(map[string]string),
	}
}

// Register creates a record for the connection and indexes its identity.
// The identity index is last-write-wins; the hub evicts any previous
// session before registering a replacement, so in practice an identity
// never points at two live records.
func (r *Registry) Register(connID, identity string) *ConnectionRecord {
	rec := &ConnectionRecord{
		ConnID:        connID,
		Identity:      identity,
		ActiveDMPeers: make(map[string]struct{}),
	}
	r.records[connID] = rec
	r.identity[identity] = connID
	r.order = append(r.order, connID)
	return rec
}

// Unregister removes and returns the record for the connection, or nil
// if it was never registered or already removed. Idempotent.
func (r *Registry) Unregister(connID string) *ConnectionRecord {
	rec, ok := r.records[connID]
	if !ok {
		return nil
	}
	delete(r.records, connID)

	// Only drop the index entry if it still points at this connection;
	// a replacement session may already own it.
	if r.identity[rec.Identity] == connID {
		delete(r.identity, rec.Identity)
	}

	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return rec
}

// LookupByConnection returns the record for a connection, or nil.
func (r *Registry) LookupByConnection(connID string) *ConnectionRecord {
	return r.records[connID]
}

// LookupByIdentity returns the live connection ID for an identity, or
// empty string if the identity is offline.
func (r *Registry) LookupByIdentity(identity string) string {
	return r.identity[identity]
}

// SetRoom updates the connection's current room; empty clears it.
// No-op if the record is absent.
func (r *Registry) SetRoom(connID, roomName string) {
	if rec, ok := r.records[connID]; ok {
		rec.CurrentRoom = roomName
	}
}

// AddDMPeer records peerIdentity as an active DM peer of the
// connection. Idempotent; no-op if the record is absent.
func (r *Registry) AddDMPeer(connID, peerIdentity string) {
	if rec, ok := r.records[connID]; ok {
		rec.ActiveDMPeers[peerIdentity] = struct{}{}
	}
}

// MembersOfRoom returns the identities of connections currently in the
// room, in connection registration order. Derived by scanning the
// records; never stored separately.
func (r *Registry) MembersOfRoom(roomName string) []string {
	members := make([]string, 0)
	for _, connID := range r.order {
		if rec, ok := r.records[connID]; ok && rec.CurrentRoom == roomName {
			members = append(members, rec.Identity)
		}
	}
	return members
}

// AllOnlineIdentities returns every live identity in registration order.
func (r *Registry) AllOnlineIdentities() []string {
	identities := make([]string, 0, len(r.records))
	for _, connID := range r.order {
		if rec, ok := r.records[connID]; ok {
			identities = append(identities, rec.Identity)
		}
	}
	return identities
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.records)
}

package ws

// room is guarded by the owning Hub's lock.
type room struct {
	private bool
	members map[peer]struct{}
}

func newRoom(private bool) *room {
	return &room{private: private, members: map[peer]struct{}{}}
}

func (r *room) add(p peer)    { r.members[p] = struct{}{} }
func (r *room) remove(p peer) { delete(r.members, p) }

func (r *room) snapshot() []peer {
	out := make([]peer, 0, len(r.members))
	for p := range r.members {
		out = append(out, p)
	}
	return out
}

package ws

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"chatrelay/internal/services/chatstore"

	"go.uber.org/zap"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotRegistered = errors.New("connection not registered")
)

// Hub owns the room registry and the presence directory. A single mutex
// serialises every mutation; sends always happen on a snapshot taken outside
// the lock.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*room
	roomOf  map[peer]string
	names   map[peer]string
	online  map[string]int // display name -> live connections using it
	anonSeq int
	newCode func() string
}

func NewHub() *Hub {
	h := &Hub{
		rooms:   map[string]*room{},
		roomOf:  map[peer]string{},
		names:   map[peer]string{},
		online:  map[string]int{},
		newCode: randomCode,
	}
	h.rooms[chatstore.GlobalRoom] = newRoom(false)
	return h
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// NextAnonymousName hands out Anonymous001, Anonymous002, ...
func (h *Hub) NextAnonymousName() string {
	h.mu.Lock()
	h.anonSeq++
	n := h.anonSeq
	h.mu.Unlock()
	return fmt.Sprintf("Anonymous%03d", n)
}

// Ensure creates the room if absent. It reports whether a room was created.
func (h *Hub) Ensure(name string, private bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[name]; ok {
		return false
	}
	h.rooms[name] = newRoom(private)
	return true
}

// Lookup reports the privacy flag of a known room.
func (h *Hub) Lookup(name string) (private bool, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[name]
	if !ok {
		return false, false
	}
	return r.private, true
}

// Register records p under name in the presence directory and places it in
// the global room.
func (h *Hub) Register(p peer, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.names[p] = name
	h.online[name]++
	h.join(p, chatstore.GlobalRoom)
}

// Join moves p from its current room to target in one step.
func (h *Hub) Join(p peer, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.names[p]; !ok {
		return ErrNotRegistered
	}
	if _, ok := h.rooms[target]; !ok {
		return ErrRoomNotFound
	}
	h.join(p, target)
	return nil
}

// Leave drops p from room if it is currently a member there.
func (h *Hub) Leave(p peer, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.roomOf[p] != name {
		return
	}
	h.leave(p)
}

// CreatePrivate allocates an unused code, creates the private room and moves
// p into it.
func (h *Hub) CreatePrivate(p peer) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.names[p]; !ok {
		return "", ErrNotRegistered
	}
	code := h.newCode()
	for h.rooms[code] != nil {
		code = h.newCode()
	}
	h.rooms[code] = newRoom(true)
	h.join(p, code)
	return code, nil
}

// must hold h.mu
func (h *Hub) join(p peer, target string) {
	h.leave(p)
	h.rooms[target].add(p)
	h.roomOf[p] = target
}

// must hold h.mu
func (h *Hub) leave(p peer) {
	if cur, ok := h.roomOf[p]; ok {
		h.rooms[cur].remove(p)
		delete(h.roomOf, p)
	}
}

func (h *Hub) RoomOf(p peer) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.roomOf[p]
	return r, ok
}

// Unregister removes p from its room and from presence. The name stays online
// while another live connection still uses it.
func (h *Hub) Unregister(p peer) (roomName, name string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name, ok = h.names[p]
	if !ok {
		return "", "", false
	}
	roomName = h.roomOf[p]
	h.leave(p)
	delete(h.names, p)
	if h.online[name]--; h.online[name] <= 0 {
		delete(h.online, name)
	}
	return roomName, name, true
}

// Online returns the sorted set of names with at least one live connection.
func (h *Hub) Online() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.online))
	for n := range h.online {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) members(name string) []peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[name]
	if !ok {
		return nil
	}
	return r.snapshot()
}

func (h *Hub) everyone() []peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]peer, 0, len(h.roomOf))
	for p := range h.roomOf {
		out = append(out, p)
	}
	return out
}

// BroadcastRoom delivers data to every member of the room except `except`.
// A failed recipient is closed and skipped; its own session tears it down.
func (h *Hub) BroadcastRoom(name string, mt int, data []byte, except peer) int {
	return deliver(h.members(name), mt, data, except)
}

// BroadcastAll delivers data to every connection in every room.
func (h *Hub) BroadcastAll(mt int, data []byte) int {
	return deliver(h.everyone(), mt, data, nil)
}

func deliver(targets []peer, mt int, data []byte, except peer) int {
	sent := 0
	for _, p := range targets {
		if except != nil && p == except {
			continue
		}
		if err := p.write(mt, data); err != nil {
			zap.L().Debug("hub.deliver_failed", zap.Error(err))
			p.close()
			continue
		}
		sent++
	}
	return sent
}

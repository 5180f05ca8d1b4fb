package main

import (
	"errors"
	"sync"
)

var (
	errRoomExists   = errors.New("room already exists")
	errRoomNotFound = errors.New("room does not exist")
)

// Registry owns the process-wide room table, keyed by client-chosen room
// IDs. Its mutex guards only the map; each Room serializes its own
// mutation, so operations against different rooms never contend.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	source QuestionSource
}

func newRegistry(source QuestionSource) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		source: source,
	}
}

// createRoom inserts a new empty room, failing if the ID is taken. Rooms
// live for the process lifetime once created.
func (reg *Registry) createRoom(id string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[id]; exists {
		return nil, errRoomExists
	}

	rm := newRoom(id)
	reg.rooms[id] = rm

	return rm, nil
}

func (reg *Registry) getRoom(id string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm, ok := reg.rooms[id]
	if !ok {
		return nil, errRoomNotFound
	}

	return rm, nil
}

func (reg *Registry) allRooms() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		rooms = append(rooms, rm)
	}

	return rooms
}

// newRoomID generates a crypto-random room ID and ensures it doesn't
// collide with existing rooms.
func (reg *Registry) newRoomID() string {
	for {
		id := randomID(8)

		reg.mu.Lock()
		_, exists := reg.rooms[id]
		reg.mu.Unlock()

		if !exists {
			return id
		}
	}
}

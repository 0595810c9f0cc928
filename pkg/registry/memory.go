package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryRegistry is a process-local Registry. It backs `serve --dry-run` and
// tests. Characters referenced by handle are created on first record.
type MemoryRegistry struct {
	mu         sync.Mutex
	nextChar   int
	characters map[string]*Character // by handle
	notes      map[string][]string   // character id -> note ids
	Shares     []ShareInput
	Replies    []ReplyInput
	Deleted    []RecordKey
	// Calls counts every remote-style call by method name.
	Calls map[string]int
	// Fail makes the named methods return an error.
	Fail map[string]error
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		nextChar:   1000,
		characters: map[string]*Character{},
		notes:      map[string][]string{},
		Calls:      map[string]int{},
		Fail:       map[string]error{},
	}
}

// AddCharacter registers a character and returns its id.
func (m *MemoryRegistry) AddCharacter(handle string, md Metadata) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(handle, md).CharacterID
}

func (m *MemoryRegistry) addLocked(handle string, md Metadata) *Character {
	if c, ok := m.characters[handle]; ok {
		return c
	}
	m.nextChar++
	c := &Character{CharacterID: strconv.Itoa(m.nextChar), Handle: handle, Metadata: md}
	m.characters[handle] = c
	return c
}

func (m *MemoryRegistry) enter(method string) error {
	m.Calls[method]++
	return m.Fail[method]
}

func (m *MemoryRegistry) CharacterByHandle(_ context.Context, handle string) (*Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CharacterByHandle"); err != nil {
		return nil, err
	}
	c, ok := m.characters[handle]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Metadata.Avatars = append([]string(nil), c.Metadata.Avatars...)
	return &cp, nil
}

func (m *MemoryRegistry) SetCharacterMetadata(_ context.Context, characterID string, md Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetCharacterMetadata"); err != nil {
		return err
	}
	for _, c := range m.characters {
		if c.CharacterID == characterID {
			c.Metadata = md
			return nil
		}
	}
	return fmt.Errorf("character %s: %w", characterID, ErrNotFound)
}

func (m *MemoryRegistry) ownerOf(a Account) string {
	if a.CharacterID != "" {
		return a.CharacterID
	}
	return m.addLocked(a.Handle, Metadata{Name: a.Nickname, Bio: a.Description}).CharacterID
}

func (m *MemoryRegistry) newNote(owner string) RecordKey {
	id := strconv.Itoa(len(m.notes[owner]) + 1)
	m.notes[owner] = append(m.notes[owner], id)
	return RecordKey{CharacterID: owner, NoteID: id}
}

func (m *MemoryRegistry) CreateShare(_ context.Context, in ShareInput) (RecordKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateShare"); err != nil {
		return RecordKey{}, err
	}
	m.Shares = append(m.Shares, in)
	return m.newNote(m.ownerOf(in.Author)), nil
}

func (m *MemoryRegistry) CreateReply(_ context.Context, in ReplyInput) (RecordKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateReply"); err != nil {
		return RecordKey{}, err
	}
	m.Replies = append(m.Replies, in)
	return m.newNote(m.ownerOf(in.Author)), nil
}

func (m *MemoryRegistry) DeleteRecord(_ context.Context, key RecordKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteRecord"); err != nil {
		return err
	}
	for _, id := range m.notes[key.CharacterID] {
		if id == key.NoteID {
			m.Deleted = append(m.Deleted, key)
			return nil
		}
	}
	return fmt.Errorf("record %s: %w", key, ErrNotFound)
}

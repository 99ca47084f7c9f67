package datastores

import (
	"context"
	"slices"
	"sync"
)

// ContactsInmem implements [ContactsStore].
// Contacts are kept in insertion order and handed out as copies.
type ContactsInmem struct {
	mu       sync.Mutex
	lastID   ContactID
	order    []ContactID
	contacts map[ContactID]*Contact
}

var _ ContactsStore = (*ContactsInmem)(nil)

// NewContactsInmem returns a store seeded with cs. Seed ids are reassigned.
func NewContactsInmem(cs ...*Contact) *ContactsInmem {
	s := &ContactsInmem{contacts: make(map[ContactID]*Contact, len(cs))}
	for _, c := range cs {
		s.insert(c)
	}
	return s
}

func (s *ContactsInmem) insert(c *Contact) ContactID {
	s.lastID++
	c.ID = s.lastID
	clone := *c
	s.contacts[c.ID] = &clone
	s.order = append(s.order, c.ID)
	return c.ID
}

func (s *ContactsInmem) filter(keep func(*Contact) bool) []*Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	contacts := make([]*Contact, 0, len(s.order))
	for _, id := range s.order {
		if c := s.contacts[id]; keep(c) {
			clone := *c
			contacts = append(contacts, &clone)
		}
	}
	return contacts
}

func (s *ContactsInmem) List(_ context.Context) ([]*Contact, error) {
	return s.filter(func(*Contact) bool { return true }), nil
}

func (s *ContactsInmem) Search(_ context.Context, query string) ([]*Contact, error) {
	return s.filter(func(c *Contact) bool { return c.Matches(query) }), nil
}

func (s *ContactsInmem) Get(_ context.Context, id ContactID) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, ErrObjectNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *ContactsInmem) Create(_ context.Context, c *Contact) (ContactID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(c), nil
}

func (s *ContactsInmem) Update(_ context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.ID]; !ok {
		return ErrObjectNotFound
	}
	clone := *c
	s.contacts[c.ID] = &clone
	return nil
}

func (s *ContactsInmem) Delete(_ context.Context, id ContactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; ok {
		delete(s.contacts, id)
		s.order = slices.DeleteFunc(s.order, func(v ContactID) bool { return v == id })
	}
	return nil
}

func (s *ContactsInmem) Ping(context.Context) error { return nil }

func (s *ContactsInmem) Close() error { return nil }

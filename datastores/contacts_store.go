package datastores

import (
	"context"
	"errors"
	"strings"
)

type (
	ContactID = int
	Contact   struct {
		ID       ContactID
		Name     string
		Lastname string
		Email    string
		Phone    string
		Address  string
	}
)

// Matches reports whether query is a case-sensitive substring of at least one
// of the contact's text fields. An empty query matches every contact.
func (c *Contact) Matches(query string) bool {
	return strings.Contains(c.Name, query) ||
		strings.Contains(c.Lastname, query) ||
		strings.Contains(c.Address, query) ||
		strings.Contains(c.Email, query) ||
		strings.Contains(c.Phone, query)
}

type ContactsStore interface {
	List(context.Context) ([]*Contact, error)
	Search(ctx context.Context, query string) ([]*Contact, error)
	Get(context.Context, ContactID) (*Contact, error)
	Create(context.Context, *Contact) (ContactID, error)
	Update(context.Context, *Contact) error
	Delete(context.Context, ContactID) error
	Ping(context.Context) error
	Close() error
}

var (
	ErrObjectNotFound = errors.New("store: object not found")
	ErrConflict       = errors.New("store: update conflict")
)

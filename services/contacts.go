// Package services holds the contact book operations, independently of the
// HTTP layer.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ds "github.com/oaiiae/contactbook/datastores"
)

var (
	ErrNotFound = errors.New("contact not found")
	// ErrConflict is returned by [Contacts.Edit] when the store refused an
	// update of a contact that still exists.
	ErrConflict = ds.ErrConflict
	// ErrEmptyExport is returned by [Contacts.ExportCSV] when no search was
	// run in the caller's scope.
	ErrEmptyExport = errors.New("no search results to export")
)

// FieldError describes one rejected field of a contact payload.
type FieldError struct {
	Field   string
	Message string
	Value   string
}

// ValidationError is returned when a payload is rejected. It carries the
// payload unchanged so it can be sent back for re-editing.
type ValidationError struct {
	Contact ds.Contact
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "invalid contact: " + strings.Join(names, ", ")
}

// Validate checks that every text field of c is set.
func Validate(c *ds.Contact) error {
	var fields []FieldError
	for _, f := range []struct{ name, value string }{
		{"name", c.Name},
		{"lastname", c.Lastname},
		{"email", c.Email},
		{"phone", c.Phone},
		{"address", c.Address},
	} {
		if strings.TrimSpace(f.value) == "" {
			fields = append(fields, FieldError{Field: f.name, Message: "required", Value: f.value})
		}
	}
	if fields != nil {
		return &ValidationError{Contact: *c, Fields: fields}
	}
	return nil
}

type Contacts struct {
	Store ds.ContactsStore
	Cache SearchCache
	// CSVEscaping selects how exported CSV fields are written.
	CSVEscaping CSVEscaping
}

func (s *Contacts) List(ctx context.Context) ([]*ds.Contact, error) {
	return s.Store.List(ctx)
}

// Search returns the contacts matching query, all of them when query is
// empty, and remembers the result for the exports of scope.
func (s *Contacts) Search(ctx context.Context, scope, query string) ([]*ds.Contact, error) {
	contacts, err := s.Store.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	s.Cache.Store(scope, contacts)
	return contacts, nil
}

// searchResults returns the results to export: those of a fresh search when
// query is set, the cached ones otherwise.
func (s *Contacts) searchResults(ctx context.Context, scope string, query *string) ([]*ds.Contact, bool, error) {
	if query != nil {
		contacts, err := s.Search(ctx, scope, *query)
		return contacts, err == nil, err
	}
	contacts, ok := s.Cache.Load(scope)
	return contacts, ok, nil
}

func (s *Contacts) Detail(ctx context.Context, id ds.ContactID) (*ds.Contact, error) {
	c, err := s.Store.Get(ctx, id)
	if errors.Is(err, ds.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return c, err
}

// Create validates and inserts c, returning its new id.
func (s *Contacts) Create(ctx context.Context, c *ds.Contact) (ds.ContactID, error) {
	if err := Validate(c); err != nil {
		return 0, err
	}
	return s.Store.Create(ctx, c)
}

// Edit replaces every field of the contact id with those of c.
// It fails with [ErrNotFound] when c.ID differs from id.
func (s *Contacts) Edit(ctx context.Context, id ds.ContactID, c *ds.Contact) error {
	if c.ID != id {
		return ErrNotFound
	}
	if err := Validate(c); err != nil {
		return err
	}

	err := s.Store.Update(ctx, c)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ds.ErrObjectNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("edit contact %d: %w", id, err)
	}
}

// Delete removes the contact id if it exists.
func (s *Contacts) Delete(ctx context.Context, id ds.ContactID) error {
	_, err := s.Store.Get(ctx, id)
	switch {
	case errors.Is(err, ds.ErrObjectNotFound):
		return nil
	case err != nil:
		return err
	default:
		return s.Store.Delete(ctx, id)
	}
}

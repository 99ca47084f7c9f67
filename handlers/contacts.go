package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/VictoriaMetrics/metrics"
	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	ds "github.com/oaiiae/contactbook/datastores"
	"github.com/oaiiae/contactbook/services"
)

// SessionCookie names the cookie scoping search results when the caller has
// no identity.
const SessionCookie = "contactbook_session"

type Contacts struct {
	Service      *services.Contacts
	ErrorHandler func(context.Context, error)
	// Identity returns the authenticated subject of the request, if any.
	Identity func(context.Context) string
	Metrics  *metrics.Set
}

type ContactModel struct {
	ID ds.ContactID `json:"id" example:"12" readOnly:"true"`

	Name     string `json:"name"     example:"john"`
	Lastname string `json:"lastname" example:"smith"`
	Email    string `json:"email"    example:"john.smith@example.com"`
	Phone    string `json:"phone"    example:"+1 555 0100"`
	Address  string `json:"address"  example:"1 Main St"`
}

func newContactModel(c *ds.Contact) ContactModel {
	return ContactModel{
		ID:       c.ID,
		Name:     c.Name,
		Lastname: c.Lastname,
		Email:    c.Email,
		Phone:    c.Phone,
		Address:  c.Address,
	}
}

// ContactFields is the payload of a contact creation.
type ContactFields struct {
	Name     string `json:"name"     example:"john"`
	Lastname string `json:"lastname" example:"smith"`
	Email    string `json:"email"    example:"john.smith@example.com"`
	Phone    string `json:"phone"    example:"+1 555 0100"`
	Address  string `json:"address"  example:"1 Main St"`
}

// ContactPayload is the payload of a contact edition. ID must match the path.
type ContactPayload struct {
	ID       ds.ContactID `json:"id"       example:"12"`
	Name     string       `json:"name"     example:"john"`
	Lastname string       `json:"lastname" example:"smith"`
	Email    string       `json:"email"    example:"john.smith@example.com"`
	Phone    string       `json:"phone"    example:"+1 555 0100"`
	Address  string       `json:"address"  example:"1 Main St"`
}

// validationError turns a [services.ValidationError] into a 422 listing the
// rejected fields with their values.
func validationError(verr *services.ValidationError) error {
	details := make([]error, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		details = append(details, &huma.ErrorDetail{
			Message:  f.Message,
			Location: "body." + f.Field,
			Value:    f.Value,
		})
	}
	return huma.Error422UnprocessableEntity("invalid contact", details...)
}

func (h *Contacts) contactsOutput(contacts []*ds.Contact) *ContactsListOutput {
	body := make([]ContactModel, 0, len(contacts))
	for _, contact := range contacts {
		body = append(body, newContactModel(contact))
	}
	return &ContactsListOutput{Body: body}
}

func (h *Contacts) RegisterList(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/",
		handlerWithErrorHandler(h.list, h.ErrorHandler),
		opID("list-contacts"),
		opRoles(RoleAdmin, RoleUser),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
}

type ContactsListOutput struct {
	SetCookie []http.Cookie `header:"Set-Cookie"`
	Body      []ContactModel
}

type listInput struct {
	Query   string `query:"query" doc:"Search contacts containing this text, case-sensitive"`
	Session string `cookie:"contactbook_session"`

	unmatched bool
}

// Resolve flags requests the "/" subtree pattern caught for a path no other
// operation serves. Called by huma.
func (i *listInput) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	i.unmatched = u.Path != ctx.Operation().Path
	return nil
}

func (h *Contacts) list(ctx context.Context, input *listInput) (*ContactsListOutput, error) {
	if input.unmatched {
		return nil, huma.Error404NotFound("no such route")
	}
	if input.Query != "" {
		return h.search(ctx, &searchInput{Query: input.Query, Session: input.Session})
	}

	contacts, err := h.Service.List(ctx)
	if err != nil {
		return nil, err
	}
	return h.contactsOutput(contacts), nil
}

func (h *Contacts) RegisterSearch(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/search",
		handlerWithErrorHandler(h.search, h.ErrorHandler),
		opID("search-contacts"),
		opRoles(RoleAdmin, RoleUser),
		opErrors(http.StatusInternalServerError),
	)
}

type searchInput struct {
	Query   string `query:"query" doc:"Search contacts containing this text, case-sensitive; all contacts when empty"`
	Session string `cookie:"contactbook_session"`
}

// scope identifies whose search results are cached: the authenticated
// subject, else the session cookie. A new session cookie is returned when
// neither exists.
func (h *Contacts) scope(ctx context.Context, session string) (string, []http.Cookie) {
	if h.Identity != nil {
		if subject := h.Identity(ctx); subject != "" {
			return "sub:" + subject, nil
		}
	}
	if session != "" {
		return "session:" + session, nil
	}
	session = uuid.NewString()
	return "session:" + session, []http.Cookie{{
		Name:     SessionCookie,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}}
}

func (h *Contacts) search(ctx context.Context, input *searchInput) (*ContactsListOutput, error) {
	scope, cookie := h.scope(ctx, input.Session)
	contacts, err := h.Service.Search(ctx, scope, input.Query)
	if err != nil {
		return nil, err
	}
	out := h.contactsOutput(contacts)
	out.SetCookie = cookie
	return out, nil
}

type exportInput struct {
	Query   string `query:"query" doc:"Export the results of this search instead of the last one"`
	Session string `cookie:"contactbook_session"`

	hasQuery bool
}

// Resolve tells an empty query from an absent one. Called by huma.
func (i *exportInput) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	i.hasQuery = u.Query().Has("query")
	return nil
}

func (i *exportInput) query() *string {
	if !i.hasQuery {
		return nil
	}
	return &i.Query
}

type ContactsExportOutput struct {
	Status             int
	Location           string `header:"Location"`
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func (h *Contacts) countExport(format string) {
	if h.Metrics != nil {
		h.Metrics.GetOrCreateCounter(`contacts_exports_total{format="` + format + `"}`).Inc()
	}
}

func fileOutput(f *services.File) *ContactsExportOutput {
	return &ContactsExportOutput{
		Status:             http.StatusOK,
		ContentType:        f.ContentType,
		ContentDisposition: mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}),
		Body:               f.Content,
	}
}

func exportResponses(contentType, description string) func(*huma.Operation) {
	return func(o *huma.Operation) {
		o.Responses = map[string]*huma.Response{
			"200": {
				Description: description,
				Content:     map[string]*huma.MediaType{contentType: {Schema: &huma.Schema{Type: "string", Format: "binary"}}},
			},
		}
	}
}

func (h *Contacts) RegisterExportCSV(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/export.csv",
		handlerWithErrorHandler(h.exportCSV, h.ErrorHandler),
		opID("export-contacts-csv"),
		opRoles(RoleAdmin, RoleUser),
		opErrors(http.StatusInternalServerError),
		exportResponses(services.CSVContentType, "Search results, or a redirect to the list when nothing was searched"),
	)
}

func (h *Contacts) exportCSV(ctx context.Context, input *exportInput) (*ContactsExportOutput, error) {
	scope, _ := h.scope(ctx, input.Session)
	f, err := h.Service.ExportCSV(ctx, scope, input.query())
	switch {
	case errors.Is(err, services.ErrEmptyExport):
		return &ContactsExportOutput{Status: http.StatusSeeOther, Location: "./"}, nil
	case err != nil:
		return nil, err
	}
	h.countExport("csv")
	return fileOutput(f), nil
}

func (h *Contacts) RegisterExportSpreadsheet(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/export.xlsx",
		handlerWithErrorHandler(h.exportSpreadsheet, h.ErrorHandler),
		opID("export-contacts-xlsx"),
		opRoles(RoleAdmin, RoleUser),
		opErrors(http.StatusInternalServerError),
		exportResponses(services.SpreadsheetType, "Search results"),
	)
}

func (h *Contacts) exportSpreadsheet(ctx context.Context, input *exportInput) (*ContactsExportOutput, error) {
	scope, _ := h.scope(ctx, input.Session)
	f, err := h.Service.ExportSpreadsheet(ctx, scope, input.query())
	if err != nil {
		return nil, err
	}
	h.countExport("xlsx")
	return fileOutput(f), nil
}

func (h *Contacts) RegisterGet(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/{id}",
		handlerWithErrorHandler(h.get, h.ErrorHandler),
		opID("get-contact"),
		opRoles(RoleAdmin, RoleUser),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
	huma.Get(api, "/{id}/edit",
		handlerWithErrorHandler(h.get, h.ErrorHandler),
		opID("get-contact-edit"),
		opRoles(RoleAdmin),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
	huma.Get(api, "/{id}/delete",
		handlerWithErrorHandler(h.get, h.ErrorHandler),
		opID("get-contact-delete"),
		opRoles(RoleAdmin),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
}

type ContactsGetOutput struct {
	Body ContactModel
}

func (h *Contacts) get(ctx context.Context, input *struct {
	ID ds.ContactID `path:"id" example:"12" doc:"ID of the contact to get"`
}) (*ContactsGetOutput, error) {
	contact, err := h.Service.Detail(ctx, input.ID)
	switch {
	case err == nil:
		return &ContactsGetOutput{Body: newContactModel(contact)}, nil

	case errors.Is(err, services.ErrNotFound):
		return nil, huma.Error404NotFound("id not found", err)

	default:
		return nil, err
	}
}

func (h *Contacts) RegisterCreate(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/new",
		handlerWithErrorHandler(h.createForm, h.ErrorHandler),
		opID("get-contact-new"),
		opRoles(RoleAdmin),
	)
	huma.Post(api, "/new",
		handlerWithErrorHandler(h.create, h.ErrorHandler),
		opID("create-contact"),
		opRoles(RoleAdmin),
		opErrors(http.StatusUnprocessableEntity, http.StatusInternalServerError),
		func(o *huma.Operation) { o.DefaultStatus = http.StatusCreated },
	)
}

type ContactsFormOutput struct {
	Body ContactFields
}

func (h *Contacts) createForm(context.Context, *struct{}) (*ContactsFormOutput, error) {
	return &ContactsFormOutput{}, nil
}

type ContactsCreateOutput struct {
	Location string `header:"Location"`
	Body     ContactModel
}

func (h *Contacts) create(ctx context.Context, input *struct {
	Body ContactFields
}) (*ContactsCreateOutput, error) {
	contact := &ds.Contact{
		Name:     input.Body.Name,
		Lastname: input.Body.Lastname,
		Email:    input.Body.Email,
		Phone:    input.Body.Phone,
		Address:  input.Body.Address,
	}
	id, err := h.Service.Create(ctx, contact)
	var verr *services.ValidationError
	switch {
	case err == nil:
		contact.ID = id
		return &ContactsCreateOutput{
			Location: "../" + strconv.Itoa(id),
			Body:     newContactModel(contact),
		}, nil

	case errors.As(err, &verr):
		return nil, validationError(verr)

	default:
		return nil, err
	}
}

func (h *Contacts) RegisterEdit(api huma.API) { // called by [huma.AutoRegister]
	huma.Post(api, "/{id}/edit",
		handlerWithErrorHandler(h.edit, h.ErrorHandler),
		opID("edit-contact"),
		opRoles(RoleAdmin),
		opErrors(http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

func (h *Contacts) edit(ctx context.Context, input *struct {
	ID   ds.ContactID `path:"id" example:"12" doc:"ID of the contact to edit"`
	Body ContactPayload
}) (*struct{}, error) {
	err := h.Service.Edit(ctx, input.ID, &ds.Contact{
		ID:       input.Body.ID,
		Name:     input.Body.Name,
		Lastname: input.Body.Lastname,
		Email:    input.Body.Email,
		Phone:    input.Body.Phone,
		Address:  input.Body.Address,
	})
	var verr *services.ValidationError
	switch {
	case err == nil:
		return nil, nil //nolint: nilnil // 204 No Content

	case errors.Is(err, services.ErrNotFound):
		return nil, huma.Error404NotFound("id not found", err)

	case errors.As(err, &verr):
		return nil, validationError(verr)

	default:
		return nil, err
	}
}

func (h *Contacts) RegisterDel(api huma.API) { // called by [huma.AutoRegister]
	huma.Post(api, "/{id}/delete",
		handlerWithErrorHandler(h.del, h.ErrorHandler),
		opID("delete-contact"),
		opRoles(RoleAdmin),
		opErrors(http.StatusInternalServerError),
	)
}

func (h *Contacts) del(ctx context.Context, input *struct {
	ID ds.ContactID `path:"id" example:"12" doc:"ID of the contact to delete"`
}) (*struct{}, error) {
	return nil, h.Service.Delete(ctx, input.ID)
}

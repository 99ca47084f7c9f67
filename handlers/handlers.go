package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type handler[I, O any] = func(context.Context, *I) (*O, error)

func handlerWithErrorHandler[I, O any](handler handler[I, O], do func(context.Context, error)) handler[I, O] {
	if do == nil {
		return handler
	}

	return func(ctx context.Context, i *I) (*O, error) {
		o, err := handler(ctx, i)
		if err != nil {
			do(ctx, err)
		}
		return o, err
	}
}

func opID(id string) func(*huma.Operation) {
	return func(o *huma.Operation) { o.OperationID = id }
}

func opErrors(codes ...int) func(*huma.Operation) {
	return func(o *huma.Operation) { o.Errors = codes }
}

// Roles allowed to call an operation.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// MetadataRoles is the [huma.Operation.Metadata] key listing the roles
// allowed to call the operation.
const MetadataRoles = "roles"

func opRoles(roles ...string) func(*huma.Operation) {
	return func(o *huma.Operation) {
		if o.Metadata == nil {
			o.Metadata = map[string]any{}
		}
		o.Metadata[MetadataRoles] = roles
	}
}

// OperationRoles returns the roles allowed to call op, nil when unrestricted.
func OperationRoles(op *huma.Operation) []string {
	roles, _ := op.Metadata[MetadataRoles].([]string)
	return roles
}

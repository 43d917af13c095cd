package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Resolver resolves a root query field from its coerced arguments.
// The returned value is completed structurally against the field's type:
// objects are map[string]any, lists are []any.
type Resolver func(ctx context.Context, args map[string]any) (any, error)

// Executor runs queries against a schema. It holds no per-request state and
// is safe for concurrent use.
type Executor struct {
	schema    *ast.Schema
	resolvers map[string]Resolver
}

// NewExecutor creates an Executor. Every field of the schema's query type
// must have a resolver.
func NewExecutor(schema *ast.Schema, resolvers map[string]Resolver) (*Executor, error) {
	if schema.Query == nil {
		return nil, errors.New("schema has no query type")
	}
	for _, f := range schema.Query.Fields {
		if isIntrospectionField(f.Name) {
			continue
		}
		if resolvers[f.Name] == nil {
			return nil, fmt.Errorf("no resolver for %s.%s", schema.Query.Name, f.Name)
		}
	}
	return &Executor{schema: schema, resolvers: resolvers}, nil
}

// Execute parses, validates and executes one request. Field-level failures
// are reported in the response's error list next to partial data; request
// level failures (syntax, validation, variables) produce errors and no data.
func (x *Executor) Execute(ctx context.Context, params *graphql.RawParams) *graphql.Response {
	doc, errs := gqlparser.LoadQuery(x.schema, params.Query)
	if len(errs) > 0 {
		return &graphql.Response{Errors: errs}
	}

	op, gqlErr := selectOperation(doc, params.OperationName)
	if gqlErr != nil {
		return &graphql.Response{Errors: gqlerror.List{gqlErr}}
	}
	if op.Operation != ast.Query {
		return &graphql.Response{Errors: gqlerror.List{
			gqlerror.Errorf("%s operations are not supported", op.Operation),
		}}
	}

	vars, err := validator.VariableValues(x.schema, op, params.Variables)
	if err != nil {
		return &graphql.Response{Errors: gqlerror.List{toGQLError(err, nil)}}
	}

	ex := &execution{
		schema:    x.schema,
		resolvers: x.resolvers,
		vars:      vars,
		fragments: doc.Fragments,
	}
	data := ex.executeRoot(ctx, op)

	raw, merr := json.Marshal(data)
	if merr != nil {
		return &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("encode result: %s", merr)}}
	}
	return &graphql.Response{Data: raw, Errors: ex.errors}
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, *gqlerror.Error) {
	if name == "" {
		if len(doc.Operations) != 1 {
			return nil, gqlerror.Errorf("operationName is required when the document holds %d operations", len(doc.Operations))
		}
		return doc.Operations[0], nil
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, gqlerror.Errorf("unknown operation named %q", name)
}

// execution is the state of one Execute call.
type execution struct {
	schema    *ast.Schema
	resolvers map[string]Resolver
	vars      map[string]any
	fragments ast.FragmentDefinitionList
	errors    gqlerror.List
}

func (e *execution) executeRoot(ctx context.Context, op *ast.OperationDefinition) *object {
	typeName := e.schema.Query.Name
	fields := e.collectFields(op.SelectionSet, typeName)
	out := newObject(len(fields))

	for _, f := range fields {
		key := responseKey(f)
		path := ast.Path{ast.PathName(key)}

		if f.Name == "__typename" {
			out.set(key, typeName)
			continue
		}
		if isIntrospectionField(f.Name) {
			e.addError(f, path, "introspection is not supported")
			out.set(key, nil)
			continue
		}

		typ := f.Definition.Type
		val, err := e.resolvers[f.Name](ctx, f.ArgumentMap(e.vars))
		if err != nil {
			e.errors = append(e.errors, toGQLError(err, f, path...))
			if typ.NonNull {
				return nil
			}
			out.set(key, nil)
			continue
		}

		completed, ok := e.complete(typ, f, val, path, typeName+"."+f.Name)
		if !ok {
			return nil
		}
		out.set(key, completed)
	}
	return out
}

// complete shapes val according to typ. ok is false when a non-null position
// ended up null; the caller then nulls its own position in turn.
func (e *execution) complete(typ *ast.Type, f *ast.Field, val any, path ast.Path, fieldName string) (any, bool) {
	if val == nil {
		if typ.NonNull {
			e.addError(f, path, "Cannot return null for non-nullable field %s.", fieldName)
			return nil, false
		}
		return nil, true
	}

	if typ.Elem != nil {
		items, isList := val.([]any)
		if !isList {
			return e.fail(typ, f, path, "%s: expected a list, got %T", fieldName, val)
		}
		list := make([]any, len(items))
		for i, item := range items {
			c, ok := e.complete(typ.Elem, f, item, appendPath(path, ast.PathIndex(i)), fieldName)
			if !ok {
				return nil, !typ.NonNull
			}
			list[i] = c
		}
		return list, true
	}

	def := e.schema.Types[typ.NamedType]
	if def == nil {
		return e.fail(typ, f, path, "%s: unknown type %s", fieldName, typ.NamedType)
	}

	switch def.Kind {
	case ast.Scalar, ast.Enum:
		v, err := serializeLeaf(def, val)
		if err != nil {
			return e.fail(typ, f, path, "%s: %s", fieldName, err)
		}
		return v, true
	case ast.Object:
		src, isObject := val.(map[string]any)
		if !isObject {
			return e.fail(typ, f, path, "%s: expected an object, got %T", fieldName, val)
		}
		obj, ok := e.executeObject(def, f.SelectionSet, src, path)
		if !ok {
			return nil, !typ.NonNull
		}
		return obj, true
	default:
		return e.fail(typ, f, path, "%s: %s types are not supported", fieldName, def.Kind)
	}
}

// executeObject maps the selected fields of def onto the same-named
// properties of src.
func (e *execution) executeObject(def *ast.Definition, set ast.SelectionSet, src map[string]any, path ast.Path) (*object, bool) {
	fields := e.collectFields(set, def.Name)
	out := newObject(len(fields))

	for _, f := range fields {
		key := responseKey(f)
		if f.Name == "__typename" {
			out.set(key, def.Name)
			continue
		}

		fd := def.Fields.ForName(f.Name)
		if fd == nil {
			e.addError(f, appendPath(path, ast.PathName(key)), "unknown field %s.%s", def.Name, f.Name)
			return nil, false
		}
		c, ok := e.complete(fd.Type, f, src[f.Name], appendPath(path, ast.PathName(key)), def.Name+"."+f.Name)
		if !ok {
			return nil, false
		}
		out.set(key, c)
	}
	return out, true
}

func (e *execution) fail(typ *ast.Type, f *ast.Field, path ast.Path, format string, args ...any) (any, bool) {
	e.addError(f, path, format, args...)
	return nil, !typ.NonNull
}

func (e *execution) addError(f *ast.Field, path ast.Path, format string, args ...any) {
	err := gqlerror.ErrorPathf(appendPath(path), format, args...)
	setLocation(err, f)
	e.errors = append(e.errors, err)
}

// collectFields flattens fragments and applies @skip/@include, merging
// fields that share a response key.
func (e *execution) collectFields(set ast.SelectionSet, typeName string) []*ast.Field {
	var fields []*ast.Field
	index := make(map[string]int)
	visited := make(map[string]bool)
	e.collect(set, typeName, &fields, index, visited)
	return fields
}

func (e *execution) collect(set ast.SelectionSet, typeName string, fields *[]*ast.Field, index map[string]int, visited map[string]bool) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if !e.included(s.Directives) {
				continue
			}
			key := responseKey(s)
			if i, ok := index[key]; ok {
				merged := *(*fields)[i]
				merged.SelectionSet = append(append(ast.SelectionSet{}, merged.SelectionSet...), s.SelectionSet...)
				(*fields)[i] = &merged
				continue
			}
			index[key] = len(*fields)
			*fields = append(*fields, s)
		case *ast.InlineFragment:
			if !e.included(s.Directives) || !typeApplies(s.TypeCondition, typeName) {
				continue
			}
			e.collect(s.SelectionSet, typeName, fields, index, visited)
		case *ast.FragmentSpread:
			if !e.included(s.Directives) || visited[s.Name] {
				continue
			}
			visited[s.Name] = true
			frag := s.Definition
			if frag == nil {
				frag = e.fragments.ForName(s.Name)
			}
			if frag == nil || !typeApplies(frag.TypeCondition, typeName) {
				continue
			}
			e.collect(frag.SelectionSet, typeName, fields, index, visited)
		}
	}
}

func (e *execution) included(directives ast.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(e.vars)["if"].(bool); skip {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if include, ok := d.ArgumentMap(e.vars)["if"].(bool); ok && !include {
			return false
		}
	}
	return true
}

func typeApplies(condition, typeName string) bool {
	return condition == "" || condition == typeName
}

func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func isIntrospectionField(name string) bool {
	return name == "__schema" || name == "__type"
}

// appendPath returns a copy of path with elems appended.
func appendPath(path ast.Path, elems ...ast.PathElement) ast.Path {
	out := make(ast.Path, 0, len(path)+len(elems))
	out = append(out, path...)
	return append(out, elems...)
}

// toGQLError converts a resolver or validation error into a GraphQL error
// located at f and path. Errors that already are GraphQL errors keep their
// message and extensions.
func toGQLError(err error, f *ast.Field, path ...ast.PathElement) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		out := *gqlErr
		if len(path) > 0 {
			out.Path = appendPath(nil, path...)
		}
		if f != nil && len(out.Locations) == 0 {
			setLocation(&out, f)
		}
		return &out
	}

	out := &gqlerror.Error{Err: err, Message: err.Error()}
	if len(path) > 0 {
		out.Path = appendPath(nil, path...)
	}
	if f != nil {
		setLocation(out, f)
	}
	return out
}

func setLocation(err *gqlerror.Error, f *ast.Field) {
	if f == nil || f.Position == nil {
		return
	}
	err.Locations = []gqlerror.Location{{Line: f.Position.Line, Column: f.Position.Column}}
}

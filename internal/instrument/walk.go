package instrument

import (
	"reflect"

	"github.com/dop251/goja/ast"
)

// visitor receives every node of a goja AST in source order. Returning false
// from enter skips the node's children and its leave call.
type visitor interface {
	enter(n ast.Node) bool
	leave(n ast.Node)
}

// Hoisting lists duplicate nodes that are already reachable from the body,
// and the file handle is not part of the tree.
var skipFields = map[string]bool{
	"DeclarationList": true,
	"File":            true,
}

func walk(v visitor, n ast.Node) {
	rv := reflect.ValueOf(n)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return
	}
	if !v.enter(n) {
		return
	}
	if rv.Kind() == reflect.Pointer {
		walkFields(v, rv.Elem())
	}
	v.leave(n)
}

func walkValue(v visitor, rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Interface:
		if !rv.IsNil() {
			walkValue(v, rv.Elem())
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return
		}
		if n, ok := rv.Interface().(ast.Node); ok {
			walk(v, n)
			return
		}
		walkValue(v, rv.Elem())
	case reflect.Struct:
		if rv.CanAddr() {
			if n, ok := rv.Addr().Interface().(ast.Node); ok {
				walk(v, n)
				return
			}
		}
		walkFields(v, rv)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			walkValue(v, rv.Index(i))
		}
	}
}

func walkFields(v visitor, rv reflect.Value) {
	if rv.Kind() != reflect.Struct {
		return
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || skipFields[f.Name] {
			continue
		}
		walkValue(v, rv.Field(i))
	}
}

// funcVisitor adapts plain functions to the visitor interface.
type funcVisitor struct {
	onEnter func(ast.Node) bool
	onLeave func(ast.Node)
}

func (f funcVisitor) enter(n ast.Node) bool {
	if f.onEnter == nil {
		return true
	}
	return f.onEnter(n)
}

func (f funcVisitor) leave(n ast.Node) {
	if f.onLeave != nil {
		f.onLeave(n)
	}
}

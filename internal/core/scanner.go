package core

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// mapper handles reflection-based scanning of result rows into structs,
// with cached per-type metadata. Column names come from db:"" tags, falling
// back to the lowercased field name.
type mapper struct {
	mu    sync.RWMutex
	cache map[reflect.Type][]*mappedField
}

type mappedField struct {
	index  []int // field index path, embedded structs included
	column string
}

var globalMapper = &mapper{cache: make(map[reflect.Type][]*mappedField)}

func (m *mapper) fields(typ reflect.Type) ([]*mappedField, error) {
	m.mu.RLock()
	fields, ok := m.cache[typ]
	m.mu.RUnlock()
	if ok {
		return fields, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if fields, ok := m.cache[typ]; ok {
		return fields, nil
	}
	fields, err := buildFields(typ, nil)
	if err != nil {
		return nil, err
	}
	m.cache[typ] = fields
	return fields, nil
}

func buildFields(typ reflect.Type, index []int) ([]*mappedField, error) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("scanner: expected struct, got %s", typ.Kind())
	}

	var fields []*mappedField
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		path := append(append([]int{}, index...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			nested, err := buildFields(field.Type, path)
			if err != nil {
				return nil, err
			}
			fields = append(fields, nested...)
			continue
		}

		column := field.Name
		if tag, ok := field.Tag.Lookup("db"); ok {
			if tag == "-" {
				continue
			}
			column = tag
		}
		fields = append(fields, &mappedField{index: path, column: strings.ToLower(column)})
	}
	return fields, nil
}

// scanStruct scans the current row into a struct value, matching result
// columns to mapped fields case-insensitively; unmatched columns are
// discarded.
func (m *mapper) scanStruct(rows *sql.Rows, columns []string, dest reflect.Value) error {
	fields, err := m.fields(dest.Type())
	if err != nil {
		return err
	}
	byColumn := make(map[string]*mappedField, len(fields))
	for _, f := range fields {
		byColumn[f.column] = f
	}

	dests := make([]interface{}, len(columns))
	for i, col := range columns {
		if f, ok := byColumn[strings.ToLower(col)]; ok {
			fv := dest
			for _, idx := range f.index {
				fv = fv.Field(idx)
			}
			dests[i] = fv.Addr().Interface()
			continue
		}
		var discard interface{}
		dests[i] = &discard
	}
	if err := rows.Scan(dests...); err != nil {
		return fmt.Errorf("scanner: scan failed: %w", err)
	}
	return nil
}

// AllInto compiles and runs the SELECT, scanning every row into dest,
// which must be a pointer to a slice of structs or struct pointers.
func (b *Builder) AllInto(ctx context.Context, dest interface{}) error {
	if err := b.preflight(); err != nil {
		return err
	}
	sqlText := compileSelect(b.state)
	if b.capture(sqlText) {
		return nil
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("scanner: dest must be pointer to slice, got %T", dest)
	}
	slice := dv.Elem()
	elemType := slice.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return fmt.Errorf("scanner: slice element must be struct or *struct, got %s", elemType.Kind())
	}

	rows, err := b.conn.queryRows(ctx, sqlText)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return WrapError(err, "failed to get columns")
	}
	for rows.Next() {
		elem := reflect.New(elemType).Elem()
		if err := globalMapper.scanStruct(rows, columns, elem); err != nil {
			return err
		}
		if isPtr {
			slice.Set(reflect.Append(slice, elem.Addr()))
		} else {
			slice.Set(reflect.Append(slice, elem))
		}
	}
	return rows.Err()
}

// FirstInto runs the SELECT with the limit forced to one and scans the row
// into dest, a pointer to struct. Returns ErrNoRows when nothing matches.
func (b *Builder) FirstInto(ctx context.Context, dest interface{}) error {
	if err := b.preflight(); err != nil {
		return err
	}
	s := b.state.clone()
	s.limit = 1
	s.hasLimit = true
	s.hasOffset = false
	sqlText := compileSelect(s)
	if b.capture(sqlText) {
		return nil
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("scanner: dest must be pointer to struct, got %T", dest)
	}

	rows, err := b.conn.queryRows(ctx, sqlText)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrNoRows
	}
	columns, err := rows.Columns()
	if err != nil {
		return WrapError(err, "failed to get columns")
	}
	return globalMapper.scanStruct(rows, columns, dv.Elem())
}

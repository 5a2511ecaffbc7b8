package core

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// timeLayout is the MySQL DATETIME literal format.
const timeLayout = "2006-01-02 15:04:05"

// Escape escapes a string for safe inclusion in a single-quoted MySQL
// literal. It applies backslash escaping for the characters the server
// treats specially: NUL, newline, carriage return, backslash, single and
// double quote, and Ctrl-Z. Assumes NO_BACKSLASH_ESCAPES is off, which is
// the server default.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case 0x1a:
			b.WriteString(`\Z`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Quote converts an arbitrary value into SQL-literal text. Every clause
// builder routes values through here; nothing reaches the compiled
// statement unescaped.
//
// Conversion rules:
//   - nil (including nil pointers) renders the unquoted literal NULL
//   - bool renders unquoted 0 or 1
//   - strings, []byte and all integer kinds render escaped inside single quotes
//   - time.Time renders as a quoted DATETIME literal
//   - slices and arrays render each element recursively, comma-joined and
//     parenthesized, usable directly after IN
//   - the empty string and the empty slice render as the quoted single
//     space ' ' for compatibility with the systems this layer replaced;
//     callers that need NULL must pass nil
//   - anything else falls through to raw escaped text without quotes,
//     which notably leaves floats unquoted
func Quote(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		if val == "" {
			return "' '"
		}
		return "'" + Escape(val) + "'"
	case []byte:
		if len(val) == 0 {
			return "' '"
		}
		return "'" + Escape(string(val)) + "'"
	case time.Time:
		return "'" + val.Format(timeLayout) + "'"
	case int:
		return "'" + strconv.FormatInt(int64(val), 10) + "'"
	case int8:
		return "'" + strconv.FormatInt(int64(val), 10) + "'"
	case int16:
		return "'" + strconv.FormatInt(int64(val), 10) + "'"
	case int32:
		return "'" + strconv.FormatInt(int64(val), 10) + "'"
	case int64:
		return "'" + strconv.FormatInt(val, 10) + "'"
	case uint:
		return "'" + strconv.FormatUint(uint64(val), 10) + "'"
	case uint8:
		return "'" + strconv.FormatUint(uint64(val), 10) + "'"
	case uint16:
		return "'" + strconv.FormatUint(uint64(val), 10) + "'"
	case uint32:
		return "'" + strconv.FormatUint(uint64(val), 10) + "'"
	case uint64:
		return "'" + strconv.FormatUint(val, 10) + "'"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "NULL"
		}
		return Quote(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return "' '"
		}
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = Quote(rv.Index(i).Interface())
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}

	// Fallback: raw escaped text, unquoted. Floats land here.
	return Escape(fmt.Sprint(v))
}

// Package splat renders result records as PowerShell parameter-splat
// blocks. Operators paste the block straight into an admin shell to feed
// follow-up cmdlets (Connect-ExchangeOnline, Connect-MgGraph) without
// retyping app IDs and thumbprints.
package splat

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Format renders v as a PowerShell splat block:
//
//	$params = @{
//	    Name = "John"
//	    Age = 30
//	}
//
// Struct fields appear in declaration order, map keys sorted. Strings are
// quoted, numbers stay bare, booleans become $true/$false. There is no
// trailing newline after the closing brace. Nil and unsupported values
// render as empty strings.
func Format(v any) string {
	var b strings.Builder
	b.WriteString("$params = @{\n")

	for _, kv := range pairs(v) {
		b.WriteString("    ")
		b.WriteString(kv.key)
		b.WriteString(" = ")
		b.WriteString(kv.value)
		b.WriteString("\n")
	}

	b.WriteString("}")
	return b.String()
}

type pair struct {
	key   string
	value string
}

func pairs(v any) []pair {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return structPairs(rv)
	case reflect.Map:
		return mapPairs(rv)
	default:
		return nil
	}
}

func structPairs(rv reflect.Value) []pair {
	t := rv.Type()
	out := make([]pair, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out = append(out, pair{key: f.Name, value: literal(rv.Field(i))})
	}
	return out
}

func mapPairs(rv reflect.Value) []pair {
	keys := make([]string, 0, rv.Len())
	values := make(map[string]string, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := fmt.Sprintf("%v", iter.Key().Interface())
		keys = append(keys, k)
		values[k] = literal(iter.Value())
	}
	sort.Strings(keys)

	out := make([]pair, 0, len(keys))
	for _, k := range keys {
		out = append(out, pair{key: k, value: values[k]})
	}
	return out
}

// literal renders a single value as a PowerShell literal.
func literal(rv reflect.Value) string {
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return `""`
		}
		rv = rv.Elem()
	}

	if t, ok := rv.Interface().(time.Time); ok {
		return fmt.Sprintf("%q", t.Format(time.RFC3339))
	}

	switch rv.Kind() {
	case reflect.String:
		return fmt.Sprintf("%q", rv.String())
	case reflect.Bool:
		if rv.Bool() {
			return "$true"
		}
		return "$false"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", rv.Uint())
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%g", rv.Float())
	default:
		// Stringers (time.Time etc.) fall back to their quoted string form.
		return fmt.Sprintf("%q", fmt.Sprintf("%v", rv.Interface()))
	}
}

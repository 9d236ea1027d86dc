package specwriter

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/bcda-aps/specd/document"
	"github.com/bcda-aps/specd/specfile"
)

// ReconstructCommand renders a one-line, human-readable approximation of
// the acquisition command from a start document, for the #S header line:
//
//	108  tune_mr(width=-0.004, num=31)
//
// The result never contains a newline, no matter how deeply nested the
// plan arguments are; downstream readers assume one line per #S record.
func ReconstructCommand(d document.Start) string {
	name := d.PlanName
	if name == "" {
		name = "unknown"
	}
	keys := make([]string, 0, len(d.PlanArgs))
	for k := range d.PlanArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, len(keys))
	for i, k := range keys {
		args[i] = k + "=" + renderValue(d.PlanArgs[k])
	}
	cmd := fmt.Sprintf("%d  %s(%s)", d.ScanID, name, strings.Join(args, ", "))
	return singleLine(cmd)
}

var lineEscaper = strings.NewReplacer("\n", `\n`, "\r", `\r`)

func singleLine(s string) string {
	return lineEscaper.Replace(s)
}

// renderValue renders an argument value recursively: strings are
// single-quoted with escapes applied, sequences bracketed, mappings
// braced with keys in sorted order.
func renderValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteSingle(t)
	case bool:
		return strconv.FormatBool(t)
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = renderValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = quoteSingle(k) + ": " + renderValue(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	if s, ok := specfile.RenderNumber(v); ok {
		return s
	}
	// typed slices, arrays and maps from non-JSON callers
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = renderValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Map:
		keys := rv.MapKeys()
		strKeys := make([]string, len(keys))
		byKey := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			ks := fmt.Sprint(k.Interface())
			strKeys[i] = ks
			byKey[ks] = rv.MapIndex(k)
		}
		sort.Strings(strKeys)
		parts := make([]string, len(strKeys))
		for i, ks := range strKeys {
			parts[i] = quoteSingle(ks) + ": " + renderValue(byKey[ks].Interface())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return singleLine(fmt.Sprint(v))
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func quoteSingle(s string) string {
	return "'" + stringEscaper.Replace(s) + "'"
}

// renderMD renders a metadata value for a #MD line.  Strings pass through
// unquoted; structured values use the same textual form as plan arguments.
func renderMD(v interface{}) string {
	if s, ok := v.(string); ok {
		return singleLine(s)
	}
	return renderValue(v)
}

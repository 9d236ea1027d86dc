// Package specfile renders and writes the legacy SPEC scan-data file
// format: a line-oriented plain-text format with reserved #-prefixed
// line-type tags, widely consumed by synchrotron analysis tooling.  The
// exact tag letters, spacing and ordering are load-bearing; downstream
// readers parse them byte for byte.
package specfile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the SPEC file date representation, e.g.
// "Thu Jun 19 12:21:55 2025".
const DateFormat = "Mon Jan 02 15:04:05 2006"

// FmtDate formats a time the way SPEC files expect.
func FmtDate(t time.Time) string {
	return t.Format(DateFormat)
}

// Header is the once-per-file preamble.
type Header struct {
	// Filename is echoed into the #F line
	Filename string

	// Epoch is the reference epoch (#E), integer seconds
	Epoch int64

	// Date is the #D line, already formatted per FmtDate
	Date string

	// Comment is the #C user/host line
	Comment string

	// Positioners are the names on the #O0/#o0 lines
	Positioners []string
}

// Render serializes the file header block, trailing blank line included.
func (h Header) Render() []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "#F %s\n", h.Filename)
	fmt.Fprintf(buf, "#E %d\n", h.Epoch)
	fmt.Fprintf(buf, "#D %s\n", h.Date)
	fmt.Fprintf(buf, "#C %s\n", h.Comment)
	fmt.Fprintf(buf, "#O0 %s\n", strings.Join(h.Positioners, "  "))
	fmt.Fprintf(buf, "#o0 %s\n", strings.Join(h.Positioners, "  "))
	buf.WriteString("\n")
	return buf.Bytes()
}

// MD is one key = value metadata line (#MD).
type MD struct {
	Key   string
	Value string
}

// Scan is one scan block, ready to serialize.
type Scan struct {
	// UID identifies the run for duplicate detection.  It is not rendered
	// directly; callers are expected to carry it in a comment line.
	UID string

	// Command is the #S line body, e.g. "108  tune_mr()"
	Command string

	// Date is the #D line (run start), formatted per FmtDate
	Date string

	// HeaderComments are #C lines between #D and the metadata
	HeaderComments []string

	// Metadata are the #MD lines, in the order given
	Metadata []MD

	// Positioners are the values on the #P0 line
	Positioners []string

	// Labels is the #L column-label line, in final column order
	Labels []string

	// Rows holds the table body; Rows[i] is aligned with Labels
	Rows [][]interface{}

	// TrailComments are #C lines after the data table
	TrailComments []string
}

// Render serializes the scan block.  The block begins with a blank
// separator line and ends with one.
//
// Cells that are not numeric cannot be represented in the SPEC table; the
// row index is substituted in the data line and the value is emitted as a
// "#U <row> <column> <value>" line immediately after the row.
func (s Scan) Render() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("\n")
	fmt.Fprintf(buf, "#S %s\n", s.Command)
	fmt.Fprintf(buf, "#D %s\n", s.Date)
	for _, c := range s.HeaderComments {
		fmt.Fprintf(buf, "#C %s\n", c)
	}
	for _, md := range s.Metadata {
		fmt.Fprintf(buf, "#MD %s = %s\n", md.Key, md.Value)
	}
	fmt.Fprintf(buf, "#P0 %s\n", strings.Join(s.Positioners, "  "))
	fmt.Fprintf(buf, "#N %d\n", len(s.Rows))
	fmt.Fprintf(buf, "#L %s\n", strings.Join(s.Labels, "  "))
	for i, row := range s.Rows {
		cells := make([]string, len(row))
		var unprintable []string
		for j, v := range row {
			str, numeric := RenderNumber(v)
			if !numeric {
				cells[j] = strconv.Itoa(i)
				col := ""
				if j < len(s.Labels) {
					col = s.Labels[j]
				}
				unprintable = append(unprintable, fmt.Sprintf("#U %d %s %v", i, col, v))
				continue
			}
			cells[j] = str
		}
		buf.WriteString(strings.Join(cells, " "))
		buf.WriteString("\n")
		for _, u := range unprintable {
			buf.WriteString(u)
			buf.WriteString("\n")
		}
	}
	for _, c := range s.TrailComments {
		fmt.Fprintf(buf, "#C %s\n", c)
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

// RenderNumber formats v for a data line.  The second return is false when
// v is not a numeric type.
func RenderNumber(v interface{}) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	}
	return "", false
}

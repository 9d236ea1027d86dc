// Package specwriter implements a recorder that consumes acquisition
// document streams and writes SPEC data files.
//
// The Writer is driven one document at a time, in stream order, on
// whatever goroutine the caller chooses; it spawns none of its own.  A
// start document opens a run and clears any state left from the previous
// one, events grow the column table, and the stop document triggers
// serialization of the scan block to disk (unless deferred).
package specwriter

import (
	"fmt"
	"math"
	"os"
	"os/user"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/bcda-aps/specd/document"
	"github.com/bcda-aps/specd/specfile"
	"github.com/bcda-aps/specd/util"
)

// Phase labels where in the run a comment logically belongs.
type Phase string

// The comment phases, in the order they are emitted into the scan block.
const (
	PhaseStart      Phase = "start"
	PhaseDescriptor Phase = "descriptor"
	PhaseEvent      Phase = "event"
	PhaseResource   Phase = "resource"
	PhaseDatum      Phase = "datum"
	PhaseStop       Phase = "stop"
)

var knownPhases = map[Phase]bool{
	PhaseStart:      true,
	PhaseDescriptor: true,
	PhaseEvent:      true,
	PhaseResource:   true,
	PhaseDatum:      true,
	PhaseStop:       true,
}

const (
	primaryStream  = "primary"
	baselineStream = "baseline"

	epochCol      = "Epoch"
	epochFloatCol = "Epoch_float"
)

// Config holds the initialization parameters for a Writer.
type Config struct {
	// Path is the output file; empty generates a time-stamped name
	Path string

	// Mode picks the behavior when Path already has content
	Mode specfile.Mode

	// AutoWrite serializes each scan when its stop document arrives.
	// When false the owner calls WriteScan itself.
	AutoWrite bool
}

// Writer accumulates one run at a time and serializes each finished run as
// a SPEC scan block.  It implements document.Handler; wire it to a stream
// through a document.Router.  It is not thread safe.
type Writer struct {
	file      *specfile.File
	mode      specfile.Mode
	autoWrite bool

	// buffered holds comments submitted while no run is open; they are
	// merged into the next run's start phase
	buffered []string

	collecting bool
	uid        string
	scanID     int
	startTime  float64
	command    string
	motors     []string
	detectors  []string
	metadata   []specfile.MD
	comments   map[Phase][]string

	descriptors     map[string]string // descriptor uid -> stream name
	primaryUID      string
	baselineUID     string
	positionerNames []string
	positionerVals  []string

	columns map[string][]interface{}
	order   []string
	rows    int
}

// New returns a Writer per cfg.  The output file is not touched until the
// first scan is written.
func New(cfg Config) *Writer {
	w := &Writer{
		file:      specfile.New(cfg.Path, cfg.Mode),
		mode:      cfg.Mode,
		autoWrite: cfg.AutoWrite,
	}
	w.clearRun()
	return w
}

func (w *Writer) clearRun() {
	w.collecting = false
	w.uid = ""
	w.scanID = 0
	w.startTime = 0
	w.command = ""
	w.motors = nil
	w.detectors = nil
	w.metadata = nil
	w.comments = map[Phase][]string{}
	w.descriptors = map[string]string{}
	w.primaryUID = ""
	w.baselineUID = ""
	w.positionerNames = nil
	w.positionerVals = nil
	w.columns = map[string][]interface{}{}
	w.order = nil
	w.rows = 0
}

// Start opens a run and discards anything accumulated for a previous run
// that was never written.
func (w *Writer) Start(d document.Start) error {
	if d.UID == "" {
		return errors.Wrap(document.ErrMissingUID, "specwriter")
	}
	w.clearRun()
	w.collecting = true
	w.uid = d.UID
	w.scanID = d.ScanID
	w.startTime = d.Time
	w.motors = util.UniqueString(d.Motors)
	w.detectors = util.UniqueString(d.Detectors)
	for _, k := range d.MetadataKeys() {
		w.metadata = append(w.metadata, specfile.MD{Key: k, Value: renderMD(d.Metadata[k])})
	}
	if len(w.buffered) > 0 {
		w.comments[PhaseStart] = append(w.comments[PhaseStart], w.buffered...)
		w.buffered = nil
	}
	// the uid comment doubles as the duplicate-detection marker in the file
	w.cmtAt(PhaseStart, d.Time, "uid = "+d.UID)
	w.command = ReconstructCommand(d)
	return nil
}

// Descriptor establishes the column table for the primary stream and the
// positioner table for the baseline stream.  Other streams are ignored.
// A descriptor with no open run is a no-op.
func (w *Writer) Descriptor(d document.Descriptor) error {
	if !w.collecting {
		return nil
	}
	if stream, seen := w.descriptors[d.UID]; seen {
		return errors.Errorf("specwriter: duplicate descriptor %s for stream %q", d.UID, stream)
	}
	w.descriptors[d.UID] = d.Name
	switch d.Name {
	case primaryStream:
		if w.primaryUID != "" {
			return errors.Errorf("specwriter: second primary descriptor %s in run %s", d.UID, w.uid)
		}
		w.primaryUID = d.UID
		keys := d.KeyNames()
		for _, k := range keys {
			w.columns[k] = nil
		}
		w.columns[epochCol] = nil
		w.columns[epochFloatCol] = nil
		w.order = columnOrder(keys, w.motors, w.detectors)
	case baselineStream:
		w.baselineUID = d.UID
		w.positionerNames = d.KeyNames()
	}
	return nil
}

// Event appends one row to the column table.  Events referencing a stream
// the writer does not track, or carrying data keys that do not match the
// established column set, are dropped without error.
func (w *Writer) Event(e document.Event) error {
	if !w.collecting {
		return nil
	}
	if w.baselineUID != "" && e.Descriptor == w.baselineUID {
		if w.positionerVals == nil {
			for _, name := range w.positionerNames {
				w.positionerVals = append(w.positionerVals, fmt.Sprint(e.Data[name]))
			}
		}
		return nil
	}
	if w.primaryUID == "" || e.Descriptor != w.primaryUID {
		return nil
	}
	// the declared keys must match the column set exactly, or the whole
	// event is discarded rather than corrupting the table
	if len(e.Data) != len(w.columns)-2 {
		return nil
	}
	for k := range e.Data {
		if k == epochCol || k == epochFloatCol {
			return nil
		}
		if _, ok := w.columns[k]; !ok {
			return nil
		}
	}
	delta := e.Time - w.startTime
	for k, v := range e.Data {
		w.columns[k] = append(w.columns[k], v)
	}
	w.columns[epochCol] = append(w.columns[epochCol], int(math.Round(delta)))
	w.columns[epochFloatCol] = append(w.columns[epochFloatCol], delta)
	w.rows++
	return nil
}

// Stop closes the run, records the exit status and event counts as stop
// phase comments, and writes the scan block unless AutoWrite is off.
func (w *Writer) Stop(d document.Stop) error {
	if !w.collecting {
		return nil
	}
	status := d.ExitStatus
	if status == "" {
		status = "not available"
	}
	if len(d.NumEvents) > 0 {
		keys := make([]string, 0, len(d.NumEvents))
		for k := range d.NumEvents {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.cmtAt(PhaseStop, d.Time, fmt.Sprintf("num_events_%s = %d", k, d.NumEvents[k]))
		}
	}
	w.cmtAt(PhaseStop, d.Time, "exit_status = "+status)
	w.collecting = false
	if w.autoWrite {
		return w.WriteScan()
	}
	return nil
}

// Resource records an external-data reference as a comment.
func (w *Writer) Resource(r document.Resource) error {
	if !w.collecting {
		return nil
	}
	w.cmtAt(PhaseResource, float64(time.Now().Unix()), "resource uid = "+r.UID)
	return nil
}

// Datum records an external-datum reference as a comment.
func (w *Writer) Datum(d document.Datum) error {
	if !w.collecting {
		return nil
	}
	w.cmtAt(PhaseDatum, float64(time.Now().Unix()), "datum id = "+d.ID)
	return nil
}

// PutComment adds a free-text annotation to the given phase of the run in
// progress.  With no run open the comment is buffered and merged into the
// next run's start phase.
func (w *Writer) PutComment(phase Phase, text string) error {
	if !knownPhases[phase] {
		return errors.Errorf("specwriter: unknown comment phase %q", phase)
	}
	line := fmt.Sprintf("%s.  %s", specfile.FmtDate(time.Now()), text)
	if !w.collecting {
		w.buffered = append(w.buffered, line)
		return nil
	}
	w.comments[phase] = append(w.comments[phase], line)
	return nil
}

// WriteScan serializes the most recently accumulated run and appends it to
// the output file, writing the file header first if needed.  A run whose
// uid already appears in the file is a hard error and nothing is written.
func (w *Writer) WriteScan() error {
	if w.uid == "" {
		return errors.New("specwriter: no run to write")
	}
	date := specfile.FmtDate(epochTime(w.startTime))
	scan := specfile.Scan{
		UID:            w.uid,
		Command:        w.command,
		Date:           date,
		HeaderComments: append(append([]string{}, w.comments[PhaseStart]...), w.comments[PhaseDescriptor]...),
		Metadata:       w.metadata,
		Positioners:    w.positionerVals,
		Labels:         w.order,
		Rows:           w.tableRows(),
	}
	for _, p := range []Phase{PhaseEvent, PhaseResource, PhaseDatum, PhaseStop} {
		scan.TrailComments = append(scan.TrailComments, w.comments[p]...)
	}
	hdr := specfile.Header{
		Filename:    w.file.Path,
		Epoch:       int64(w.startTime),
		Date:        date,
		Comment:     headerComment(),
		Positioners: w.positionerNames,
	}
	return w.file.WriteScan(hdr, scan)
}

func (w *Writer) tableRows() [][]interface{} {
	rows := make([][]interface{}, w.rows)
	for i := 0; i < w.rows; i++ {
		row := make([]interface{}, len(w.order))
		for j, col := range w.order {
			row[j] = w.columns[col][i]
		}
		rows[i] = row
	}
	return rows
}

// NewFile points the writer at a new output file, re-arming the header
// state machine.  It fails if a run is in progress.
func (w *Writer) NewFile(path string) error {
	if w.collecting {
		return errors.New("specwriter: cannot switch files while a run is in progress")
	}
	w.file = specfile.New(path, w.mode)
	return nil
}

// Filename returns the path of the output file.
func (w *Writer) Filename() string { return w.file.Path }

// Collecting reports whether a run is open.
func (w *Writer) Collecting() bool { return w.collecting }

// UID returns the identifier of the run being (or last) accumulated.
func (w *Writer) UID() string { return w.uid }

// ScanID returns the scan number of the run being (or last) accumulated.
func (w *Writer) ScanID() int { return w.scanID }

// Rows returns the number of accepted events for the current run.
func (w *Writer) Rows() int { return w.rows }

func (w *Writer) cmtAt(phase Phase, epoch float64, text string) {
	line := fmt.Sprintf("%s.  %s", specfile.FmtDate(epochTime(epoch)), text)
	w.comments[phase] = append(w.comments[phase], line)
}

func epochTime(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func headerComment() string {
	uname := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		uname = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("specd  user = %s  host = %s", uname, host)
}

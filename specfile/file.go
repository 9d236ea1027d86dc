package specfile

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"time"
)

// Mode selects the behavior when the header manager finds the target file
// already populated.
type Mode int

const (
	// ErrorOnExisting refuses to write a header into a non-empty file.
	ErrorOnExisting Mode = iota

	// AppendExisting continues a populated file: a separator line and a
	// fresh #F header block are appended.
	AppendExisting
)

// DuplicateRunError is returned when a scan's run identifier already
// appears in the target file.  It indicates data-integrity risk (typically
// a re-subscribed callback) and must never be swallowed.
type DuplicateRunError struct {
	UID  string
	Path string
}

func (e DuplicateRunError) Error() string {
	return fmt.Sprintf("specfile: run %s already recorded in %s", e.UID, e.Path)
}

// HeaderCollisionError is returned in ErrorOnExisting mode when the target
// file already has content.
type HeaderCollisionError struct {
	Path string
}

func (e HeaderCollisionError) Error() string {
	return fmt.Sprintf("specfile: %s exists and is not empty; refusing to write a new header", e.Path)
}

// DefaultName generates a file name from the current wall-clock time,
// e.g. 20250619-122155.dat.
func DefaultName() string {
	return time.Now().Format("20060102-150405") + ".dat"
}

// File manages one SPEC data file on disk.  The file is opened, written
// and closed on every scan write; no handle is held between calls.  There
// is no locking: a single writer process is assumed, and concurrent
// writers would defeat the read-then-append duplicate check.
type File struct {
	// Path is the target file.  Empty at construction means DefaultName.
	Path string

	// Mode picks the header collision behavior.
	Mode Mode

	headerWritten bool
}

// New returns a File for path.  An empty path selects a generated
// time-stamped name in the working directory.
func New(path string, mode Mode) *File {
	if path == "" {
		path = DefaultName()
	}
	return &File{Path: path, Mode: mode}
}

// WriteHeader writes the file preamble.  At most one header is written per
// File; later calls are no-ops.  A populated pre-existing file either
// fails (ErrorOnExisting) or receives a separator plus a fresh header
// block (AppendExisting).
func (f *File) WriteHeader(h Header) error {
	if f.headerWritten {
		return nil
	}
	content, err := f.read()
	if err != nil {
		return err
	}
	if len(content) > 0 && f.Mode == ErrorOnExisting {
		return HeaderCollisionError{Path: f.Path}
	}
	if h.Filename == "" {
		h.Filename = f.Path
	}
	block := h.Render()
	if len(content) > 0 {
		// separate from whatever was there before
		block = append([]byte("\n"), block...)
	}
	if err := f.append(block); err != nil {
		return err
	}
	f.headerWritten = true
	return nil
}

// WriteScan appends one scan block, writing the file header first if this
// File has not yet done so.  The existing file content is searched for the
// scan's run identifier beforehand; finding it is a hard error and nothing
// is written.
func (f *File) WriteScan(h Header, s Scan) error {
	content, err := f.read()
	if err != nil {
		return err
	}
	if s.UID != "" && bytes.Contains(content, []byte(s.UID)) {
		return DuplicateRunError{UID: s.UID, Path: f.Path}
	}
	if !f.headerWritten {
		if err := f.WriteHeader(h); err != nil {
			return err
		}
	}
	return f.append(s.Render())
}

// HeaderWritten reports whether this File already wrote its preamble.
func (f *File) HeaderWritten() bool {
	return f.headerWritten
}

func (f *File) read() ([]byte, error) {
	content, err := ioutil.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return content, nil
}

func (f *File) append(p []byte) error {
	fid, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer fid.Close()
	_, err = fid.Write(p)
	return err
}

// Package document defines the typed records of an acquisition document
// stream and a router that dispatches them to a handler.
//
// A run is delimited by a start and a stop document.  Between the two, one
// descriptor per stream declares the data schema, and each event carries one
// row of data referencing its descriptor by uid.
package document

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Kind enumerates the document kinds that may appear in a stream.
type Kind int

// The closed set of document kinds.
const (
	KindUnknown Kind = iota
	KindStart
	KindDescriptor
	KindEvent
	KindStop
	KindResource
	KindDatum
	KindBulkEvents
)

var kindNames = map[Kind]string{
	KindStart:      "start",
	KindDescriptor: "descriptor",
	KindEvent:      "event",
	KindStop:       "stop",
	KindResource:   "resource",
	KindDatum:      "datum",
	KindBulkEvents: "bulk_events",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind converts a document kind string to a Kind.  Unrecognized
// strings map to KindUnknown with ok == false.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// ErrMissingUID indicates a document that is required to carry a unique
// identifier did not.  This is an upstream bug and is never recovered from.
var ErrMissingUID = errors.New("document: missing mandatory uid field")

// knownStartProperties are start document fields that are held in dedicated
// struct fields rather than copied into the free-form metadata.
var knownStartProperties = map[string]bool{
	"uid":       true,
	"time":      true,
	"scan_id":   true,
	"plan_name": true,
	"plan_type": true,
	"plan_args": true,
	"detectors": true,
	"motors":    true,
	"hints":     true,
	"versions":  true,
}

// Start marks the beginning of a run.
type Start struct {
	UID       string
	Time      float64
	ScanID    int
	PlanName  string
	PlanArgs  map[string]interface{}
	Detectors []string
	Motors    []string

	// Metadata holds every other field of the document, verbatim.
	Metadata map[string]interface{}
}

// MetadataKeys returns the metadata keys in lexicographic order.
func (s Start) MetadataKeys() []string {
	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DataKey describes one column declared by a descriptor.
type DataKey struct {
	Name   string
	DType  string
	Units  string
	Source string
	Shape  []int
}

// Descriptor declares the schema of a named stream.
type Descriptor struct {
	UID      string
	RunStart string
	Name     string

	// DataKeys preserves the declared column order.
	DataKeys []DataKey
}

// KeyNames returns the declared column names in declaration order.
func (d Descriptor) KeyNames() []string {
	names := make([]string, len(d.DataKeys))
	for i, dk := range d.DataKeys {
		names[i] = dk.Name
	}
	return names
}

// Event carries one row of data for the stream whose descriptor it references.
type Event struct {
	Descriptor string
	Time       float64
	SeqNum     int
	Data       map[string]interface{}
}

// Stop marks the end of a run.
type Stop struct {
	UID        string
	RunStart   string
	Time       float64
	ExitStatus string
	Reason     string
	NumEvents  map[string]int
}

// Resource references external data outside the event stream.
type Resource struct {
	UID  string
	Spec string
	Root string
}

// Datum references one slice of a resource.
type Datum struct {
	ID       string
	Resource string
}

// ParseStart converts a raw document mapping into a Start.  Every field not
// in the known property set lands in Metadata.
func ParseStart(doc map[string]interface{}) (Start, error) {
	s := Start{}
	uid, ok := asString(doc["uid"])
	if !ok || uid == "" {
		return s, errors.Wrap(ErrMissingUID, "start")
	}
	s.UID = uid
	s.Time, _ = asFloat(doc["time"])
	s.ScanID, _ = asInt(doc["scan_id"])
	s.PlanName, _ = asString(doc["plan_name"])
	if s.PlanName == "" {
		s.PlanName, _ = asString(doc["plan_type"])
	}
	if m, ok := doc["plan_args"].(map[string]interface{}); ok {
		s.PlanArgs = m
	}
	s.Detectors = asStringSlice(doc["detectors"])
	s.Motors = asStringSlice(doc["motors"])
	s.Metadata = map[string]interface{}{}
	for k, v := range doc {
		if knownStartProperties[k] {
			continue
		}
		s.Metadata[k] = v
	}
	return s, nil
}

// ParseDescriptor converts a raw document mapping into a Descriptor.
// keyOrder, if non-nil, pins the declared order of data_keys; otherwise the
// keys are taken in lexicographic order (a mapping decoded through
// map[string]interface{} has no order of its own).
func ParseDescriptor(doc map[string]interface{}, keyOrder []string) (Descriptor, error) {
	d := Descriptor{}
	uid, ok := asString(doc["uid"])
	if !ok || uid == "" {
		return d, errors.Wrap(ErrMissingUID, "descriptor")
	}
	d.UID = uid
	d.RunStart, _ = asString(doc["run_start"])
	d.Name, _ = asString(doc["name"])
	raw, _ := doc["data_keys"].(map[string]interface{})
	if keyOrder == nil {
		keyOrder = make([]string, 0, len(raw))
		for k := range raw {
			keyOrder = append(keyOrder, k)
		}
		sort.Strings(keyOrder)
	}
	for _, name := range keyOrder {
		dk := DataKey{Name: name}
		if schema, ok := raw[name].(map[string]interface{}); ok {
			dk.DType, _ = asString(schema["dtype"])
			dk.Units, _ = asString(schema["units"])
			dk.Source, _ = asString(schema["source"])
			if shp, ok := schema["shape"].([]interface{}); ok {
				for _, s := range shp {
					if n, ok := asInt(s); ok {
						dk.Shape = append(dk.Shape, n)
					}
				}
			}
		}
		d.DataKeys = append(d.DataKeys, dk)
	}
	return d, nil
}

// ParseEvent converts a raw document mapping into an Event.
func ParseEvent(doc map[string]interface{}) (Event, error) {
	e := Event{}
	desc, ok := asString(doc["descriptor"])
	if !ok || desc == "" {
		return e, errors.Wrap(ErrMissingUID, "event: descriptor reference")
	}
	e.Descriptor = desc
	e.Time, _ = asFloat(doc["time"])
	e.SeqNum, _ = asInt(doc["seq_num"])
	if m, ok := doc["data"].(map[string]interface{}); ok {
		e.Data = m
	} else {
		e.Data = map[string]interface{}{}
	}
	return e, nil
}

// ParseStop converts a raw document mapping into a Stop.
func ParseStop(doc map[string]interface{}) (Stop, error) {
	s := Stop{}
	s.UID, _ = asString(doc["uid"])
	s.RunStart, _ = asString(doc["run_start"])
	s.Time, _ = asFloat(doc["time"])
	s.ExitStatus, _ = asString(doc["exit_status"])
	s.Reason, _ = asString(doc["reason"])
	if m, ok := doc["num_events"].(map[string]interface{}); ok {
		s.NumEvents = map[string]int{}
		for k, v := range m {
			if n, ok := asInt(v); ok {
				s.NumEvents[k] = n
			}
		}
	}
	return s, nil
}

// ParseResource converts a raw document mapping into a Resource.
func ParseResource(doc map[string]interface{}) (Resource, error) {
	r := Resource{}
	uid, ok := asString(doc["uid"])
	if !ok || uid == "" {
		return r, errors.Wrap(ErrMissingUID, "resource")
	}
	r.UID = uid
	r.Spec, _ = asString(doc["spec"])
	r.Root, _ = asString(doc["root"])
	return r, nil
}

// ParseDatum converts a raw document mapping into a Datum.
func ParseDatum(doc map[string]interface{}) (Datum, error) {
	d := Datum{}
	id, ok := asString(doc["datum_id"])
	if !ok || id == "" {
		id, ok = asString(doc["uid"])
		if !ok || id == "" {
			return d, errors.Wrap(ErrMissingUID, "datum")
		}
	}
	d.ID = id
	d.Resource, _ = asString(doc["resource"])
	return d, nil
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func asInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}

func asStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	}
	return nil
}

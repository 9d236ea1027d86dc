package document

import (
	"bytes"
	"encoding/json"
	"log"

	"github.com/pkg/errors"
)

// Handler consumes the documents of a run, one call per document, in
// stream order.
type Handler interface {
	Start(Start) error
	Descriptor(Descriptor) error
	Event(Event) error
	Stop(Stop) error
}

// ExternalHandler is implemented by handlers that care about external-data
// documents.  Handlers that do not implement it have resource and datum
// documents silently skipped.
type ExternalHandler interface {
	Resource(Resource) error
	Datum(Datum) error
}

// Router dispatches raw (kind, payload) pairs to a Handler.  Unknown kinds
// are logged and skipped; they never fail the stream.
type Router struct {
	H Handler
}

// Receive parses one raw document and invokes the matching handler method.
// The error return carries handler failures and malformed-document errors
// for known kinds; unknown kinds return nil.
func (r *Router) Receive(kind string, doc map[string]interface{}) error {
	return r.receive(kind, doc, nil)
}

// ReceiveJSON is Receive for a document still in wire form.  For descriptor
// documents the declared order of data_keys is preserved from the raw bytes,
// which a decode through map[string]interface{} would lose.
func (r *Router) ReceiveJSON(kind string, raw []byte) error {
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(err, "document: decoding "+kind)
	}
	var keyOrder []string
	if kind == KindDescriptor.String() {
		keyOrder = orderedFieldKeys(raw, "data_keys")
	}
	return r.receive(kind, doc, keyOrder)
}

func (r *Router) receive(kind string, doc map[string]interface{}, keyOrder []string) error {
	k, ok := ParseKind(kind)
	if !ok {
		log.Printf("document: unknown kind %q, skipped", kind)
		return nil
	}
	switch k {
	case KindStart:
		d, err := ParseStart(doc)
		if err != nil {
			return err
		}
		return r.H.Start(d)
	case KindDescriptor:
		d, err := ParseDescriptor(doc, keyOrder)
		if err != nil {
			return err
		}
		return r.H.Descriptor(d)
	case KindEvent:
		d, err := ParseEvent(doc)
		if err != nil {
			return err
		}
		return r.H.Event(d)
	case KindStop:
		d, err := ParseStop(doc)
		if err != nil {
			return err
		}
		return r.H.Stop(d)
	case KindResource:
		eh, ok := r.H.(ExternalHandler)
		if !ok {
			return nil
		}
		d, err := ParseResource(doc)
		if err != nil {
			return err
		}
		return eh.Resource(d)
	case KindDatum:
		eh, ok := r.H.(ExternalHandler)
		if !ok {
			return nil
		}
		d, err := ParseDatum(doc)
		if err != nil {
			return err
		}
		return eh.Datum(d)
	case KindBulkEvents:
		// accepted for forward compatibility, there is nothing to record
		log.Printf("document: bulk_events not supported, skipped")
		return nil
	}
	return nil
}

// orderedFieldKeys walks raw JSON and returns the keys of the top-level
// object field named by field, in the order they appear on the wire.
// Returns nil if the field is missing or not an object.
func orderedFieldKeys(raw []byte, field string) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	// enter the top-level object
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		if key != field {
			// skip the value entirely
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil
		}
		var keys []string
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil
			}
			k, ok := keyTok.(string)
			if !ok {
				return nil
			}
			keys = append(keys, k)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
		}
		return keys
	}
	return nil
}

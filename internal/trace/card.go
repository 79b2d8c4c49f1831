package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/stanhf/internal/ir"
)

// MetadataKey is the card key holding the provenance map.
const MetadataKey = "_metadata"

// ErrCodeDuplicateKey is the error code for DuplicateKeyError.
const ErrCodeDuplicateKey = "E230"

// Entry is one key of a data or init card.
type Entry struct {
	Key    string
	Value  ir.Value
	Origin Origin
}

// Card is an ordered set of entries with unique keys. The zero value is an
// empty card ready to use.
type Card struct {
	entries []Entry
	index   map[string]int
}

// NewCard creates a card whose entries all come from origin.
// pairs alternates key (string) and value (ir.Value); it panics on a
// malformed list since that is a programming error.
func NewCard(origin Origin, pairs ...any) *Card {
	if len(pairs)%2 != 0 {
		panic("trace.NewCard: odd number of key/value arguments")
	}
	c := &Card{}
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("trace.NewCard: key %d is %T, want string", i/2, pairs[i]))
		}
		val, ok := pairs[i+1].(ir.Value)
		if !ok {
			panic(fmt.Sprintf("trace.NewCard: value for %q is %T, want ir.Value", key, pairs[i+1]))
		}
		if err := c.Add(Entry{Key: key, Value: val, Origin: origin}); err != nil {
			panic(err)
		}
	}
	return c
}

// Add appends an entry. Adding a key that is already present returns a
// DuplicateKeyError and leaves the card unchanged.
func (c *Card) Add(e Entry) error {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[e.Key]; ok {
		return &DuplicateKeyError{Key: e.Key, First: c.entries[i].Origin, Second: e.Origin}
	}
	c.index[e.Key] = len(c.entries)
	c.entries = append(c.entries, e)
	return nil
}

// Len returns the number of entries.
func (c *Card) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns entries in insertion order.
func (c *Card) Entries() []Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// Get returns the value stored under key.
func (c *Card) Get(key string) (ir.Value, bool) {
	if c == nil {
		return nil, false
	}
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.entries[i].Value, true
}

// Keys returns keys in insertion order.
func (c *Card) Keys() []string {
	keys := make([]string, 0, c.Len())
	for _, e := range c.Entries() {
		keys = append(keys, e.Key)
	}
	return keys
}

// Values returns the numeric payload without provenance.
func (c *Card) Values() ir.Object {
	obj := make(ir.Object, c.Len())
	for _, e := range c.Entries() {
		obj[e.Key] = e.Value
	}
	return obj
}

// Metadata returns the provenance map: key to origin.
func (c *Card) Metadata() map[string]string {
	md := make(map[string]string, c.Len())
	for _, e := range c.Entries() {
		md[e.Key] = string(e.Origin)
	}
	return md
}

// Merge combines cards in order. Every key collision is reported; the
// result is nil when any collision occurs.
func Merge(cards ...*Card) (*Card, error) {
	out := &Card{}
	var result *multierror.Error
	for _, c := range cards {
		for _, e := range c.Entries() {
			if err := out.Add(e); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// JSON encodes the card with sorted keys and 4-space indentation. When
// withMetadata is set the provenance map is included under MetadataKey.
func (c *Card) JSON(withMetadata bool) ([]byte, error) {
	obj := c.Values()
	if _, clash := obj[MetadataKey]; clash {
		return nil, &DuplicateKeyError{Key: MetadataKey}
	}

	var payload any = obj
	if withMetadata {
		payload = cardWithMetadata{values: obj, metadata: c.Metadata()}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// cardWithMetadata serializes values and the provenance map as one object.
type cardWithMetadata struct {
	values   ir.Object
	metadata map[string]string
}

func (c cardWithMetadata) MarshalJSON() ([]byte, error) {
	md := make(ir.Object, len(c.metadata))
	for k, v := range c.metadata {
		md[k] = ir.String(v)
	}
	obj := make(ir.Object, len(c.values)+1)
	for k, v := range c.values {
		obj[k] = v
	}
	obj[MetadataKey] = md
	return obj.MarshalJSON()
}

// DuplicateKeyError reports two entities emitting the same card key. It
// always indicates a naming bug, so it is fatal.
type DuplicateKeyError struct {
	Key    string
	First  Origin
	Second Origin
}

func (e *DuplicateKeyError) Error() string {
	if e.First == "" && e.Second == "" {
		return fmt.Sprintf("[%s] duplicate card key %q", ErrCodeDuplicateKey, e.Key)
	}
	return fmt.Sprintf("[%s] duplicate card key %q (%s, %s)", ErrCodeDuplicateKey, e.Key, e.First, e.Second)
}

// IsDuplicateKeyError reports whether err is or wraps a DuplicateKeyError,
// including inside a multierror.
func IsDuplicateKeyError(err error) bool {
	var de *DuplicateKeyError
	return errors.As(err, &de)
}

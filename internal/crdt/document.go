package crdt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Register is a last-writer-wins cell of a Document.
type Register struct {
	ReplicaID string `msgpack:"r"`
	Value     []byte `msgpack:"v"`
	Timestamp int64  `msgpack:"t"`
	Deleted   bool   `msgpack:"d"`
}

// wins reports whether r beats other. Timestamp first, then ReplicaID
// lexicographically; identical stamps fall back to the payload so the
// result never depends on argument order.
func (r Register) wins(other Register) bool {
	if r.Timestamp != other.Timestamp {
		return r.Timestamp > other.Timestamp
	}
	if r.ReplicaID != other.ReplicaID {
		return r.ReplicaID > other.ReplicaID
	}
	if r.Deleted != other.Deleted {
		return r.Deleted
	}
	return bytes.Compare(r.Value, other.Value) > 0
}

// Document представляет LWW-map: каждое поле независимо разрешается
// по правилу Last-Write-Wins. Слияние документов ассоциативно,
// коммутативно и идемпотентно.
type Document struct {
	Fields map[string]Register `msgpack:"f"`
}

// NewDocument создает пустой документ.
func NewDocument() *Document {
	return &Document{Fields: make(map[string]Register)}
}

// Set записывает JSON значение поля.
func (d *Document) Set(key string, value any, clock *LamportClock) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal field %q: %w", key, err)
	}

	d.apply(key, Register{
		Value:     raw,
		Timestamp: clock.Tick(),
		ReplicaID: clock.ReplicaID(),
	})
	return nil
}

// Delete помечает поле как удалённое (tombstone регистра).
func (d *Document) Delete(key string, clock *LamportClock) {
	d.apply(key, Register{
		Deleted:   true,
		Timestamp: clock.Tick(),
		ReplicaID: clock.ReplicaID(),
	})
}

// Get возвращает значение поля, если оно есть и не удалено.
func (d *Document) Get(key string) (json.RawMessage, bool) {
	reg, ok := d.Fields[key]
	if !ok || reg.Deleted {
		return nil, false
	}
	return json.RawMessage(reg.Value), true
}

// Merge вливает other в d. Возвращает true, если d изменился.
func (d *Document) Merge(other *Document) bool {
	changed := false
	for key, reg := range other.Fields {
		if d.apply(key, reg) {
			changed = true
		}
	}
	return changed
}

// MaxTimestamp returns the highest register timestamp, used to advance a
// local clock past everything it has seen.
func (d *Document) MaxTimestamp() int64 {
	var maxTs int64
	for _, reg := range d.Fields {
		if reg.Timestamp > maxTs {
			maxTs = reg.Timestamp
		}
	}
	return maxTs
}

// Attributes returns the live fields as raw JSON values.
func (d *Document) Attributes() map[string]json.RawMessage {
	attrs := make(map[string]json.RawMessage, len(d.Fields))
	for key, reg := range d.Fields {
		if reg.Deleted {
			continue
		}
		attrs[key] = append(json.RawMessage(nil), reg.Value...)
	}
	return attrs
}

// Keys returns the live field names in sorted order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.Fields))
	for key, reg := range d.Fields {
		if !reg.Deleted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Encode сериализует документ в msgpack с сортировкой ключей,
// поэтому равные документы дают равные байты.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode разбирает документ. Пустые данные дают пустой документ.
func Decode(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}

	if err := msgpack.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Fields == nil {
		doc.Fields = make(map[string]Register)
	}
	return doc, nil
}

func (d *Document) apply(key string, reg Register) bool {
	existing, ok := d.Fields[key]
	if ok && !reg.wins(existing) {
		return false
	}
	d.Fields[key] = reg
	return true
}

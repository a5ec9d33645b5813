package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/searchlite/searchlite/internal/engine/index"
	"github.com/searchlite/searchlite/internal/engine/trie"
	"github.com/searchlite/searchlite/pkg/errors"
)

// Snapshot file layout: an 8-byte header (magic, format version), a body of
// little-endian typed records, and a CRC32-IEEE footer over the body. The
// body encodes, in order: schema, docCount, totalDocLength, documents,
// lengths, postings, facet entries, numeric entries. Strings are UTF-8 with
// a uint32 length prefix; documents are JSON payloads inside the binary
// frame; floats are IEEE-754 bits. All map iterations are sorted so a
// snapshot of the same state is byte-identical.
const (
	snapshotMagic   uint32 = 0x534C5458 // "SLTX"
	snapshotVersion uint32 = 1
)

// SnapshotExtension is the file suffix of collection snapshots, used by the
// registry's `<collection>.index.slx` naming scheme.
const SnapshotExtension = "slx"

type facetValueKind byte

const (
	facetString facetValueKind = 's'
	facetNumber facetValueKind = 'n'
	facetBool   facetValueKind = 'b'
)

// Save writes the engine's complete state to path as one self-contained
// blob. The write is atomic: a temp file is renamed over the target only
// after a successful sync, so a failing save never corrupts an existing
// snapshot, and in-memory state is untouched either way.
func (e *Engine) Save(path string) error {
	e.mu.RLock()
	body, err := e.encodeBody()
	e.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(body))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	for _, chunk := range [][]byte{header[:], body, footer[:]} {
		if _, err := f.Write(chunk); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save and reconstructs a fresh engine,
// rebuilding the vocabulary trie from the inverted index. BM25 parameters
// are not persisted; the defaults apply.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	if len(data) < 12 {
		return nil, errors.Newf(errors.ErrCorruptSnapshot, 500, "%s: truncated (%d bytes)", path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != snapshotMagic {
		return nil, errors.Newf(errors.ErrCorruptSnapshot, 500, "%s: bad magic %x", path, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != snapshotVersion {
		return nil, errors.Newf(errors.ErrCorruptSnapshot, 500, "%s: unsupported format version %d", path, version)
	}
	body := data[8 : len(data)-4]
	wantCRC := binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.ChecksumIEEE(body); got != wantCRC {
		return nil, errors.Newf(errors.ErrCorruptSnapshot, 500, "%s: checksum mismatch", path)
	}

	e, err := decodeBody(body)
	if err != nil {
		return nil, errors.Newf(errors.ErrCorruptSnapshot, 500, "%s: %v", path, err)
	}
	return e, nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type snapshotWriter struct {
	buf bytes.Buffer
}

func (w *snapshotWriter) uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *snapshotWriter) uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *snapshotWriter) float64(v float64) {
	w.uint64(math.Float64bits(v))
}

func (w *snapshotWriter) bytes(b []byte) {
	w.uint32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *snapshotWriter) string(s string) {
	w.bytes([]byte(s))
}

func (e *Engine) encodeBody() ([]byte, error) {
	w := &snapshotWriter{}

	schemaJSON, err := json.Marshal(e.schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	w.bytes(schemaJSON)

	w.uint32(uint32(len(e.docs)))
	w.uint64(uint64(e.totalLength))

	docIDs := make([]string, 0, len(e.docs))
	for id := range e.docs {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	for _, id := range docIDs {
		docJSON, err := json.Marshal(e.docs[id])
		if err != nil {
			return nil, fmt.Errorf("marshaling document %q: %w", id, err)
		}
		w.string(id)
		w.bytes(docJSON)
	}

	for _, id := range docIDs {
		w.string(id)
		w.uint32(uint32(e.lengths[id]))
	}

	tokens := make([]string, 0, e.inverted.Len())
	e.inverted.Tokens(func(token string) { tokens = append(tokens, token) })
	sort.Strings(tokens)
	w.uint32(uint32(len(tokens)))
	for _, token := range tokens {
		postings := e.inverted.Postings(token)
		ids := make([]string, 0, len(postings))
		for id := range postings {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w.string(token)
		w.uint32(uint32(len(ids)))
		for _, id := range ids {
			positions := postings[id]
			w.string(id)
			w.uint32(uint32(len(positions)))
			for _, p := range positions {
				w.uint32(uint32(p))
			}
		}
	}

	encodeFacets(w, e.facets)
	encodeNumeric(w, e.numeric)

	return w.buf.Bytes(), nil
}

func encodeFacets(w *snapshotWriter, facets *index.Facet) {
	type valueEntry struct {
		value any
		docs  []string
	}
	byField := make(map[string][]valueEntry)
	facets.Walk(func(field string, value any, docIDs map[string]struct{}) {
		ids := make([]string, 0, len(docIDs))
		for id := range docIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		byField[field] = append(byField[field], valueEntry{value: value, docs: ids})
	})

	fields := make([]string, 0, len(byField))
	for field := range byField {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	w.uint32(uint32(len(fields)))
	for _, field := range fields {
		entries := byField[field]
		sort.Slice(entries, func(i, j int) bool {
			return formatFacetValue(entries[i].value) < formatFacetValue(entries[j].value)
		})
		w.string(field)
		w.uint32(uint32(len(entries)))
		for _, entry := range entries {
			switch v := entry.value.(type) {
			case string:
				w.buf.WriteByte(byte(facetString))
				w.string(v)
			case float64:
				w.buf.WriteByte(byte(facetNumber))
				w.float64(v)
			case bool:
				w.buf.WriteByte(byte(facetBool))
				if v {
					w.buf.WriteByte(1)
				} else {
					w.buf.WriteByte(0)
				}
			}
			w.uint32(uint32(len(entry.docs)))
			for _, id := range entry.docs {
				w.string(id)
			}
		}
	}
}

func encodeNumeric(w *snapshotWriter, numeric *index.Numeric) {
	byField := make(map[string][]index.NumericEntry)
	numeric.Walk(func(field string, entries []index.NumericEntry) {
		byField[field] = entries
	})
	fields := make([]string, 0, len(byField))
	for field := range byField {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	w.uint32(uint32(len(fields)))
	for _, field := range fields {
		entries := byField[field]
		w.string(field)
		w.uint32(uint32(len(entries)))
		// List order is preserved verbatim so equal values keep their
		// insertion-order tie break after a round trip.
		for _, entry := range entries {
			w.float64(entry.Value)
			w.string(entry.DocID)
		}
	}
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

type snapshotReader struct {
	data []byte
	off  int
}

func (r *snapshotReader) uint32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *snapshotReader) uint64() (uint64, error) {
	if r.off+8 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *snapshotReader) float64() (float64, error) {
	bits, err := r.uint64()
	return math.Float64frombits(bits), err
}

func (r *snapshotReader) byte() (byte, error) {
	if r.off+1 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *snapshotReader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if r.off+int(n) > len(r.data) {
		return nil, fmt.Errorf("truncated at offset %d", r.off)
	}
	b := r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *snapshotReader) string() (string, error) {
	b, err := r.bytes()
	return string(b), err
}

func decodeBody(body []byte) (*Engine, error) {
	r := &snapshotReader{data: body}

	schemaJSON, err := r.bytes()
	if err != nil {
		return nil, err
	}
	var schema Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	e, err := New(schema)
	if err != nil {
		return nil, fmt.Errorf("rebuilding engine: %w", err)
	}

	docCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	totalLength, err := r.uint64()
	if err != nil {
		return nil, err
	}
	e.totalLength = int(totalLength)

	for i := uint32(0); i < docCount; i++ {
		id, err := r.string()
		if err != nil {
			return nil, err
		}
		docJSON, err := r.bytes()
		if err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(docJSON, &doc); err != nil {
			return nil, fmt.Errorf("parsing document %q: %w", id, err)
		}
		e.docs[id] = doc
	}

	for i := uint32(0); i < docCount; i++ {
		id, err := r.string()
		if err != nil {
			return nil, err
		}
		length, err := r.uint32()
		if err != nil {
			return nil, err
		}
		if _, ok := e.docs[id]; !ok {
			return nil, fmt.Errorf("length entry for unknown document %q", id)
		}
		e.lengths[id] = int(length)
	}
	if len(e.lengths) != len(e.docs) {
		return nil, fmt.Errorf("length table has %d entries for %d documents", len(e.lengths), len(e.docs))
	}

	if err := decodePostings(r, e); err != nil {
		return nil, err
	}
	if err := decodeFacets(r, e.facets); err != nil {
		return nil, err
	}
	if err := decodeNumeric(r, e.numeric); err != nil {
		return nil, err
	}
	if r.off != len(r.data) {
		return nil, fmt.Errorf("%d trailing bytes", len(r.data)-r.off)
	}

	rebuildVocabulary(e.inverted, e.vocab)
	return e, nil
}

func decodePostings(r *snapshotReader, e *Engine) error {
	tokenCount, err := r.uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < tokenCount; i++ {
		token, err := r.string()
		if err != nil {
			return err
		}
		nDocs, err := r.uint32()
		if err != nil {
			return err
		}
		if nDocs == 0 {
			return fmt.Errorf("empty posting entry for token %q", token)
		}
		for j := uint32(0); j < nDocs; j++ {
			id, err := r.string()
			if err != nil {
				return err
			}
			nPos, err := r.uint32()
			if err != nil {
				return err
			}
			for k := uint32(0); k < nPos; k++ {
				p, err := r.uint32()
				if err != nil {
					return err
				}
				e.inverted.Append(token, id, int(p))
			}
		}
	}
	return nil
}

func decodeFacets(r *snapshotReader, facets *index.Facet) error {
	fieldCount, err := r.uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < fieldCount; i++ {
		field, err := r.string()
		if err != nil {
			return err
		}
		valueCount, err := r.uint32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < valueCount; j++ {
			kind, err := r.byte()
			if err != nil {
				return err
			}
			var value any
			switch facetValueKind(kind) {
			case facetString:
				value, err = r.string()
			case facetNumber:
				value, err = r.float64()
			case facetBool:
				var b byte
				b, err = r.byte()
				value = b == 1
			default:
				return fmt.Errorf("unknown facet value kind %q", kind)
			}
			if err != nil {
				return err
			}
			nDocs, err := r.uint32()
			if err != nil {
				return err
			}
			if nDocs == 0 {
				return fmt.Errorf("empty facet value set for field %q", field)
			}
			for k := uint32(0); k < nDocs; k++ {
				id, err := r.string()
				if err != nil {
					return err
				}
				facets.Add(field, value, id)
			}
		}
	}
	return nil
}

func decodeNumeric(r *snapshotReader, numeric *index.Numeric) error {
	fieldCount, err := r.uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < fieldCount; i++ {
		field, err := r.string()
		if err != nil {
			return err
		}
		n, err := r.uint32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < n; j++ {
			value, err := r.float64()
			if err != nil {
				return err
			}
			id, err := r.string()
			if err != nil {
				return err
			}
			numeric.Add(field, value, id)
		}
	}
	return nil
}

// rebuildVocabulary inserts every live token of the inverted index into the
// trie exactly once.
func rebuildVocabulary(inverted *index.Inverted, vocab *trie.Trie) {
	inverted.Tokens(func(token string) {
		vocab.Insert(token)
	})
}

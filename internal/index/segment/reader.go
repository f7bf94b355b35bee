package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inboxforge/inboxforge/internal/index"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

func corruptf(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrCorruptIndex, http.StatusInternalServerError, format, args...)
}

type fieldSection struct {
	postOff int64
	dict    []DictEntry
	docs    map[string]struct{}
}

// Reader provides term lookups against one immutable segment file.
type Reader struct {
	file   *os.File
	path   string
	seq    uint64
	fields map[index.Field]*fieldSection
	meta   map[string]index.DocMeta
}

// OpenReader memory-maps a segment's dictionaries and metadata, validating
// magic bytes, version, bounds, and checksums. Postings stay on disk and
// are read on demand.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readSegment(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	size := info.Size()
	if size < segHeaderSize {
		return nil, corruptf("segment %s truncated: %d bytes", path, size)
	}
	header := make([]byte, segHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, corruptf("segment %s: reading header: %v", path, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != SegmentMagic {
		return nil, corruptf("segment %s: bad magic %#x", path, magic)
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != FormatVersion {
		return nil, corruptf("segment %s: unsupported version %d", path, version)
	}
	seq := binary.LittleEndian.Uint64(header[8:16])
	tableOff := int64(binary.LittleEndian.Uint64(header[16:24]))
	tableLen := int64(binary.LittleEndian.Uint64(header[24:32]))
	tableCRC := binary.LittleEndian.Uint32(header[32:36])
	if tableOff < segHeaderSize || tableLen <= 0 || tableOff+tableLen > size {
		return nil, corruptf("segment %s: table out of bounds", path)
	}
	tableData := make([]byte, tableLen)
	if _, err := f.ReadAt(tableData, tableOff); err != nil {
		return nil, corruptf("segment %s: reading table: %v", path, err)
	}
	if crc32.ChecksumIEEE(tableData) != tableCRC {
		return nil, corruptf("segment %s: table checksum mismatch", path)
	}
	var table segTable
	if err := json.Unmarshal(tableData, &table); err != nil {
		return nil, corruptf("segment %s: parsing table: %v", path, err)
	}

	r := &Reader{
		file:   f,
		path:   path,
		seq:    seq,
		fields: make(map[index.Field]*fieldSection, len(table.Fields)),
	}
	for _, ft := range table.Fields {
		field, ok := index.ParseField(ft.Field)
		if !ok {
			return nil, corruptf("segment %s: unknown field %q", path, ft.Field)
		}
		if ft.DictOff < segHeaderSize || ft.DictLen < 0 || ft.DictOff+ft.DictLen > size {
			return nil, corruptf("segment %s: %s dictionary out of bounds", path, field)
		}
		dictData := make([]byte, ft.DictLen)
		if _, err := f.ReadAt(dictData, ft.DictOff); err != nil {
			return nil, corruptf("segment %s: reading %s dictionary: %v", path, field, err)
		}
		if crc32.ChecksumIEEE(dictData) != ft.DictCRC {
			return nil, corruptf("segment %s: %s dictionary checksum mismatch", path, field)
		}
		var dict []DictEntry
		if err := json.Unmarshal(dictData, &dict); err != nil {
			return nil, corruptf("segment %s: parsing %s dictionary: %v", path, field, err)
		}
		docs := make(map[string]struct{}, len(ft.Docs))
		for _, id := range ft.Docs {
			docs[id] = struct{}{}
		}
		r.fields[field] = &fieldSection{postOff: ft.PostOff, dict: dict, docs: docs}
	}

	if table.MetaOff < segHeaderSize || table.MetaLen < 0 || table.MetaOff+table.MetaLen > size {
		return nil, corruptf("segment %s: metadata out of bounds", path)
	}
	metaData := make([]byte, table.MetaLen)
	if _, err := f.ReadAt(metaData, table.MetaOff); err != nil {
		return nil, corruptf("segment %s: reading metadata: %v", path, err)
	}
	if crc32.ChecksumIEEE(metaData) != table.MetaCRC {
		return nil, corruptf("segment %s: metadata checksum mismatch", path)
	}
	if err := json.Unmarshal(metaData, &r.meta); err != nil {
		return nil, corruptf("segment %s: parsing metadata: %v", path, err)
	}
	return r, nil
}

func (r *Reader) Seq() uint64 { return r.seq }

func (r *Reader) Path() string { return r.path }

// Postings returns the posting list for (field, term), or nil if the term
// is absent from this segment.
func (r *Reader) Postings(field index.Field, term string) (index.PostingList, error) {
	sec, ok := r.fields[field]
	if !ok {
		return nil, nil
	}
	entry, ok := findTerm(sec.dict, term)
	if !ok {
		return nil, nil
	}
	data := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(data, sec.postOff+entry.Offset); err != nil {
		return nil, corruptf("segment %s: reading postings for %q: %v", r.path, term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, corruptf("segment %s: parsing postings for %q: %v", r.path, term, err)
	}
	return postings, nil
}

// TermsWithPrefix scans the field's sorted dictionary and returns every
// term starting with prefix.
func (r *Reader) TermsWithPrefix(field index.Field, prefix string) []string {
	sec, ok := r.fields[field]
	if !ok {
		return nil
	}
	return scanPrefix(sec.dict, prefix)
}

// Terms returns every term in the field's dictionary, used by merges.
func (r *Reader) Terms(field index.Field) []string {
	sec, ok := r.fields[field]
	if !ok {
		return nil
	}
	terms := make([]string, len(sec.dict))
	for i, e := range sec.dict {
		terms[i] = e.Term
	}
	return terms
}

// Docs returns the ids of documents this segment's commit touched in the
// given field. These shadow the same documents' postings in older sources.
func (r *Reader) Docs(field index.Field) map[string]struct{} {
	sec, ok := r.fields[field]
	if !ok {
		return nil
	}
	return sec.docs
}

// Meta returns the commit's document metadata delta.
func (r *Reader) Meta() map[string]index.DocMeta { return r.meta }

func (r *Reader) Close() error { return r.file.Close() }

type baseField struct {
	post *os.File
	dict []DictEntry
}

// Base provides term lookups against the merged base structures: one
// dictionary and postings file per field plus docs.meta.
type Base struct {
	dir    string
	fields map[index.Field]*baseField
	meta   map[string]index.DocMeta
}

// OpenBase opens the base generation directory, validating every
// dictionary's checksum and its postings file's expected size.
func OpenBase(dir string) (*Base, error) {
	b := &Base{dir: dir, fields: make(map[index.Field]*baseField, len(index.Fields))}
	for _, field := range index.Fields {
		bf, err := openBaseField(dir, field)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.fields[field] = bf
	}
	meta, err := readDocsMeta(filepath.Join(dir, "docs.meta"))
	if err != nil {
		b.Close()
		return nil, err
	}
	b.meta = meta
	return b, nil
}

func openBaseField(dir string, field index.Field) (*baseField, error) {
	dictPath := filepath.Join(dir, string(field)+".dict")
	data, err := os.ReadFile(dictPath)
	if err != nil {
		return nil, corruptf("base: reading %s: %v", dictPath, err)
	}
	if len(data) < dictHeaderSize {
		return nil, corruptf("base: %s truncated: %d bytes", dictPath, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != DictMagic {
		return nil, corruptf("base: %s: bad magic %#x", dictPath, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != FormatVersion {
		return nil, corruptf("base: %s: unsupported version %d", dictPath, version)
	}
	dictCRC := binary.LittleEndian.Uint32(data[12:16])
	dictLen := binary.LittleEndian.Uint64(data[16:24])
	postSize := binary.LittleEndian.Uint64(data[24:32])
	if int(dictLen) != len(data)-dictHeaderSize {
		return nil, corruptf("base: %s truncated: want %d dictionary bytes, have %d",
			dictPath, dictLen, len(data)-dictHeaderSize)
	}
	dictData := data[dictHeaderSize:]
	if crc32.ChecksumIEEE(dictData) != dictCRC {
		return nil, corruptf("base: %s: dictionary checksum mismatch", dictPath)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, corruptf("base: %s: parsing dictionary: %v", dictPath, err)
	}

	postPath := filepath.Join(dir, string(field)+".post")
	pf, err := os.Open(postPath)
	if err != nil {
		return nil, corruptf("base: opening %s: %v", postPath, err)
	}
	info, err := pf.Stat()
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("stat postings file: %w", err)
	}
	if uint64(info.Size()) != postSize {
		pf.Close()
		return nil, corruptf("base: %s truncated: want %d bytes, have %d",
			postPath, postSize, info.Size())
	}
	return &baseField{post: pf, dict: dict}, nil
}

func readDocsMeta(path string) (map[string]index.DocMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, corruptf("base: reading %s: %v", path, err)
	}
	if len(data) < metaHeaderSize {
		return nil, corruptf("base: %s truncated: %d bytes", path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != MetaMagic {
		return nil, corruptf("base: %s: bad magic %#x", path, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != FormatVersion {
		return nil, corruptf("base: %s: unsupported version %d", path, version)
	}
	metaCRC := binary.LittleEndian.Uint32(data[8:12])
	metaLen := binary.LittleEndian.Uint64(data[16:24])
	if int(metaLen) != len(data)-metaHeaderSize {
		return nil, corruptf("base: %s truncated: want %d metadata bytes, have %d",
			path, metaLen, len(data)-metaHeaderSize)
	}
	metaData := data[metaHeaderSize:]
	if crc32.ChecksumIEEE(metaData) != metaCRC {
		return nil, corruptf("base: %s: metadata checksum mismatch", path)
	}
	var meta map[string]index.DocMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, corruptf("base: %s: parsing metadata: %v", path, err)
	}
	return meta, nil
}

func (b *Base) Postings(field index.Field, term string) (index.PostingList, error) {
	bf, ok := b.fields[field]
	if !ok {
		return nil, nil
	}
	entry, ok := findTerm(bf.dict, term)
	if !ok {
		return nil, nil
	}
	data := make([]byte, entry.Len)
	if _, err := bf.post.ReadAt(data, entry.Offset); err != nil {
		return nil, corruptf("base: reading postings for %q: %v", term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, corruptf("base: parsing postings for %q: %v", term, err)
	}
	return postings, nil
}

func (b *Base) TermsWithPrefix(field index.Field, prefix string) []string {
	bf, ok := b.fields[field]
	if !ok {
		return nil
	}
	return scanPrefix(bf.dict, prefix)
}

func (b *Base) Terms(field index.Field) []string {
	bf, ok := b.fields[field]
	if !ok {
		return nil
	}
	terms := make([]string, len(bf.dict))
	for i, e := range bf.dict {
		terms[i] = e.Term
	}
	return terms
}

// Docs always returns nil: the base is the oldest source, so it never
// shadows anything.
func (b *Base) Docs(index.Field) map[string]struct{} { return nil }

func (b *Base) Meta() map[string]index.DocMeta { return b.meta }

func (b *Base) Close() error {
	var firstErr error
	for _, bf := range b.fields {
		if bf == nil || bf.post == nil {
			continue
		}
		if err := bf.post.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// findTerm binary-searches a sorted dictionary for an exact term.
func findTerm(dict []DictEntry, term string) (DictEntry, bool) {
	i := sort.Search(len(dict), func(i int) bool {
		return dict[i].Term >= term
	})
	if i >= len(dict) || dict[i].Term != term {
		return DictEntry{}, false
	}
	return dict[i], true
}

// scanPrefix returns the contiguous dictionary range starting with prefix.
func scanPrefix(dict []DictEntry, prefix string) []string {
	start := sort.Search(len(dict), func(i int) bool {
		return dict[i].Term >= prefix
	})
	var terms []string
	for i := start; i < len(dict) && strings.HasPrefix(dict[i].Term, prefix); i++ {
		terms = append(terms, dict[i].Term)
	}
	return terms
}

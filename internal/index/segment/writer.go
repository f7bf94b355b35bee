// Package segment implements the on-disk index structures: immutable
// per-commit segment files (.ifx) and the merged base layout (one term
// dictionary and postings file per field plus a document metadata file).
// All structures carry magic bytes, a format version, and crc32 checksums,
// and are written to a temp path and renamed into place.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/inboxforge/inboxforge/internal/index"
)

const (
	SegmentMagic  uint32 = 0x49465347 // "IFSG"
	DictMagic     uint32 = 0x49464454 // "IFDT"
	MetaMagic     uint32 = 0x4946444D // "IFDM"
	FormatVersion uint32 = 1

	segHeaderSize  = 48
	dictHeaderSize = 32
	metaHeaderSize = 24
)

// DictEntry maps a term to its postings offset and length. Offsets are
// relative to the start of the field's postings region.
type DictEntry struct {
	Term    string `json:"t"`
	Offset  int64  `json:"o"`
	Len     int    `json:"l"`
	DocFreq int    `json:"d"`
}

// FieldData is one field's share of a commit: its sorted term entries and
// the ids of every document the commit touched in that field.
type FieldData struct {
	Field   index.Field
	Entries []index.TermEntry
	Docs    []string
}

type segTable struct {
	Fields  []fieldTable `json:"fields"`
	MetaOff int64        `json:"meta_off"`
	MetaLen int64        `json:"meta_len"`
	MetaCRC uint32       `json:"meta_crc"`
}

type fieldTable struct {
	Field   string   `json:"field"`
	PostOff int64    `json:"post_off"`
	DictOff int64    `json:"dict_off"`
	DictLen int64    `json:"dict_len"`
	DictCRC uint32   `json:"dict_crc"`
	Docs    []string `json:"docs,omitempty"`
}

// Writer serialises commits into new .ifx segment files under dir.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write atomically creates segment file seg_<seq>.ifx containing every
// field's postings and dictionary plus the commit's metadata delta. It
// writes to a .tmp file first and renames on success.
func (w *Writer) Write(seq uint64, fields []FieldData, meta map[string]index.DocMeta) (string, error) {
	name := fmt.Sprintf("seg_%016x.ifx", seq)
	finalPath := filepath.Join(w.dir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(make([]byte, segHeaderSize)); err != nil {
		return "", fmt.Errorf("reserving header: %w", err)
	}

	table := segTable{Fields: make([]fieldTable, 0, len(fields))}
	for _, fd := range fields {
		ft, err := writeFieldRegions(f, fd)
		if err != nil {
			return "", err
		}
		table.Fields = append(table.Fields, ft)
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshaling doc metadata: %w", err)
	}
	table.MetaOff, _ = f.Seek(0, 1)
	table.MetaLen = int64(len(metaData))
	table.MetaCRC = crc32.ChecksumIEEE(metaData)
	if _, err := f.Write(metaData); err != nil {
		return "", fmt.Errorf("writing doc metadata: %w", err)
	}

	tableData, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("marshaling segment table: %w", err)
	}
	tableOff, _ := f.Seek(0, 1)
	if _, err := f.Write(tableData); err != nil {
		return "", fmt.Errorf("writing segment table: %w", err)
	}

	header := make([]byte, segHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], SegmentMagic)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], seq)
	binary.LittleEndian.PutUint64(header[16:24], uint64(tableOff))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(tableData)))
	binary.LittleEndian.PutUint32(header[32:36], crc32.ChecksumIEEE(tableData))
	binary.LittleEndian.PutUint32(header[36:40], uint32(len(fields)))
	binary.LittleEndian.PutUint64(header[40:48], uint64(time.Now().Unix()))
	if _, err := f.WriteAt(header, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return name, nil
}

// writeFieldRegions appends one field's postings region followed by its
// dictionary and returns the table entry describing both.
func writeFieldRegions(f *os.File, fd FieldData) (fieldTable, error) {
	postOff, _ := f.Seek(0, 1)
	dict := make([]DictEntry, 0, len(fd.Entries))
	for _, entry := range fd.Entries {
		off, _ := f.Seek(0, 1)
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return fieldTable{}, fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(data); err != nil {
			return fieldTable{}, fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:    entry.Term,
			Offset:  off - postOff,
			Len:     len(data),
			DocFreq: len(entry.Postings),
		})
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		return fieldTable{}, fmt.Errorf("marshaling %s dictionary: %w", fd.Field, err)
	}
	dictOff, _ := f.Seek(0, 1)
	if _, err := f.Write(dictData); err != nil {
		return fieldTable{}, fmt.Errorf("writing %s dictionary: %w", fd.Field, err)
	}
	return fieldTable{
		Field:   string(fd.Field),
		PostOff: postOff,
		DictOff: dictOff,
		DictLen: int64(len(dictData)),
		DictCRC: crc32.ChecksumIEEE(dictData),
		Docs:    fd.Docs,
	}, nil
}

// WriteBase atomically replaces the merged base structures: per field a
// <field>.dict and <field>.post pair plus docs.meta, all written into a new
// generation directory. The caller points the CURRENT file at it afterwards.
func WriteBase(dir string, fields []FieldData, meta map[string]index.DocMeta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating base directory: %w", err)
	}
	for _, fd := range fields {
		if err := writeBaseField(dir, fd); err != nil {
			return err
		}
	}
	return writeDocsMeta(filepath.Join(dir, "docs.meta"), meta)
}

func writeBaseField(dir string, fd FieldData) error {
	postPath := filepath.Join(dir, string(fd.Field)+".post")
	pf, err := os.Create(postPath)
	if err != nil {
		return fmt.Errorf("creating postings file: %w", err)
	}
	defer pf.Close()

	dict := make([]DictEntry, 0, len(fd.Entries))
	var off int64
	for _, entry := range fd.Entries {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := pf.Write(data); err != nil {
			return fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:    entry.Term,
			Offset:  off,
			Len:     len(data),
			DocFreq: len(entry.Postings),
		})
		off += int64(len(data))
	}
	if err := pf.Sync(); err != nil {
		return fmt.Errorf("syncing postings file: %w", err)
	}

	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling %s dictionary: %w", fd.Field, err)
	}
	header := make([]byte, dictHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], DictMagic)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(dict)))
	binary.LittleEndian.PutUint32(header[12:16], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(header[24:32], uint64(off))

	dictPath := filepath.Join(dir, string(fd.Field)+".dict")
	df, err := os.Create(dictPath)
	if err != nil {
		return fmt.Errorf("creating dictionary file: %w", err)
	}
	defer df.Close()
	if _, err := df.Write(header); err != nil {
		return fmt.Errorf("writing dictionary header: %w", err)
	}
	if _, err := df.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}
	if err := df.Sync(); err != nil {
		return fmt.Errorf("syncing dictionary file: %w", err)
	}
	return nil
}

func writeDocsMeta(path string, meta map[string]index.DocMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling doc metadata: %w", err)
	}
	header := make([]byte, metaHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MetaMagic)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(meta)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(data)))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metadata file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing metadata header: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing metadata file: %w", err)
	}
	return nil
}

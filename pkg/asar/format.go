package asar

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// The archive starts with two Chromium pickle objects. The first is a
// four-byte payload holding the size of the second; the second holds the
// JSON index as a length-prefixed string padded to four-byte alignment.
// File contents follow immediately after, and every inlined entry's offset
// is relative to that data region.
//
//	[uint32 = 4][uint32 headerSize][uint32 payloadSize][uint32 jsonLen][json, padded]
const (
	word          = 4
	pickleOverlap = 8 // pickle object size prefix + string length prefix
)

// index is the decoded JSON header of an archive.
type index struct {
	Files map[string]*entry `json:"files"`
}

// entry describes one member of the archive. A directory carries Files;
// a symlink carries Link; a regular file carries Size plus either a decimal
// Offset (inlined) or Unpacked (stored as an external sibling).
type entry struct {
	Files      map[string]*entry `json:"files,omitempty"`
	Size       int64             `json:"size,omitempty"`
	Offset     string            `json:"offset,omitempty"`
	Unpacked   bool              `json:"unpacked,omitempty"`
	Executable bool              `json:"executable,omitempty"`
	Link       string            `json:"link,omitempty"`
}

func (e *entry) isDir() bool  { return e.Files != nil }
func (e *entry) isLink() bool { return e.Link != "" }

// readIndex decodes the header of an archive and returns the index together
// with the absolute offset of the data region.
func readIndex(r io.Reader) (*index, int64, error) {
	var head [16]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	if got := binary.LittleEndian.Uint32(head[0:4]); got != word {
		return nil, 0, fmt.Errorf("bad header magic %d", got)
	}
	headerSize := int64(binary.LittleEndian.Uint32(head[4:8]))
	jsonLen := int64(binary.LittleEndian.Uint32(head[12:16]))
	if headerSize < pickleOverlap || jsonLen <= 0 || jsonLen > headerSize {
		return nil, 0, fmt.Errorf("bad header size %d (index %d)", headerSize, jsonLen)
	}

	padded := make([]byte, headerSize-pickleOverlap)
	if _, err := io.ReadFull(r, padded); err != nil {
		return nil, 0, fmt.Errorf("read index: %w", err)
	}
	if jsonLen > int64(len(padded)) {
		return nil, 0, fmt.Errorf("bad header length %d", jsonLen)
	}

	var idx index
	if err := json.Unmarshal(padded[:jsonLen], &idx); err != nil {
		return nil, 0, fmt.Errorf("decode index: %w", err)
	}

	return &idx, pickleOverlap + headerSize, nil
}

// writeIndex encodes idx with pickle framing and writes it to w.
// It returns the total header length, which is also the data region offset.
func writeIndex(w io.Writer, idx *index) (int64, error) {
	raw, err := json.Marshal(idx)
	if err != nil {
		return 0, fmt.Errorf("encode index: %w", err)
	}

	paddedLen := (len(raw) + word - 1) / word * word
	headerSize := paddedLen + pickleOverlap

	var head [16]byte
	binary.LittleEndian.PutUint32(head[0:4], word)
	binary.LittleEndian.PutUint32(head[4:8], uint32(headerSize))
	binary.LittleEndian.PutUint32(head[8:12], uint32(paddedLen+word))
	binary.LittleEndian.PutUint32(head[12:16], uint32(len(raw)))

	if _, err := w.Write(head[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(raw); err != nil {
		return 0, err
	}
	if pad := paddedLen - len(raw); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return 0, err
		}
	}

	return int64(pickleOverlap + headerSize), nil
}

// validName rejects member names that could escape the extraction root.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, "/\\")
}

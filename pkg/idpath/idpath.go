// Package idpath reduces path-like item references to stable host ids.
//
// Ids are CRC32 (IEEE polynomial) hashes seeded with the id of the enclosing
// scope, which is how immediate-mode hosts derive widget ids from labels.
// A path such as "Window/Tree/Button" hashes each segment with the previous
// segment's hash as seed:
//
//	HashPath("a/b", 0) == HashPath("b", HashPath("a", 0))
//
// Path syntax:
//
//   - '/' separates segments and is not hashed.
//   - '\' escapes the next byte so it is hashed literally ("a\/b" is one label).
//   - a leading '/' (or "//") ignores the seed and hashes from the root.
//   - "$$<int>" hashes an integer scope the way hosts hash integer ids.
//   - "###" inside a label restarts the hash from the segment seed, so the
//     visible part before it does not contribute to the id.
package idpath

import (
	"encoding/binary"
	"hash/crc32"
	"strconv"

	"github.com/go-drift/testengine/pkg/host"
)

var table = crc32.IEEETable

// Hash hashes a single label with seed. "###" resets to the seed.
func Hash(label string, seed host.ID) host.ID {
	s := ^uint32(seed)
	crc := s
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c == '#' && i+2 < len(label) && label[i+1] == '#' && label[i+2] == '#' {
			crc = s
		}
		crc = (crc >> 8) ^ table[byte(crc)^c]
	}
	return host.ID(^crc)
}

// HashData hashes raw bytes with seed. It is a plain seeded CRC32.
func HashData(data []byte, seed host.ID) host.ID {
	return host.ID(crc32.Update(uint32(seed), table, data))
}

// HashInt hashes an integer scope id with seed.
func HashInt(n int32, seed host.ID) host.ID {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	return HashData(buf[:], seed)
}

// HashPath hashes a '/'-separated path with seed.
func HashPath(path string, seed host.ID) host.ID {
	if len(path) > 0 && path[0] == '/' {
		seed = 0
	}
	s := ^uint32(seed)
	crc := s
	escaped := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if !escaped {
			switch {
			case c == '\\':
				escaped = true
				continue
			case c == '/':
				s = crc
				continue
			case c == '$' && i+1 < len(path) && path[i+1] == '$':
				if n, end, ok := parseInt(path, i+2); ok {
					crc = ^uint32(HashInt(n, host.ID(^crc)))
					i = end - 1
					continue
				}
			case c == '#' && i+2 < len(path) && path[i+1] == '#' && path[i+2] == '#':
				crc = s
			}
		}
		escaped = false
		crc = (crc >> 8) ^ table[byte(crc)^c]
	}
	return host.ID(^crc)
}

// parseInt reads an optionally signed decimal integer starting at start and
// ending at the next '/' or end of string.
func parseInt(path string, start int) (int32, int, bool) {
	end := start
	for end < len(path) && path[end] != '/' {
		end++
	}
	n, err := strconv.ParseInt(path[start:end], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return int32(n), end, true
}

// Ref references an item either by literal id or by path. A literal id wins
// when both are set.
type Ref struct {
	ID   host.ID
	Path string
}

// RefID returns a Ref for a literal id.
func RefID(id host.ID) Ref { return Ref{ID: id} }

// RefPath returns a Ref for a path.
func RefPath(path string) Ref { return Ref{Path: path} }

// IsEmpty reports whether the reference names nothing.
func (r Ref) IsEmpty() bool { return r.ID == 0 && r.Path == "" }

// Resolve returns the id the reference designates relative to seed.
func (r Ref) Resolve(seed host.ID) host.ID {
	if r.ID != 0 {
		return r.ID
	}
	if r.Path == "" {
		return seed
	}
	return HashPath(r.Path, seed)
}

func (r Ref) String() string {
	if r.Path != "" {
		return r.Path
	}
	return "0x" + strconv.FormatUint(uint64(r.ID), 16)
}

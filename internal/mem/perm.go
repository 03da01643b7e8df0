package mem

import "strings"

// PageSize is the size of a physical frame and of a virtual page.
const PageSize = 4096

// Perm is a set of access permissions attached to a mapping.
type Perm uint8

const (
	PermR Perm = 1 << iota // readable
	PermW                  // writable
	PermX                  // executable
	PermU                  // accessible from user mode

	PermRWU  = PermR | PermW | PermU
	PermRXU  = PermR | PermX | PermU
	PermRWXU = PermR | PermW | PermX | PermU
)

// Has reports whether every permission in want is present in p.
func (p Perm) Has(want Perm) bool { return p&want == want }

func (p Perm) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Perm
		c   byte
	}{{PermR, 'r'}, {PermW, 'w'}, {PermX, 'x'}, {PermU, 'u'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// AlignUp rounds n up to the next multiple of PageSize.
func AlignUp(n uint64) uint64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

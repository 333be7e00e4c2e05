// Package strbuf implements the growable, formatted-append text buffer
// used to assemble templated output (style sheets, rendered fragments)
// during parsing and rendering.
package strbuf

import "fmt"

const (
	initialCapacity = 1024
	maxCapacity     = 1024 * 1024
)

// Builder is a growable byte buffer with printf-style append. Capacity
// doubles on overflow; a single allocation never exceeds maxCapacity.
type Builder struct {
	buf []byte
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{buf: make([]byte, 0, initialCapacity)}
}

// Append formats according to format and args and appends the result.
// Once the buffer would exceed maxCapacity, further appends are silently
// truncated at the cap rather than growing unbounded.
func (b *Builder) Append(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	if len(b.buf)+len(s) > maxCapacity {
		room := maxCapacity - len(b.buf)
		if room <= 0 {
			return
		}
		s = s[:room]
	}
	b.buf = append(b.buf, s...)
}

// Get returns the buffer's current contents. The caller must copy the
// result if the Builder will continue to grow and the copy must remain
// stable.
func (b *Builder) Get() string {
	return string(b.buf)
}

// Len reports the number of bytes appended so far.
func (b *Builder) Len() int { return len(b.buf) }

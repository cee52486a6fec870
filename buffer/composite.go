// File: buffer/composite.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Composite concatenates multiple Bufs into one logical readable stream
// without copying, for the decoder's composite cumulation strategy.

package buffer

import "errors"

// ErrCompositeCycle is returned by Add when the same *Buf is already one of
// the composite's components.
var ErrCompositeCycle = errors.New("buffer: composite cannot contain itself")

type component struct {
	buf *Buf
	len int
}

// Composite is an ordered sequence of Bufs addressed as one virtual buffer.
// It owns a reference to each component and releases them all on Release.
type Composite struct {
	parts    []component
	readIdx  int
	writeIdx int
}

// NewComposite creates an empty composite buffer.
func NewComposite() *Composite {
	return &Composite{}
}

// Add appends buf (retained) as the next component, extending the writer
// index by the buf's current readable length.
func (c *Composite) Add(buf *Buf) error {
	for _, p := range c.parts {
		if p.buf == buf {
			return ErrCompositeCycle
		}
	}
	n := buf.NumReadable()
	buf.Retain()
	c.parts = append(c.parts, component{buf: buf, len: n})
	c.writeIdx += n
	return nil
}

func (c *Composite) ReaderIndex() int { return c.readIdx }
func (c *Composite) WriterIndex() int { return c.writeIdx }
func (c *Composite) NumReadable() int { return c.writeIdx - c.readIdx }
func (c *Composite) IsReadable() bool { return c.writeIdx > c.readIdx }

// ReadBytes materializes n unread bytes, copying across component
// boundaries when the span does not fall within a single component.
func (c *Composite) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.readIdx+n > c.writeIdx {
		return nil, ErrIndexOutOfRange
	}
	out := make([]byte, 0, n)
	remaining := n
	offset := 0
	for _, p := range c.parts {
		if remaining == 0 {
			break
		}
		partStart := offset
		partEnd := offset + p.len
		offset = partEnd
		if c.readIdx >= partEnd {
			continue
		}
		localStart := c.readIdx - partStart
		if localStart < 0 {
			localStart = 0
		}
		avail := p.len - localStart
		take := avail
		if take > remaining {
			take = remaining
		}
		data := p.buf.ReadableBytes()
		out = append(out, data[localStart:localStart+take]...)
		remaining -= take
		c.readIdx += take
	}
	return out, nil
}

// DiscardReadComponents drops fully-consumed leading components, releasing
// their references, keeping the composite from growing unbounded across
// many small cumulations.
func (c *Composite) DiscardReadComponents() {
	consumed := c.readIdx
	i := 0
	for i < len(c.parts) && c.parts[i].len <= consumed {
		c.parts[i].buf.Release()
		consumed -= c.parts[i].len
		i++
	}
	if i == 0 {
		return
	}
	c.parts = c.parts[i:]
	c.readIdx = consumed
	total := consumed
	for _, p := range c.parts {
		total += p.len
	}
	c.writeIdx = total
}

// Release releases every component buffer. The composite must not be used afterwards.
func (c *Composite) Release() {
	for _, p := range c.parts {
		p.buf.Release()
	}
	c.parts = nil
}

// File: decode/messagelist.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MessageList is a reusable output slot for decoded messages, analogous to
// Netty's CodecOutputList, pooled the same way the buffer pool recycles
// backing arrays.

package decode

import "github.com/momentics/nioreactor/pool"

// MessageList accumulates the messages a single Decode call produces.
type MessageList struct {
	items []any
}

// NewMessageList creates an empty list with the given initial capacity.
func NewMessageList(capacity int) *MessageList {
	return &MessageList{items: make([]any, 0, capacity)}
}

// Reset empties the list, retaining its backing array.
func (m *MessageList) Reset() { m.items = m.items[:0] }

// Add appends a decoded message.
func (m *MessageList) Add(v any) { m.items = append(m.items, v) }

// Len returns the number of messages currently held.
func (m *MessageList) Len() int { return len(m.items) }

// At returns the message at index i.
func (m *MessageList) At(i int) any { return m.items[i] }

// messageListPool recycles MessageList instances across decode calls.
var messageListPool = pool.NewSyncPool(func() *MessageList { return NewMessageList(4) })

// AcquireMessageList borrows a reset MessageList from the shared pool.
func AcquireMessageList() *MessageList {
	m := messageListPool.Get()
	m.Reset()
	return m
}

// ReleaseMessageList returns a MessageList to the shared pool.
func ReleaseMessageList(m *MessageList) { messageListPool.Put(m) }

package client

import (
	"fmt"
	"sync"
)

// DocumentBuffer is the in-memory editor model the operation controller
// mutates on accept. Positions are rune offsets, matching how an editor
// reports selection ranges, and all methods are safe for concurrent use.
type DocumentBuffer struct {
	mu    sync.RWMutex
	runes []rune
}

// NewDocumentBuffer creates a buffer holding the given content.
func NewDocumentBuffer(content string) *DocumentBuffer {
	return &DocumentBuffer{runes: []rune(content)}
}

// Content returns the full buffer contents.
func (b *DocumentBuffer) Content() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.runes)
}

// Len returns the buffer length in runes.
func (b *DocumentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.runes)
}

// SetContent replaces the whole buffer.
func (b *DocumentBuffer) SetContent(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runes = []rune(content)
}

// ReplaceRange replaces the half-open rune range [from, to) with text.
func (b *DocumentBuffer) ReplaceRange(from, to int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if from < 0 || to < from || to > len(b.runes) {
		return fmt.Errorf("range [%d,%d) out of bounds for buffer of length %d", from, to, len(b.runes))
	}

	replacement := []rune(text)
	next := make([]rune, 0, len(b.runes)-(to-from)+len(replacement))
	next = append(next, b.runes[:from]...)
	next = append(next, replacement...)
	next = append(next, b.runes[to:]...)
	b.runes = next
	return nil
}

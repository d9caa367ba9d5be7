package clipboard

import "sync"

// MemoryAdapter is an in-process Adapter used by this repo's own
// tests in place of a real OS clipboard — the clipboard analogue of
// transport.Pipe().
type MemoryAdapter struct {
	mu      sync.Mutex
	content Content
}

// NewMemoryAdapter returns an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter { return &MemoryAdapter{} }

func (m *MemoryAdapter) Read() (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content, nil
}

func (m *MemoryAdapter) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = Content{Kind: KindText, Text: text}
	return nil
}

// SetLocal simulates a local user copying text, for driving tests
// that poll Read.
func (m *MemoryAdapter) SetLocal(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = Content{Kind: KindText, Text: text}
}

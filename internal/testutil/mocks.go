package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kyleking/askdb/internal/types"
)

// MockEmbedder is an in-memory embedding provider. Each text gets the vector
// of the first configured keyword it contains (keywords checked in sorted
// order), otherwise the default vector.
type MockEmbedder struct {
	mu sync.Mutex

	dimension int
	reported  int
	model     string
	vectors   map[string][]float32
	fallback  []float32
	err       error
	calls     [][]string
}

// EmbedderOption is a functional option for configuring MockEmbedder
type EmbedderOption func(*MockEmbedder)

// WithVector maps texts containing keyword to vec
func WithVector(keyword string, vec []float32) EmbedderOption {
	return func(m *MockEmbedder) {
		m.vectors[keyword] = vec
	}
}

// WithDefaultVector sets the vector returned for unmatched texts
func WithDefaultVector(vec []float32) EmbedderOption {
	return func(m *MockEmbedder) {
		m.fallback = vec
	}
}

// WithEmbedError makes every call fail with err
func WithEmbedError(err error) EmbedderOption {
	return func(m *MockEmbedder) {
		m.err = err
	}
}

// WithReportedDimension makes Dimension() report n regardless of the
// length of the vectors actually returned
func WithReportedDimension(n int) EmbedderOption {
	return func(m *MockEmbedder) {
		m.reported = n
	}
}

// WithModel sets the reported model name
func WithModel(model string) EmbedderOption {
	return func(m *MockEmbedder) {
		m.model = model
	}
}

// NewMockEmbedder creates a mock producing vectors of length dimension
func NewMockEmbedder(dimension int, opts ...EmbedderOption) *MockEmbedder {
	m := &MockEmbedder{
		dimension: dimension,
		model:     "mock-embedding",
		vectors:   make(map[string][]float32),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.fallback == nil {
		m.fallback = make([]float32, dimension)
		if dimension > 0 {
			m.fallback[dimension-1] = 1
		}
	}

	return m
}

// Embed returns one vector per text and records the call
func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]string(nil), texts...))

	if m.err != nil {
		return nil, m.err
	}

	keywords := make([]string, 0, len(m.vectors))
	for k := range m.vectors {
		keywords = append(keywords, k)
	}

	sort.Strings(keywords)

	out := make([][]float32, len(texts))

	for i, text := range texts {
		out[i] = m.fallback

		for _, k := range keywords {
			if strings.Contains(text, k) {
				out[i] = m.vectors[k]
				break
			}
		}
	}

	return out, nil
}

// EmbedSingle embeds one text
func (m *MockEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// SetError changes the failure returned by later calls
func (m *MockEmbedder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

func (m *MockEmbedder) Dimension() int {
	if m.reported > 0 {
		return m.reported
	}

	return m.dimension
}

func (m *MockEmbedder) Name() string { return "mock" }

func (m *MockEmbedder) Model() string { return m.model }

// Calls returns the number of Embed invocations
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

// EmbeddedTexts returns every text sent so far, in order
func (m *MockEmbedder) EmbeddedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []string
	for _, c := range m.calls {
		all = append(all, c...)
	}

	return all
}

// Reset clears recorded calls
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
}

// MemorySource is an in-memory metadata source
type MemorySource struct {
	mu sync.RWMutex

	id        string
	tables    map[string][]types.Column
	errors    map[string]error
	listCalls int
}

// NewMemorySource creates a source holding tables
func NewMemorySource(tables ...types.Table) *MemorySource {
	s := &MemorySource{
		id:     "memory:test",
		tables: make(map[string][]types.Column),
		errors: make(map[string]error),
	}

	for _, t := range tables {
		s.tables[t.Name] = t.Columns
	}

	return s
}

// SetTable adds or replaces a table
func (s *MemorySource) SetTable(t types.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[t.Name] = t.Columns
}

// SetError makes ListTables (key "list") or Columns(table) fail
func (s *MemorySource) SetError(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors[key] = err
}

// ListTables returns table names in sorted order
func (s *MemorySource) ListTables(_ context.Context) ([]string, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.errors["list"]; err != nil {
		return nil, err
	}

	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// Columns returns the columns of table, empty for unknown tables
func (s *MemorySource) Columns(_ context.Context, table string) ([]types.Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.errors[table]; err != nil {
		return nil, err
	}

	return s.tables[table], nil
}

// ConnectionID identifies the source for caching
func (s *MemorySource) ConnectionID() string {
	return s.id
}

// ListCalls returns the number of ListTables invocations
func (s *MemorySource) ListCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listCalls
}

// MockCompleter returns canned completions
type MockCompleter struct {
	mu sync.Mutex

	responses []string
	err       error
	prompts   []string
}

// NewMockCompleter replies with responses in order, repeating the last one
func NewMockCompleter(responses ...string) *MockCompleter {
	return &MockCompleter{responses: responses}
}

// SetError makes later calls fail
func (m *MockCompleter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

// Complete records the user prompt and returns the next response
func (m *MockCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, userPrompt)

	if m.err != nil {
		return "", m.err
	}

	if len(m.responses) == 0 {
		return "", fmt.Errorf("no mock response configured")
	}

	i := len(m.prompts) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}

	return m.responses[i], nil
}

func (m *MockCompleter) Name() string { return "mock" }

func (m *MockCompleter) Model() string { return "mock-llm" }

// Prompts returns every user prompt received
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.prompts...)
}

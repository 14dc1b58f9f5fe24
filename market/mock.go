package market

import "context"

// Mock implements Driver for tests.
type Mock struct {
	Tags   []Tag
	Events []Object
	Err    error
}

func (m *Mock) FetchTags(ctx context.Context, offset, limit int) ([]Tag, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if offset >= len(m.Tags) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.Tags) {
		end = len(m.Tags)
	}
	return m.Tags[offset:end], nil
}

func (m *Mock) EventsForTags(ctx context.Context, tagIDs []string, limit int) ([]Object, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	events := m.Events
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

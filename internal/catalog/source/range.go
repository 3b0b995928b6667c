package source

import (
	"fmt"
	"strconv"
	"sync"

	"catalog_ingest/internal/catalog/models"
)

// RangeSource enumerates start, start+1, ..., end-1.
type RangeSource struct {
	mu    sync.Mutex
	next  int
	start int
	end   int
}

func NewRangeSource(start, end int) (*RangeSource, error) {
	if start >= end {
		return nil, fmt.Errorf("range start (%d) must be less than end (%d)", start, end)
	}
	return &RangeSource{next: start, start: start, end: end}, nil
}

func (s *RangeSource) Next() (models.ProductIdentifier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= s.end {
		return "", false
	}
	id := models.ProductIdentifier(strconv.Itoa(s.next))
	s.next++
	return id, true
}

func (s *RangeSource) Len() int {
	return s.end - s.start
}

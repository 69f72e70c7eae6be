// Package invoice maintains the running invoice for one job session.
package invoice

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-invoice-agent-service/internal/models"
)

// Session owns the invoice line items for a job. All mutations take the
// session lock; the total is always recomputed from the items, never cached.
type Session struct {
	mu          sync.Mutex
	items       []models.InvoiceItem
	priorPrices map[int64]float64
	laborRate   float64
}

// NewSession creates an empty invoice with the given hourly labor rate.
func NewSession(laborRate float64) *Session {
	return &Session{
		priorPrices: make(map[int64]float64),
		laborRate:   laborRate,
	}
}

// Merge folds freshly extracted items into the invoice, deduplicating by
// case-insensitive name: candidates whose name is already on the invoice are
// dropped and the existing line is left untouched. The extractor re-emits
// items from the cumulative transcript window, so a name match is a
// re-sighting of a known line, not new information. Returns the items that
// were added, in candidate order, for notification.
func (s *Session) Merge(incoming []models.InvoiceItem) []models.InvoiceItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []models.InvoiceItem
	for _, item := range incoming {
		if s.findByName(item.Name) >= 0 {
			continue
		}
		s.items = append(s.items, item)
		added = append(added, item)
	}
	return added
}

// Add appends a single item unconditionally, assigning an ID if missing.
func (s *Session) Add(item models.InvoiceItem) models.InvoiceItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == 0 {
		item.ID = time.Now().UnixMilli()
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	s.items = append(s.items, item)
	return item
}

// AddLaborHours appends a labor line priced at the session rate.
func (s *Session) AddLaborHours(hours float64, description string) models.InvoiceItem {
	item := models.InvoiceItem{
		Name:             fmt.Sprintf("Labor (%g Hour(s))", hours),
		Price:            hours * s.laborRate,
		Type:             models.ItemLabor,
		Hours:            hours,
		LaborDescription: description,
	}
	return s.Add(item)
}

// Remove deletes the item with the given ID. Returns the removed item and
// whether it existed.
func (s *Session) Remove(id int64) (models.InvoiceItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			delete(s.priorPrices, id)
			return item, true
		}
	}
	return models.InvoiceItem{}, false
}

// SetFree zeroes an item's price, remembering the prior price so Restore can
// bring it back. Calling SetFree on an already-free item is a no-op that
// preserves the remembered price.
func (s *Session) SetFree(id int64) (models.InvoiceItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findByID(id)
	if idx < 0 {
		return models.InvoiceItem{}, false
	}
	item := &s.items[idx]
	if item.Price != 0 {
		s.priorPrices[id] = item.Price
		item.Price = 0
	}
	return *item, true
}

// Restore undoes SetFree. Labor lines recompute from hours and the session
// rate; other lines return to the remembered price. An item that was never
// made free is returned unchanged.
func (s *Session) Restore(id int64) (models.InvoiceItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findByID(id)
	if idx < 0 {
		return models.InvoiceItem{}, false
	}
	item := &s.items[idx]
	if item.Type == models.ItemLabor && item.Hours > 0 {
		item.Price = item.Hours * s.laborRate
		delete(s.priorPrices, id)
	} else if prior, ok := s.priorPrices[id]; ok {
		item.Price = prior
		delete(s.priorPrices, id)
	}
	return *item, true
}

// SetLaborDescription replaces the labor description of an item.
func (s *Session) SetLaborDescription(id int64, description string) (models.InvoiceItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findByID(id)
	if idx < 0 {
		return models.InvoiceItem{}, false
	}
	s.items[idx].LaborDescription = description
	return s.items[idx], true
}

// Total recomputes the invoice total from scratch.
func (s *Session) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

func (s *Session) totalLocked() float64 {
	var total float64
	for _, item := range s.items {
		total += item.Price
	}
	return total
}

// Items returns a snapshot of the invoice, sorted by ID (creation order).
func (s *Session) Items() []models.InvoiceItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.InvoiceItem, len(s.items))
	copy(out, s.items)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns the items and total under one lock acquisition.
func (s *Session) Snapshot() ([]models.InvoiceItem, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.InvoiceItem, len(s.items))
	copy(out, s.items)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, s.totalLocked()
}

// Reset drops all items and remembered prices.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.priorPrices = make(map[int64]float64)
}

// LaborRate returns the hourly rate the session was created with.
func (s *Session) LaborRate() float64 { return s.laborRate }

func (s *Session) findByName(name string) int {
	for i, item := range s.items {
		if strings.EqualFold(item.Name, name) {
			return i
		}
	}
	return -1
}

func (s *Session) findByID(id int64) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

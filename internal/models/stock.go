package models

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// StockState is the derived availability class of a product. It is never persisted.
type StockState string

const (
	StockStateInStock    StockState = "IN_STOCK"
	StockStateLowStock   StockState = "LOW_STOCK"
	StockStateOutOfStock StockState = "OUT_OF_STOCK"
)

// Severity orders states from least (0) to most (2) severe.
func (s StockState) Severity() int {
	switch s {
	case StockStateOutOfStock:
		return 2
	case StockStateLowStock:
		return 1
	default:
		return 0
	}
}

// Event types for published messages
const (
	EventTypeStockStateChanged = "stock_state_changed"
)

// StockRecord represents the stock_records table structure
type StockRecord struct {
	ProductID   int64     `db:"product_id" json:"product_id"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Version     int64     `db:"version" json:"version"`
	LastUpdated time.Time `db:"updated_at" json:"last_updated"`
}

// StockWrite is a conditional write: it only applies while the stored version
// still equals ExpectedVersion.
type StockWrite struct {
	ProductID       int64
	Quantity        int
	ExpectedVersion int64
	UpdatedAt       time.Time
}

// StockLevel is a record together with its classification.
type StockLevel struct {
	StockRecord
	State StockState `json:"state"`
}

// ReservationResult is the outcome of a successful availability check.
// Nothing is held in the store.
type ReservationResult struct {
	ProductID int64      `json:"product_id"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
	State     StockState `json:"state"`
	Reserved  bool       `json:"reserved"`
}

// AdjustmentResult describes a committed decrement or restock.
type AdjustmentResult struct {
	ProductID        int64      `json:"product_id"`
	Requested        int        `json:"requested"`
	Applied          int        `json:"applied"`
	PreviousQuantity int        `json:"previous_quantity"`
	NewQuantity      int        `json:"new_quantity"`
	Version          int64      `json:"version"`
	OldState         StockState `json:"old_state"`
	NewState         StockState `json:"new_state"`
	Attempts         int        `json:"attempts"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StateChanged reports whether the adjustment crossed a classification boundary.
func (r *AdjustmentResult) StateChanged() bool {
	return r.OldState != r.NewState
}

// StockStateChanged is emitted when a write moves a product to a different state.
type StockStateChanged struct {
	EventID   string     `json:"event_id"`
	ProductID int64      `json:"product_id"`
	OldState  StockState `json:"old_state"`
	NewState  StockState `json:"new_state"`
	Quantity  int        `json:"quantity"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewStockStateChanged builds an event with a fresh id.
func NewStockStateChanged(productID int64, oldState, newState StockState, quantity int, at time.Time) *StockStateChanged {
	return &StockStateChanged{
		EventID:   uuid.New().String(),
		ProductID: productID,
		OldState:  oldState,
		NewState:  newState,
		Quantity:  quantity,
		Timestamp: at,
	}
}

// StockSnapshot is the result of one batched read. Ids that were not found are absent.
type StockSnapshot struct {
	Entries map[int64]StockLevel
	TakenAt time.Time
}

// Get returns the entry for id and whether it was found.
func (s *StockSnapshot) Get(productID int64) (StockLevel, bool) {
	level, ok := s.Entries[productID]
	return level, ok
}

// Len returns the number of found products.
func (s *StockSnapshot) Len() int {
	return len(s.Entries)
}

// Levels returns all entries ordered by product id.
func (s *StockSnapshot) Levels() []StockLevel {
	return s.filter(func(StockLevel) bool { return true })
}

// LowStock returns the LOW_STOCK entries ordered by product id.
func (s *StockSnapshot) LowStock() []StockLevel {
	return s.filter(func(l StockLevel) bool { return l.State == StockStateLowStock })
}

// OutOfStock returns the OUT_OF_STOCK entries ordered by product id.
func (s *StockSnapshot) OutOfStock() []StockLevel {
	return s.filter(func(l StockLevel) bool { return l.State == StockStateOutOfStock })
}

func (s *StockSnapshot) filter(keep func(StockLevel) bool) []StockLevel {
	levels := make([]StockLevel, 0, len(s.Entries))
	for _, level := range s.Entries {
		if keep(level) {
			levels = append(levels, level)
		}
	}
	slices.SortFunc(levels, func(a, b StockLevel) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return levels
}

package service

import (
	"fmt"

	"stock-service/internal/models"
)

// DefaultLowStockThreshold is used when no threshold is configured
const DefaultLowStockThreshold = 5

// Classify maps a quantity onto a stock state. It is total: negative
// quantities are treated as empty.
func Classify(quantity, threshold int) models.StockState {
	switch {
	case quantity <= 0:
		return models.StockStateOutOfStock
	case quantity <= threshold:
		return models.StockStateLowStock
	default:
		return models.StockStateInStock
	}
}

// Classifier binds Classify to a configured threshold
type Classifier struct {
	threshold int
}

// NewClassifier validates the threshold
func NewClassifier(threshold int) (Classifier, error) {
	if threshold < 1 {
		return Classifier{}, fmt.Errorf("low stock threshold must be positive, got %d", threshold)
	}
	return Classifier{threshold: threshold}, nil
}

func (c Classifier) Classify(quantity int) models.StockState {
	return Classify(quantity, c.threshold)
}

func (c Classifier) Threshold() int {
	return c.threshold
}

// Level classifies a record
func (c Classifier) Level(record models.StockRecord) models.StockLevel {
	return models.StockLevel{StockRecord: record, State: c.Classify(record.Quantity)}
}

package model

import (
	"sync"

	"github.com/YuminosukeSato/airq/pkg/errors"
)

// StateManager tracks whether a model has been fitted and the shape it was
// fitted on. Estimators hold it by pointer so that they stay copyable.
type StateManager struct {
	Fitted bool // Public for gob encoding
	mu     sync.RWMutex

	// Public for gob encoding
	NFeatures int
	NSamples  int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted on nFeatures columns and nSamples rows.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// Reset resets the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted returns a NotFittedError naming the model and method when
// the model has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// RequireFeatures checks that X has the number of columns seen in Fit.
func (s *StateManager) RequireFeatures(op string, nCols int) error {
	nFeatures, _ := s.GetDimensions()
	if nCols != nFeatures {
		return errors.NewDimensionError(op, nFeatures, nCols, 1)
	}
	return nil
}

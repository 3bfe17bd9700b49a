// Package auth gates the bot to its single configured operator. The whole
// forwarding workflow is driven by one identity; everyone else gets a polite
// refusal.
package auth

import "fmt"

// OperatorGate checks incoming traffic against the configured operator ID.
type OperatorGate struct {
	operatorID int64
}

// NewOperatorGate creates a gate for the given operator. A zero ID is a
// configuration error.
func NewOperatorGate(operatorID int64) (*OperatorGate, error) {
	if operatorID == 0 {
		return nil, fmt.Errorf("operator ID cannot be zero")
	}
	return &OperatorGate{operatorID: operatorID}, nil
}

// IsOperator reports whether userID is the configured operator.
func (g *OperatorGate) IsOperator(userID int64) bool {
	return userID == g.operatorID
}

// OperatorID returns the configured operator identity.
func (g *OperatorGate) OperatorID() int64 {
	return g.operatorID
}

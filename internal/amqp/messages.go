package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransactionCreatedMessage announces that a transaction has been
// ingested. It carries only identifiers; the worker re-reads the full
// row from the database so classification always runs against the
// latest state.
type TransactionCreatedMessage struct {
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionCreatedMessage creates a message for a freshly
// ingested transaction.
func NewTransactionCreatedMessage(userID, transactionID string) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		UserID:        userID,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.TransactionID == "" {
		return nil, fmt.Errorf("message missing user or transaction id")
	}
	return &msg, nil
}

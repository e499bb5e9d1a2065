package queue

import (
	"encoding/json"
	"fmt"

	"github.com/fmitra/iap"
)

// Encode serializes a Message for the wire.
func Encode(msg *iap.Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return b, nil
}

// Decode parses a Message read from the wire.
func Decode(b []byte) (*iap.Message, error) {
	var msg iap.Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message has no id")
	}
	return &msg, nil
}

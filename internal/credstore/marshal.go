package credstore

import (
	"encoding/json"
	"fmt"
)

func marshalCredentials(creds Credentials) ([]byte, error) {
	if (creds.OAuth == nil) == (creds.IMAP == nil) {
		return nil, fmt.Errorf("credentials must hold exactly one of oauth or imap")
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	return data, nil
}

func unmarshalCredentials(data []byte) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	if (creds.OAuth == nil) == (creds.IMAP == nil) {
		return Credentials{}, fmt.Errorf("credential blob holds %d credential shapes, want 1", countShapes(creds))
	}
	return creds, nil
}

func countShapes(creds Credentials) int {
	n := 0
	if creds.OAuth != nil {
		n++
	}
	if creds.IMAP != nil {
		n++
	}
	return n
}

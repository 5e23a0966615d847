// Package calllog persists one record per phone call, from webhook arrival
// through post-call enrichment.
package calllog

import (
	"fmt"
	"sync"
	"time"
)

// Booking is the structured data extracted from a call transcript.
type Booking struct {
	Name    string `json:"name,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
	Guests  int    `json:"guests,omitempty"`
	PhoneNo string `json:"phoneNo,omitempty"`
	Allergy string `json:"allergy,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Complete reports whether enough fields are present to notify the customer.
func (b Booking) Complete() bool {
	return b.Name != "" && b.PhoneNo != "" && b.Guests > 0
}

// Record is one call's stored state.
type Record struct {
	CallSID string `json:"call_sid"`
	// PaymentID is a per-call token minted at webhook time; the payment
	// page looks bookings up by it.
	PaymentID    string    `json:"payment_id,omitempty"`
	From         string    `json:"from_number"`
	To           string    `json:"to_number"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	DurationSec  int       `json:"duration_sec"`
	RecordingURL string    `json:"recording_url,omitempty"`
	Transcript   string    `json:"transcript,omitempty"`
	Booking      *Booking  `json:"booking,omitempty"`
	SMSSent      bool      `json:"sms_sent"`
	SMSError     string    `json:"sms_error,omitempty"`
}

// Statuses a record moves through.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Store persists call records, keyed by call SID.
type Store interface {
	Create(rec Record) error
	Get(callSID string) (Record, error)
	// GetByPaymentID finds the record carrying the given payment token.
	GetByPaymentID(paymentID string) (Record, error)
	// Update replaces the stored record for rec.CallSID.
	Update(rec Record) error
}

// MemoryStore is the in-process fallback used when no database is configured,
// and the store used throughout tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (m *MemoryStore) Create(rec Record) error {
	if rec.CallSID == "" {
		return fmt.Errorf("call record missing call sid")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.recs[rec.CallSID]; exists {
		return fmt.Errorf("call record %s already exists", rec.CallSID)
	}
	m.recs[rec.CallSID] = rec
	return nil
}

func (m *MemoryStore) Get(callSID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[callSID]
	if !ok {
		return Record{}, fmt.Errorf("no call record for %s", callSID)
	}
	return rec, nil
}

func (m *MemoryStore) GetByPaymentID(paymentID string) (Record, error) {
	if paymentID == "" {
		return Record{}, fmt.Errorf("missing payment id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.PaymentID == paymentID {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("no call record for payment id %s", paymentID)
}

func (m *MemoryStore) Update(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.CallSID]; !ok {
		return fmt.Errorf("no call record for %s", rec.CallSID)
	}
	m.recs[rec.CallSID] = rec
	return nil
}

package calllog

import (
	"testing"
	"time"
)

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	s := NewMemoryStore()
	rec := Record{CallSID: "CA1", From: "+15551234567", To: "+15557654321", Status: StatusActive, StartedAt: time.Now()}
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(rec); err == nil {
		t.Fatalf("duplicate create must fail")
	}

	got, err := s.Get("CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.From != "+15551234567" || got.Status != StatusActive {
		t.Fatalf("unexpected record: %+v", got)
	}

	got.Status = StatusCompleted
	got.DurationSec = 42
	got.Booking = &Booking{Name: "Alice", PhoneNo: "+15551234567", Guests: 2}
	if err := s.Update(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.Get("CA1")
	if got.Status != StatusCompleted || got.DurationSec != 42 {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.Booking.Complete() {
		t.Fatalf("expected complete booking")
	}
}

func TestMemoryStore_MissingRecord(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get("CA404"); err == nil {
		t.Fatalf("expected error for missing record")
	}
	if err := s.Update(Record{CallSID: "CA404"}); err == nil {
		t.Fatalf("expected error updating missing record")
	}
	if err := s.Create(Record{}); err == nil {
		t.Fatalf("expected error for record without call sid")
	}
}

func TestBooking_Complete(t *testing.T) {
	cases := []struct {
		b    Booking
		want bool
	}{
		{Booking{Name: "Alice", PhoneNo: "+1555", Guests: 4}, true},
		{Booking{Name: "Alice", PhoneNo: "+1555"}, false},
		{Booking{Name: "Alice", Guests: 4}, false},
		{Booking{}, false},
	}
	for _, tc := range cases {
		if got := tc.b.Complete(); got != tc.want {
			t.Fatalf("%+v: got %v want %v", tc.b, got, tc.want)
		}
	}
}

func TestMemoryStore_GetByPaymentID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create(Record{CallSID: "CA1", PaymentID: "pay-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(Record{CallSID: "CA2", PaymentID: "pay-2"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := s.GetByPaymentID("pay-2")
	if err != nil {
		t.Fatalf("get by payment id: %v", err)
	}
	if rec.CallSID != "CA2" {
		t.Fatalf("wrong record: %+v", rec)
	}

	if _, err := s.GetByPaymentID("pay-3"); err == nil {
		t.Fatalf("expected error for unknown payment id")
	}
	if _, err := s.GetByPaymentID(""); err == nil {
		t.Fatalf("expected error for empty payment id")
	}
}

package calllog

import (
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

const callLogsTable = "call_logs"

// SupabaseStore keeps call records in a Supabase table, one row per call SID.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore connects with the service-role key.
func NewSupabaseStore(url, serviceRoleKey string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

func (s *SupabaseStore) Create(rec Record) error {
	if rec.CallSID == "" {
		return fmt.Errorf("call record missing call sid")
	}
	_, _, err := s.client.From(callLogsTable).
		Insert(rec, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert call record %s: %w", rec.CallSID, err)
	}
	return nil
}

func (s *SupabaseStore) Get(callSID string) (Record, error) {
	data, _, err := s.client.From(callLogsTable).
		Select("*", "", false).
		Eq("call_sid", callSID).
		Execute()
	if err != nil {
		return Record{}, fmt.Errorf("select call record %s: %w", callSID, err)
	}
	var rows []Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return Record{}, fmt.Errorf("decode call record %s: %w", callSID, err)
	}
	if len(rows) == 0 {
		return Record{}, fmt.Errorf("no call record for %s", callSID)
	}
	return rows[0], nil
}

func (s *SupabaseStore) GetByPaymentID(paymentID string) (Record, error) {
	if paymentID == "" {
		return Record{}, fmt.Errorf("missing payment id")
	}
	data, _, err := s.client.From(callLogsTable).
		Select("*", "", false).
		Eq("payment_id", paymentID).
		Execute()
	if err != nil {
		return Record{}, fmt.Errorf("select call record by payment id %s: %w", paymentID, err)
	}
	var rows []Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return Record{}, fmt.Errorf("decode call record for payment id %s: %w", paymentID, err)
	}
	if len(rows) == 0 {
		return Record{}, fmt.Errorf("no call record for payment id %s", paymentID)
	}
	return rows[0], nil
}

func (s *SupabaseStore) Update(rec Record) error {
	_, _, err := s.client.From(callLogsTable).
		Update(rec, "", "").
		Eq("call_sid", rec.CallSID).
		Execute()
	if err != nil {
		return fmt.Errorf("update call record %s: %w", rec.CallSID, err)
	}
	return nil
}

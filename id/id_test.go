package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/finshore/ledgerflow/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"DocumentID", id.NewDocumentID, "doc_"},
		{"RecordID", id.NewRecordID, "rec_"},
		{"LineItemID", id.NewLineItemID, "item_"},
		{"AgreementID", id.NewAgreementID, "agr_"},
		{"AnomalyID", id.NewAnomalyID, "anom_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.NewDocumentID()
	parsed, err := id.ParseDocumentID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestCrossTypeRejection(t *testing.T) {
	docID := id.NewDocumentID()
	if _, err := id.ParseAgreementID(docID.String()); err == nil {
		t.Error("expected error parsing document ID as agreement ID")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error parsing empty string")
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID
	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID string = %q, want empty", nilID.String())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	original := wrapper{ID: id.NewRecordID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID.String() != original.ID.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.ID.String(), original.ID.String())
	}
}

func TestJSONNilID(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	var decoded wrapper
	if err := json.Unmarshal([]byte(`{"id":""}`), &decoded); err != nil {
		t.Fatalf("unmarshal empty id: %v", err)
	}
	if !decoded.ID.IsNil() {
		t.Error("expected nil ID from empty string")
	}
}

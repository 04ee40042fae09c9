package models

import (
	"testing"
	"time"
)

func TestNormalizeCompanyName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Musterfirma GmbH", "musterfirma gmbh"},
		{"  Musterfirma   GmbH  ", "musterfirma gmbh"},
		{"MUSTERFIRMA\tGMBH", "musterfirma gmbh"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCompanyName(tt.in); got != tt.want {
			t.Errorf("NormalizeCompanyName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReportKeyInsensitiveToFormatting(t *testing.T) {
	a := ReportKey("Musterfirma GmbH", "r1")
	b := ReportKey("  musterfirma   gmbh ", "r1")
	if a != b {
		t.Error("key must not depend on input formatting")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
	if a == ReportKey("Musterfirma GmbH", "r2") {
		t.Error("different reports must get different keys")
	}
}

func TestDeriveReportIDStable(t *testing.T) {
	a := DeriveReportID("Musterfirma GmbH", "Jahresabschluss 2022", "2023-08-15")
	b := DeriveReportID("Musterfirma GmbH", "Jahresabschluss 2022", "2023-08-15")
	if a != b {
		t.Error("id must be deterministic")
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(a))
	}
	if a == DeriveReportID("Musterfirma GmbH", "Jahresabschluss 2022", "2022-08-15") {
		t.Error("date must contribute to identity")
	}
}

func TestReportDateString(t *testing.T) {
	dated := Report{PublishDate: time.Date(2023, 8, 15, 0, 0, 0, 0, time.UTC)}
	if got := dated.DateString(); got != "2023-08-15" {
		t.Errorf("date string = %q", got)
	}
	undated := Report{}
	if got := undated.DateString(); got != "unknown" {
		t.Errorf("undated string = %q", got)
	}
}

func TestFinancialRecordHasData(t *testing.T) {
	empty := FinancialRecord{}
	if empty.HasData() {
		t.Error("record with no figures must report no data")
	}
	revenue := 1000.0
	partial := FinancialRecord{Revenue: &revenue}
	if !partial.HasData() {
		t.Error("one figure is enough")
	}
}

package core

import "testing"

func TestParametersStringParseRoundTrip(t *testing.T) {
	p := &Parameters{
		C: 0.0488, DT: 86400, UD0: 1000, SigPeriod: 432000, SigStock: 100,
		SigWindow: 5259600, SigValidity: 63115200, SigQty: 5, IdtyWindow: 5259600,
		MsWindow: 5259600, XPercent: 0.8, MsValidity: 31557600, StepMax: 5,
		MedianTimeBlocks: 24, AvgGenTime: 300, DtDiffEval: 12, PercentRot: 0.67,
		UDTime0: 1488970800, UDReevalTime0: 1490094000, DtReeval: 15778800,
	}
	parsed, err := ParseParameters(p.String())
	if err != nil {
		t.Fatalf("ParseParameters: %v", err)
	}
	if *parsed != *p {
		t.Fatalf("parameters round trip mismatch: got %+v, want %+v", parsed, p)
	}
}

func TestParseParametersRejectsWrongFieldCount(t *testing.T) {
	if _, err := ParseParameters("0.0488:86400:1000"); err == nil {
		t.Fatalf("expected rejection of a Parameters field with fewer than 20 entries")
	}
}

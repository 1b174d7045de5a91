package models

import (
	"math"
	"testing"
)

func TestTemperature_RoundTripWholeRange(t *testing.T) {
	// Every representable code above the sentinels must survive a trip
	// through float and back unchanged.
	for raw := int32(math.MinInt16 + 2); raw <= math.MaxInt16; raw += 3 {
		want := Temperature(raw)
		got := TempFromCelsius(want.Celsius())
		if got != want {
			t.Fatalf("round trip %d tenths: got %d", raw, int16(got))
		}
	}
}

func TestTemperature_SentinelRoundTrip(t *testing.T) {
	if got := TempFromCelsius(TempInvalid.Celsius()); got != TempInvalid {
		t.Fatalf("invalid sentinel: got %d", int16(got))
	}
	if got := TempFromCelsius(TempUnknown.Celsius()); got != TempUnknown {
		t.Fatalf("unknown sentinel: got %d", int16(got))
	}
	if !math.IsNaN(TempInvalid.Celsius()) {
		t.Fatalf("expected NaN for invalid reading, got %v", TempInvalid.Celsius())
	}
}

func TestTempFromCelsius_Saturation(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want Temperature
	}{
		{"above max", 5000.0, math.MaxInt16},
		{"just above max", 3276.8, math.MaxInt16},
		{"max exact", 3276.7, math.MaxInt16},
		{"below min", -5000.0, math.MinInt16},
		{"nan", math.NaN(), TempInvalid},
		{"plus inf", math.Inf(1), TempInvalid},
		{"minus inf", math.Inf(-1), TempInvalid},
	}
	for _, tc := range cases {
		if got := TempFromCelsius(tc.in); got != tc.want {
			t.Errorf("%s: TempFromCelsius(%v) = %d, want %d", tc.name, tc.in, int16(got), int16(tc.want))
		}
	}
}

func TestTempFromCelsius_Rounding(t *testing.T) {
	cases := []struct {
		in   float64
		want Temperature
	}{
		{25.04, 250},
		{25.06, 251},
		{-25.04, -250},
		{-25.06, -251},
		{0.049, 0},
		{-0.049, 0},
	}
	for _, tc := range cases {
		if got := TempFromCelsius(tc.in); got != tc.want {
			t.Errorf("TempFromCelsius(%v) = %d, want %d", tc.in, int16(got), int16(tc.want))
		}
	}
}

func TestTemperature_ArithmeticSaturatesInsteadOfWrapping(t *testing.T) {
	big := Temperature(30000)
	if got := big.Add(10000); got != math.MaxInt16 {
		t.Fatalf("Add overflow: got %d, want saturation", int16(got))
	}
	small := Temperature(-30000)
	if got := small.Sub(10000); got != math.MinInt16 {
		t.Fatalf("Sub underflow: got %d, want saturation", int16(got))
	}
	if got := Temperature(200).Add(-50); got != 150 {
		t.Fatalf("Add: got %d, want 150", int16(got))
	}
	if got := Temperature(200).Sub(250); got != -50 {
		t.Fatalf("Sub: got %d, want -50", int16(got))
	}
}

func TestTemperature_SentinelsAbsorb(t *testing.T) {
	if got := TempInvalid.Add(100); got != TempInvalid {
		t.Fatalf("invalid + 100 = %d, want invalid", int16(got))
	}
	if got := Temperature(100).Sub(TempInvalid); got != TempInvalid {
		t.Fatalf("100 - invalid = %d, want invalid", int16(got))
	}
}

func TestTemperature_ComparisonsFalseOnSentinels(t *testing.T) {
	probe := Temperature(500)
	for _, s := range []Temperature{TempInvalid, TempUnknown} {
		if s.Greater(probe) || probe.Greater(s) {
			t.Fatalf("Greater must be false against sentinel %d", int16(s))
		}
		if s.GreaterOrEqual(probe) || probe.GreaterOrEqual(s) {
			t.Fatalf("GreaterOrEqual must be false against sentinel %d", int16(s))
		}
		if s.Less(probe) || probe.Less(s) {
			t.Fatalf("Less must be false against sentinel %d", int16(s))
		}
		if s.LessOrEqual(probe) || probe.LessOrEqual(s) {
			t.Fatalf("LessOrEqual must be false against sentinel %d", int16(s))
		}
	}
	if !probe.Greater(499) || !probe.GreaterOrEqual(500) || !probe.Less(501) {
		t.Fatalf("comparisons broken on ordinary values")
	}
}

func TestTemperature_Abs(t *testing.T) {
	if got := Temperature(-123).Abs(); got != 123 {
		t.Fatalf("Abs(-123) = %d", int16(got))
	}
	if got := TempUnknown.Abs(); got != math.MaxInt16 {
		t.Fatalf("Abs(min+1) must clamp, got %d", int16(got))
	}
	if got := TempInvalid.Abs(); got != TempInvalid {
		t.Fatalf("Abs(invalid) = %d, want invalid", int16(got))
	}
}

func TestTemperature_String(t *testing.T) {
	cases := []struct {
		in   Temperature
		want string
	}{
		{0, "0.0"},
		{755, "75.5"},
		{-123, "-12.3"},
		{-5, "-0.5"},
		{TempInvalid, "N/A"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", int16(tc.in), got, tc.want)
		}
	}
}

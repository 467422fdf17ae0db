package control

import (
	"testing"
	"time"
)

func TestDecide_Daytime(t *testing.T) {
	tests := []struct {
		temp       float64
		wantHeater bool
		wantCooler bool
	}{
		{10, true, false},
		{23.9, true, false},
		{24, false, false},
		{25, false, false},
		{27, false, false},
		{27.1, false, true},
		{35, false, true},
	}

	for _, tt := range tests {
		got := Decide(tt.temp, 70, true)
		if got.Heater != tt.wantHeater || got.Cooler != tt.wantCooler {
			t.Errorf("Decide(%v, day) = %+v, want heater=%v cooler=%v", tt.temp, got, tt.wantHeater, tt.wantCooler)
		}
	}
}

func TestDecide_Night(t *testing.T) {
	tests := []struct {
		temp       float64
		wantHeater bool
		wantCooler bool
	}{
		{10, true, false},
		{15.9, true, false},
		{16, false, false},
		{18, false, false},
		{18.1, false, true},
		{25, false, true},
	}

	for _, tt := range tests {
		got := Decide(tt.temp, 70, false)
		if got.Heater != tt.wantHeater || got.Cooler != tt.wantCooler {
			t.Errorf("Decide(%v, night) = %+v, want heater=%v cooler=%v", tt.temp, got, tt.wantHeater, tt.wantCooler)
		}
	}
}

func TestDecide_HumidifierIgnoresDaytime(t *testing.T) {
	for _, h := range []float64{0, 30, 59.9, 60, 60.1, 100} {
		want := h < 60
		for _, day := range []bool{true, false} {
			if got := Decide(20, h, day).Humidifier; got != want {
				t.Errorf("Decide(20, %v, %v).Humidifier = %v, want %v", h, day, got, want)
			}
		}
	}
}

func TestDecide_NeverHeatsAndCools(t *testing.T) {
	for temp := -20.0; temp <= 60; temp += 0.5 {
		for _, day := range []bool{true, false} {
			s := Decide(temp, 50, day)
			if s.Heater && s.Cooler {
				t.Fatalf("Decide(%v, %v) turns on heater and cooler", temp, day)
			}
		}
	}
}

func TestIsDaytime(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		at := time.Date(2024, 3, 10, hour, 30, 0, 0, time.UTC)
		want := hour >= 10 && hour <= 18
		if got := IsDaytime(at); got != want {
			t.Errorf("IsDaytime(hour %d) = %v, want %v", hour, got, want)
		}
	}
}

func TestIsDaytime_BoundaryHours(t *testing.T) {
	nine := time.Date(2024, 3, 10, 9, 59, 59, 0, time.UTC)
	if IsDaytime(nine) {
		t.Error("09:59 must not be daytime")
	}
	ten := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	if !IsDaytime(ten) {
		t.Error("10:00 must be daytime")
	}
	nineteen := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	if IsDaytime(nineteen) {
		t.Error("19:00 must not be daytime")
	}
}

func TestIsDaytime_UsesLocation(t *testing.T) {
	// 08:00 UTC is 14:00 at UTC+6
	loc := time.FixedZone("UTC+6", 6*3600)
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	if IsDaytime(at) {
		t.Error("08:00 UTC should be night")
	}
	if !IsDaytime(at.In(loc)) {
		t.Error("14:00 local should be daytime")
	}
}

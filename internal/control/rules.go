// Package control turns sensor readings and remote overrides into actuator commands.
//
// Decide is a pure function of (temperature, humidity, daytime); it holds no
// memory of earlier decisions and performs no I/O. The Arbiter owns the only
// applied ActuatorState and the OverrideStore owns the only manual command.
package control

import "time"

// Thresholds, °C and %RH.
const (
	HumidifyBelow = 60.0

	DayHeatBelow = 24.0
	DayCoolAbove = 27.0

	NightHeatBelow = 16.0
	NightCoolAbove = 18.0
)

// The daytime window is exclusive on both bounds: 10:00 through 18:59.
const (
	daytimeAfterHour  = 9
	daytimeBeforeHour = 19
)

// Decide returns the autonomous actuator state for one reading.
func Decide(temperature, humidity float64, daytime bool) State {
	s := State{Humidifier: humidity < HumidifyBelow}
	if daytime {
		s.Heater = temperature < DayHeatBelow
		s.Cooler = temperature > DayCoolAbove
	} else {
		s.Heater = temperature < NightHeatBelow
		s.Cooler = temperature > NightCoolAbove
	}
	return s
}

// IsDaytime reports whether t falls inside the daytime window, using t's location.
func IsDaytime(t time.Time) bool {
	h := t.Hour()
	return h > daytimeAfterHour && h < daytimeBeforeHour
}

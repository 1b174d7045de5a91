package models

import "time"

// BoilerStatus is the aggregate view served over the API and pushed to
// websocket subscribers. Enum fields are rendered as strings so clients
// never depend on internal numeric codes.
type BoilerStatus struct {
	Enabled        bool      `json:"enabled"`
	State          string    `json:"state"`
	Mode           string    `json:"mode"`
	Power          string    `json:"power"`
	FailsafeLevel  string    `json:"failsafe_level"`
	FailsafeReason string    `json:"failsafe_reason,omitempty"`
	BoilerTempC    float64   `json:"boiler_temp_c"`
	ReturnTempC    float64   `json:"return_temp_c"`
	TankTempC      float64   `json:"tank_temp_c"`
	TargetTempC    float64   `json:"target_temp_c"`
	PressureBar    float64   `json:"pressure_bar"`
	PressureValid  bool      `json:"pressure_valid"`
	Modulation     int       `json:"modulation_percent"`
	ActiveRelays   []string  `json:"active_relays"`
	IgnitionTries  int       `json:"ignition_attempts"`
	LockedOut      bool      `json:"locked_out"`
	LockoutUntil   time.Time `json:"lockout_until,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RuntimeCounters accumulates lifetime service statistics. Persisted
// periodically so totals survive restarts.
type RuntimeCounters struct {
	TotalRuntime      time.Duration `json:"total_runtime"`
	BurnerRuntime     time.Duration `json:"burner_runtime"`
	HeatingCycles     uint32        `json:"heating_cycles"`
	WaterCycles       uint32        `json:"water_cycles"`
	HeatingPumpStarts uint32        `json:"heating_pump_starts"`
	WaterPumpStarts   uint32        `json:"water_pump_starts"`
	IgnitionCount     uint32        `json:"ignition_count"`
	LockoutCount      uint32        `json:"lockout_count"`
	EmergencyStops    uint32        `json:"emergency_stops"`
	LastBoot          time.Time     `json:"last_boot"`
}

// StatePersisted is the single-row operational state snapshot kept in the
// database so an orderly restart resumes from the last known posture.
type StatePersisted struct {
	Enabled      bool      `json:"enabled"`
	Mode         string    `json:"mode"`
	Power        string    `json:"power"`
	TargetTenths int16     `json:"target_tenths"`
	UpdatedAt    time.Time `json:"updated_at"`
}

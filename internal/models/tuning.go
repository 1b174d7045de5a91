package models

import "time"

// Control loop names used as the persistence key for PID tuning.
const (
	LoopHeating = "heating"
	LoopWater   = "water"
)

// PIDTuning holds one control loop's gains and output clamp. Gains are
// fixed point scaled by 1000 (Kp=2500 means 2.5); the output bounds are
// plain Temperature values.
type PIDTuning struct {
	Kp        int32       `json:"kp"`
	Ki        int32       `json:"ki"`
	Kd        int32       `json:"kd"`
	OutputMin Temperature `json:"output_min_tenths"`
	OutputMax Temperature `json:"output_max_tenths"`
	UpdatedAt time.Time   `json:"updated_at"`
}

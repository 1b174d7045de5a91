package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the boot-time configuration tree read from configs/config.yml.
// Values here are fixed for the life of the process; the runtime-tunable
// safety parameters live in SafetyParams and only take their initial
// values from this tree.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Port     string `mapstructure:"port"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Auth struct {
		SigningKey string        `mapstructure:"signing_key"`
		TokenTTL   time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	MQTT struct {
		Enabled       bool          `mapstructure:"enabled"`
		BrokerURL     string        `mapstructure:"broker_url"`
		ClientID      string        `mapstructure:"client_id"`
		Username      string        `mapstructure:"username"`
		Password      string        `mapstructure:"password"`
		SensorTopic   string        `mapstructure:"sensor_topic"`
		StatusTopic   string        `mapstructure:"status_topic"`
		PublishPeriod time.Duration `mapstructure:"publish_period"`
	} `mapstructure:"mqtt"`

	GPIO struct {
		Enabled   bool   `mapstructure:"enabled"`
		Chip      string `mapstructure:"chip"`
		Lines     []int  `mapstructure:"lines"`
		ActiveLow bool   `mapstructure:"active_low"`
	} `mapstructure:"gpio"`

	Simulation struct {
		Enabled bool          `mapstructure:"enabled"`
		Tick    time.Duration `mapstructure:"tick"`
	} `mapstructure:"simulation"`

	// Control loop cadences are compiled in; only the counter persistence
	// period is a deployment choice (it trades flash wear against the
	// runtime lost on a power cut).
	Control struct {
		PersistPeriod time.Duration `mapstructure:"persist_period"`
	} `mapstructure:"control"`

	Safety SafetyFileConfig `mapstructure:"safety"`
}

// SafetyFileConfig holds the boot-time values for the safety parameter
// store plus the deploy-time policy switches that are deliberately not
// runtime-mutable.
type SafetyFileConfig struct {
	// AllowMissingPressure selects the policy when no valid pressure
	// reading exists: false blocks combustion (fail closed), true permits
	// it with a logged warning (fail open, bench setups without a sensor).
	// Deploy-time decision only; there is no setter.
	AllowMissingPressure bool `mapstructure:"allow_missing_pressure"`

	// Operating band the validator enforces, in hundredths of a bar.
	PressureMin int `mapstructure:"pressure_min"`
	PressureMax int `mapstructure:"pressure_max"`

	MaxBoilerTempC    float64       `mapstructure:"max_boiler_temp_c"`
	MaxWaterTempC     float64       `mapstructure:"max_water_temp_c"`
	ThermalShockC     float64       `mapstructure:"thermal_shock_c"`
	MinSensors        int           `mapstructure:"min_sensors"`
	MaxContinuousRun  time.Duration `mapstructure:"max_continuous_run"`
	MaxDailyRun       time.Duration `mapstructure:"max_daily_run"`
	PumpDwell         time.Duration `mapstructure:"pump_dwell"`
	SensorStale       time.Duration `mapstructure:"sensor_stale"`
	PostPurge         time.Duration `mapstructure:"post_purge"`
	ErrorRecovery     time.Duration `mapstructure:"error_recovery"`
	PIDIntegralMinC   float64       `mapstructure:"pid_integral_min_c"`
	PIDIntegralMaxC   float64       `mapstructure:"pid_integral_max_c"`
}

// Load reads configs/config.yml from the working directory and unmarshals
// it over the built-in defaults. A missing file is an error: deployments
// must state their wiring explicitly.
func Load() (*Config, error) {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("port", "8080")
	viper.SetDefault("db.path", "boilerctl.db")
	viper.SetDefault("auth.token_ttl", time.Hour)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.client_id", "boilerd")
	viper.SetDefault("mqtt.sensor_topic", "boiler/sensors/#")
	viper.SetDefault("mqtt.status_topic", "boiler/status")
	viper.SetDefault("mqtt.publish_period", 5*time.Second)

	viper.SetDefault("gpio.enabled", false)
	viper.SetDefault("gpio.chip", "gpiochip0")
	viper.SetDefault("gpio.active_low", true)

	viper.SetDefault("simulation.enabled", true)
	viper.SetDefault("simulation.tick", time.Second)

	viper.SetDefault("control.persist_period", time.Minute)

	viper.SetDefault("safety.allow_missing_pressure", false)
	viper.SetDefault("safety.pressure_min", 100) // 1.00 bar
	viper.SetDefault("safety.pressure_max", 350) // 3.50 bar
	viper.SetDefault("safety.max_boiler_temp_c", 110.0)
	viper.SetDefault("safety.max_water_temp_c", 65.0)
	viper.SetDefault("safety.thermal_shock_c", 30.0)
	viper.SetDefault("safety.min_sensors", 2)
	viper.SetDefault("safety.max_continuous_run", 4*time.Hour)
	viper.SetDefault("safety.max_daily_run", 16*time.Hour)
	viper.SetDefault("safety.pump_dwell", 15*time.Second)
	viper.SetDefault("safety.sensor_stale", 60*time.Second)
	viper.SetDefault("safety.post_purge", 90*time.Second)
	viper.SetDefault("safety.error_recovery", 5*time.Minute)
	viper.SetDefault("safety.pid_integral_min_c", -100.0)
	viper.SetDefault("safety.pid_integral_max_c", 100.0)
}

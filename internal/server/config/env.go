package config

import (
	"fmt"
	"os"
	"strconv"
)

var lookupEnv = os.LookupEnv

// parseEnv overlays the variables the box controller is deployed with.
// Variables that are unset or empty are ignored; a malformed number panics.
func parseEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", name, err))
		}
		*dst = n
	}

	str("DATABASE_DSN", &config.DatabaseDSN)
	str("READER_ID", &config.ReaderID)
	str("MQTT_HOST", &config.MQTTHost)
	num("MQTT_PORT", &config.MQTTPort)
	str("MQTT_USER", &config.MQTTUser)
	str("MQTT_PASS", &config.MQTTPass)
	str("MQTT_BASE", &config.MQTTBase)
	num("CAMERA_INDEX", &config.CameraIndex)
	num("CAMERA_WARMUP_FRAMES", &config.CameraWarmupFrames)
	num("VISION_TARGET_WIDTH", &config.TargetWidth)
	num("VISION_TARGET_HEIGHT", &config.TargetHeight)
}

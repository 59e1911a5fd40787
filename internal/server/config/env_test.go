package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func Test_parseEnv(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	parseEnv(cfg, mapEnv(map[string]string{
		"DATABASE_DSN":         "postgres://box",
		"READER_ID":            "rockpi-07",
		"MQTT_HOST":            "10.0.0.5",
		"MQTT_PORT":            "1884",
		"MQTT_USER":            "box",
		"MQTT_PASS":            "secret",
		"MQTT_BASE":            "lab/caixa",
		"CAMERA_INDEX":         "1",
		"CAMERA_WARMUP_FRAMES": "3",
		"VISION_TARGET_WIDTH":  "1280",
		"VISION_TARGET_HEIGHT": "",
	}))

	assert.Equal(t, "postgres://box", cfg.DatabaseDSN)
	assert.Equal(t, "rockpi-07", cfg.ReaderID)
	assert.Equal(t, "10.0.0.5", cfg.MQTTHost)
	assert.Equal(t, 1884, cfg.MQTTPort)
	assert.Equal(t, "box", cfg.MQTTUser)
	assert.Equal(t, "secret", cfg.MQTTPass)
	assert.Equal(t, "lab/caixa", cfg.MQTTBase)
	assert.Equal(t, 1, cfg.CameraIndex)
	assert.Equal(t, 3, cfg.CameraWarmupFrames)
	assert.Equal(t, 1280, cfg.TargetWidth)
	assert.Equal(t, 1080, cfg.TargetHeight, "empty keeps the default")
}

func Test_parseEnv_BadNumberPanics(t *testing.T) {
	cfg := &Config{}
	require.Panics(t, func() {
		parseEnv(cfg, mapEnv(map[string]string{"MQTT_PORT": "abc"}))
	})
}

package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/flagx"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "30s" or integer nanoseconds. Absent fields keep their current value.
type JsonConfig struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseDSN string `json:"database_dsn"`
	LogLevel    string `json:"log_level"`

	MediaRoot      string         `json:"media_root"`
	VisionDir      string         `json:"vision_dir"`
	EvidenceDriver string         `json:"evidence_driver"`
	S3RootUser     string         `json:"s3_root_user"`
	S3RootPassword string         `json:"s3_root_password"`
	S3Bucket       string         `json:"s3_bucket"`
	S3Region       string         `json:"s3_region"`
	S3BaseEndpoint string         `json:"s3_base_endpoint"`
	PresignTTL     timex.Duration `json:"presign_ttl"`

	MQTTHost        string         `json:"mqtt_host"`
	MQTTPort        int            `json:"mqtt_port"`
	MQTTUser        string         `json:"mqtt_user"`
	MQTTPass        string         `json:"mqtt_pass"`
	MQTTBase        string         `json:"mqtt_base"`
	MQTTClientID    string         `json:"mqtt_client_id"`
	PublishTimeout  timex.Duration `json:"publish_timeout"`
	CommandMode     string         `json:"command_mode"`
	CommandTimeoutS int            `json:"command_timeout_s"`

	DefaultReaderID string `json:"default_reader_id"`
	ReaderID        string `json:"reader_id"`

	CameraIndex        *int           `json:"camera_index"`
	CameraWarmupFrames *int           `json:"camera_warmup_frames"`
	TargetWidth        int            `json:"vision_target_width"`
	TargetHeight       int            `json:"vision_target_height"`
	AnalyzerMode       string         `json:"analyzer_mode"`
	AnalyzerBinary     string         `json:"analyzer_binary"`
	AnalysisTimeout    timex.Duration `json:"analysis_timeout"`
	CaptureTimeout     timex.Duration `json:"capture_timeout"`

	ActiveSessionWindow  timex.Duration `json:"active_session_window"`
	SessionSweepInterval timex.Duration `json:"session_sweep_interval"`
	SessionMaxAge        timex.Duration `json:"session_max_age"`
	RFIDBridgeEnabled    *bool          `json:"rfid_bridge_enabled"`
}

// parseJson loads the file named by -c / -config, if any, and copies every
// field it sets into config. An unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.MediaRoot, c.MediaRoot)
	setString(&config.VisionDir, c.VisionDir)
	setString(&config.EvidenceDriver, c.EvidenceDriver)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.PresignTTL, c.PresignTTL)

	setString(&config.MQTTHost, c.MQTTHost)
	setInt(&config.MQTTPort, c.MQTTPort)
	setString(&config.MQTTUser, c.MQTTUser)
	setString(&config.MQTTPass, c.MQTTPass)
	setString(&config.MQTTBase, c.MQTTBase)
	setString(&config.MQTTClientID, c.MQTTClientID)
	setDuration(&config.PublishTimeout, c.PublishTimeout)
	setString(&config.CommandMode, c.CommandMode)
	setInt(&config.CommandTimeoutS, c.CommandTimeoutS)

	setString(&config.DefaultReaderID, c.DefaultReaderID)
	setString(&config.ReaderID, c.ReaderID)

	if c.CameraIndex != nil {
		config.CameraIndex = *c.CameraIndex
	}
	if c.CameraWarmupFrames != nil {
		config.CameraWarmupFrames = *c.CameraWarmupFrames
	}
	setInt(&config.TargetWidth, c.TargetWidth)
	setInt(&config.TargetHeight, c.TargetHeight)
	setString(&config.AnalyzerMode, c.AnalyzerMode)
	setString(&config.AnalyzerBinary, c.AnalyzerBinary)
	setDuration(&config.AnalysisTimeout, c.AnalysisTimeout)
	setDuration(&config.CaptureTimeout, c.CaptureTimeout)

	setDuration(&config.ActiveSessionWindow, c.ActiveSessionWindow)
	setDuration(&config.SessionSweepInterval, c.SessionSweepInterval)
	setDuration(&config.SessionMaxAge, c.SessionMaxAge)
	if c.RFIDBridgeEnabled != nil {
		config.RFIDBridgeEnabled = *c.RFIDBridgeEnabled
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

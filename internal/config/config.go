// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Sample sources selectable with SAMPLE_SOURCE.
const (
	SourceMock     = "mock"
	SourceHardware = "hardware"
	SourceSerial   = "serial"
)

// Config holds all application configuration values.
type Config struct {
	// Streaming
	DestinationIP      string
	PortIMULeft        int
	PortIMURight       int
	PortAudio          int
	PortPPG            int
	IMUDualMerge       bool
	IMUSendInterval    time.Duration
	PPGSendInterval    time.Duration
	AudioSendInterval  time.Duration
	AudioBufferBytes   int
	AudioPCMPath       string
	StreamWriteTimeout time.Duration

	// Calibration
	CalibrationWindow             time.Duration
	CalibrationMinHeadingDeltaDeg float64
	CalibrationMinGravityZ        float64
	CalibrationHeadingCorrection  float64
	CalibrationDevice             string
	HapticGPIOPin                 string

	// Sample source
	SampleSource   string
	SerialPort     string
	SerialBaudRate uint

	// IMU Hardware
	IMULeftSPIDevice  string
	IMULeftCSPin      string
	IMURightSPIDevice string
	IMURightCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	IMUSampleInterval int // milliseconds

	// BMP Hardware
	BMPLeftSPIDevice  string
	BMPRightSPIDevice string

	// MQTT
	MQTTBroker           string
	MQTTClientIDStreamer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string

	// Topics
	TopicCalibration      string
	TopicCalibrationStage string
	TopicStreamState      string

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Default returns a configuration with every optional key at its default.
func Default() *Config {
	return &Config{
		DestinationIP:      "127.0.0.1",
		PortIMULeft:        65000,
		PortIMURight:       65003,
		PortAudio:          65001,
		PortPPG:            65002,
		IMUSendInterval:    10 * time.Millisecond,
		PPGSendInterval:    40 * time.Millisecond,
		AudioSendInterval:  50 * time.Millisecond,
		AudioBufferBytes:   1600,
		StreamWriteTimeout: 250 * time.Millisecond,

		CalibrationWindow:             3000 * time.Millisecond,
		CalibrationMinHeadingDeltaDeg: 67.5,
		CalibrationMinGravityZ:        9.75,
		CalibrationHeadingCorrection:  90,
		CalibrationDevice:             "left",

		SampleSource:   SourceMock,
		SerialBaudRate: 115200,

		IMUAccelRange:     0,
		IMUGyroRange:      0,
		IMUSampleInterval: 10,

		MQTTClientIDStreamer: "mocap-streamer",
		MQTTClientIDConsole:  "mocap-console",
		MQTTClientIDDisplay:  "mocap-display",

		TopicCalibration:      "mocap/calibration",
		TopicCalibrationStage: "mocap/calibration/stage",
		TopicStreamState:      "mocap/stream",

		WebServerPort: 8080,

		DisplayI2CBus:         "",
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
	}
}

// Load reads a KEY=VALUE configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return FromMap(values)
}

// FromMap applies values on top of Default and validates the result.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(values[key])); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Streaming
	case "DESTINATION_IP":
		c.DestinationIP = value
	case "PORT_IMU_LEFT":
		c.PortIMULeft, err = parsePort(key, value)
	case "PORT_IMU_RIGHT":
		c.PortIMURight, err = parsePort(key, value)
	case "PORT_AUDIO":
		c.PortAudio, err = parsePort(key, value)
	case "PORT_PPG":
		c.PortPPG, err = parsePort(key, value)
	case "IMU_DUAL_MERGE":
		c.IMUDualMerge, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_DUAL_MERGE %q: %w", value, err)
		}
	case "IMU_SEND_INTERVAL_MS":
		c.IMUSendInterval, err = parseMillis(key, value)
	case "PPG_SEND_INTERVAL_MS":
		c.PPGSendInterval, err = parseMillis(key, value)
	case "AUDIO_SEND_INTERVAL_MS":
		c.AudioSendInterval, err = parseMillis(key, value)
	case "AUDIO_BUFFER_BYTES":
		n, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid AUDIO_BUFFER_BYTES %q: %w", value, perr)
		}
		if n <= 0 || n%2 != 0 {
			return fmt.Errorf("AUDIO_BUFFER_BYTES must be a positive even number, got %d", n)
		}
		c.AudioBufferBytes = n
	case "AUDIO_PCM_PATH":
		c.AudioPCMPath = value
	case "STREAM_WRITE_TIMEOUT_MS":
		c.StreamWriteTimeout, err = parseMillis(key, value)

	// Calibration
	case "CALIBRATION_WINDOW_MS":
		c.CalibrationWindow, err = parseMillis(key, value)
	case "CALIBRATION_MIN_HEADING_DELTA_DEG":
		c.CalibrationMinHeadingDeltaDeg, err = parseFloat(key, value)
		if err == nil && (c.CalibrationMinHeadingDeltaDeg < 0 || c.CalibrationMinHeadingDeltaDeg > 180) {
			return fmt.Errorf("CALIBRATION_MIN_HEADING_DELTA_DEG must be 0-180, got %v", c.CalibrationMinHeadingDeltaDeg)
		}
	case "CALIBRATION_MIN_GRAVITY_Z":
		c.CalibrationMinGravityZ, err = parseFloat(key, value)
	case "CALIBRATION_HEADING_CORRECTION_DEG":
		c.CalibrationHeadingCorrection, err = parseFloat(key, value)
	case "CALIBRATION_DEVICE":
		c.CalibrationDevice = value
	case "HAPTIC_GPIO_PIN":
		c.HapticGPIOPin = value

	// Sample source
	case "SAMPLE_SOURCE":
		switch value {
		case SourceMock, SourceHardware, SourceSerial:
			c.SampleSource = value
		default:
			return fmt.Errorf("SAMPLE_SOURCE must be one of mock, hardware, serial, got %q", value)
		}
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, perr := strconv.ParseUint(value, 10, 32)
		if perr != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, perr)
		}
		c.SerialBaudRate = uint(rate)

	// IMU Hardware
	case "IMU_LEFT_SPI_DEVICE":
		c.IMULeftSPIDevice = value
	case "IMU_LEFT_CS_PIN":
		c.IMULeftCSPin = value
	case "IMU_RIGHT_SPI_DEVICE":
		c.IMURightSPIDevice = value
	case "IMU_RIGHT_CS_PIN":
		c.IMURightCSPin = value

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		rangeVal, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, perr)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, perr)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "IMU_SAMPLE_INTERVAL":
		interval, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_INTERVAL %q: %w", value, perr)
		}
		c.IMUSampleInterval = interval

	// BMP Hardware
	case "BMP_LEFT_SPI_DEVICE":
		c.BMPLeftSPIDevice = value
	case "BMP_RIGHT_SPI_DEVICE":
		c.BMPRightSPIDevice = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_STREAMER":
		c.MQTTClientIDStreamer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value
	case "TOPIC_CALIBRATION_STAGE":
		c.TopicCalibrationStage = value
	case "TOPIC_STREAM_STATE":
		c.TopicStreamState = strings.TrimSuffix(value, "/")

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parsePort(key, value)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, perr)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field rules and required values.
func (c *Config) validate() error {
	if net.ParseIP(c.DestinationIP) == nil {
		return fmt.Errorf("DESTINATION_IP %q is not an IP address", c.DestinationIP)
	}
	if c.CalibrationWindow <= 0 {
		return fmt.Errorf("CALIBRATION_WINDOW_MS must be positive")
	}
	if c.CalibrationDevice == "" {
		return fmt.Errorf("CALIBRATION_DEVICE is required")
	}
	if c.IMUSendInterval <= 0 || c.PPGSendInterval <= 0 || c.AudioSendInterval <= 0 {
		return fmt.Errorf("send intervals must be positive")
	}
	if c.StreamWriteTimeout <= 0 {
		return fmt.Errorf("STREAM_WRITE_TIMEOUT_MS must be positive")
	}

	ports := map[int]string{}
	for name, port := range map[string]int{
		"PORT_IMU_LEFT":  c.PortIMULeft,
		"PORT_IMU_RIGHT": c.PortIMURight,
		"PORT_AUDIO":     c.PortAudio,
		"PORT_PPG":       c.PortPPG,
	} {
		if other, dup := ports[port]; dup {
			return fmt.Errorf("%s and %s share port %d", name, other, port)
		}
		ports[port] = name
	}

	switch c.SampleSource {
	case SourceHardware:
		if c.IMULeftSPIDevice == "" {
			return fmt.Errorf("IMU_LEFT_SPI_DEVICE is required for SAMPLE_SOURCE=hardware")
		}
		if c.IMUSampleInterval <= 0 {
			return fmt.Errorf("IMU_SAMPLE_INTERVAL is required for SAMPLE_SOURCE=hardware")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for SAMPLE_SOURCE=serial")
		}
		if c.SerialBaudRate == 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required for SAMPLE_SOURCE=serial")
		}
	}
	return nil
}

// StreamStateTopic returns the topic the state of one stream is published on.
func (c *Config) StreamStateTopic(kind string) string {
	return c.TopicStreamState + "/" + kind
}

func parsePort(key, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be 1-65535, got %d", key, port)
	}
	return port, nil
}

func parseMillis(key, value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

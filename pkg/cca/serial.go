package cca

import (
	"errors"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const DefaultBaudRate = 38400

type SerialConfig struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
	FlowControl bool
}

// SerialTransport reads the gateway bus through a local serial port. When
// FlowControl is set, RTS drives the RS-485 transceiver DE/RE line.
type SerialTransport struct {
	cfg    SerialConfig
	port   serial.Port
	logger *zap.Logger
}

var _ Transport = (*SerialTransport)(nil)
var _ FlowController = (*SerialTransport)(nil)
var _ Drainer = (*SerialTransport)(nil)

func NewSerialTransport(cfg SerialConfig, logger *zap.Logger) *SerialTransport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 20 * time.Millisecond
	}
	return &SerialTransport{cfg: cfg, logger: logger}
}

func (s *SerialTransport) Open() error {
	if s.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.cfg.Device, mode)
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
		port.Close()
		return err
	}
	if s.cfg.FlowControl {
		// receive mode
		if err := port.SetRTS(false); err != nil {
			port.Close()
			return err
		}
	}
	s.port = port
	s.logger.Info("serial port open", zap.String("device", s.cfg.Device), zap.Int("baud", s.cfg.BaudRate))
	return nil
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	if s.port == nil {
		return 0, errors.New("serial port not open")
	}
	return s.port.Read(p)
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, errors.New("serial port not open")
	}
	return s.port.Write(p)
}

func (s *SerialTransport) SetTransmit(enabled bool) error {
	if !s.cfg.FlowControl || s.port == nil {
		return nil
	}
	return s.port.SetRTS(enabled)
}

func (s *SerialTransport) Drain() error {
	if s.port == nil {
		return nil
	}
	return s.port.Drain()
}

func (s *SerialTransport) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

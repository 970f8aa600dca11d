package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type peripheral struct {
	name, addr string
}

func (p peripheral) Name() string    { return p.name }
func (p peripheral) Address() string { return p.addr }
func (p peripheral) RSSI() int       { return -50 }

type mockRadio struct {
	mock.Mock
}

func (m *mockRadio) Scan(ctx context.Context, dwell time.Duration) ([]device.Peripheral, error) {
	args := m.Called(ctx, dwell)
	ps, _ := args.Get(0).([]device.Peripheral)
	return ps, args.Error(1)
}

func (m *mockRadio) Connect(ctx context.Context, p device.Peripheral) (device.Link, error) {
	args := m.Called(ctx, p)
	l, _ := args.Get(0).(device.Link)
	return l, args.Error(1)
}

type ScannerTestSuite struct {
	suite.Suite
	radio   *mockRadio
	scanner *Scanner
}

func (s *ScannerTestSuite) SetupTest() {
	s.radio = &mockRadio{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.scanner = NewScanner(s.radio, Options{Dwell: time.Millisecond, Backoff: time.Millisecond}, logger)
}

func (s *ScannerTestSuite) TestFind_FirstMatchInDiscoveryOrderWins() {
	s.radio.On("Scan", mock.Anything, time.Millisecond).Return([]device.Peripheral{
		peripheral{name: "Heart", addr: "01"},
		peripheral{name: "ESP32_ATH_SPEC_B", addr: "02"},
		peripheral{name: "ESP32_ATH_SPEC_A", addr: "03"},
	}, nil).Once()

	p, err := s.scanner.Find(context.Background(), "ESP32_ATH_SPEC")
	s.Require().NoError(err)
	s.Equal("02", p.Address(), "first match in discovery order MUST win")
	s.radio.AssertExpectations(s.T())
}

func (s *ScannerTestSuite) TestFind_RetriesUntilFound() {
	// GOAL: Verify a miss or a scan error backs off and rescans instead of failing
	//
	// TEST SCENARIO: empty scan → scan error → match → returns the match after 3 scans

	s.radio.On("Scan", mock.Anything, mock.Anything).Return([]device.Peripheral{peripheral{name: "other", addr: "01"}}, nil).Once()
	s.radio.On("Scan", mock.Anything, mock.Anything).Return(nil, errors.New("hci busy")).Once()
	s.radio.On("Scan", mock.Anything, mock.Anything).Return([]device.Peripheral{peripheral{name: "my ESP32_ATH_SPEC", addr: "09"}}, nil).Once()

	p, err := s.scanner.Find(context.Background(), "ESP32_ATH_SPEC")
	s.Require().NoError(err)
	s.Equal("09", p.Address())
	s.radio.AssertNumberOfCalls(s.T(), "Scan", 3)
}

func (s *ScannerTestSuite) TestFind_StopsOnCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	s.radio.On("Scan", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(nil, nil)

	_, err := s.scanner.Find(ctx, "ESP32_ATH_SPEC")
	s.ErrorIs(err, context.Canceled)
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}

func TestMatch_IgnoresUnnamed(t *testing.T) {
	ps := []device.Peripheral{peripheral{addr: "01"}, peripheral{name: "x", addr: "02"}}
	assert.Equal(t, "02", Match(ps, "").Address(), "unnamed peripherals MUST NOT match")
	assert.Nil(t, Match(ps, "y"))
}

func TestNewScanner_Defaults(t *testing.T) {
	s := NewScanner(&mockRadio{}, Options{}, nil)
	assert.Equal(t, DefaultOptions(), s.opts)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blestream/internal/config"
	"github.com/srg/blestream/internal/device"
	"github.com/srg/blestream/internal/sink"
	"github.com/srg/blestream/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type recordingStore struct {
	mu     sync.Mutex
	writes map[string][][]float32
	closed bool
}

func (s *recordingStore) Write(_ context.Context, destination string, values []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = map[string][][]float32{}
	}
	s.writes[destination] = append(s.writes[destination], values)
	return nil
}
func (s *recordingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
func (s *recordingStore) count(dest string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes[dest])
}

type CommandTestSuite struct {
	suite.Suite
	radio         *testutils.FakeRadio
	link          *testutils.FakeLink
	store         *recordingStore
	originalRadio func(*logrus.Logger, config.DeviceConfig) (closableRadio, error)
	originalSink  func(context.Context, config.SinkConfig, *logrus.Logger) (sink.Sink, error)
}

func (s *CommandTestSuite) SetupTest() {
	for _, env := range []string{"BLE_DEVICE_NAME", "DATA_SIZE", "PG_USER", "PG_PASSWORD", "PG_TABLE", "SINK_KIND", "LOG_LEVEL"} {
		s.T().Setenv(env, "")
		os.Unsetenv(env)
	}

	s.link = testutils.NewLinkBuilder().
		WithCharacteristic("2a37", "notify").
		WithFragments([]byte{0x02, 0x01}, []byte{0x04, 0x03}).
		Build()
	s.radio = testutils.NewFakeRadio(
		testutils.NewPeripheral("", "00:00:00:00:00:09", -80),
		testutils.NewPeripheral("ESP32_ATH_SPEC_7", "00:00:00:00:00:01", -55),
		testutils.NewPeripheral("ESP32_ATH_SPEC_8", "00:00:00:00:00:02", -40),
	).QueueLink(s.link)
	s.store = &recordingStore{}

	s.originalRadio = radioFactory
	s.originalSink = sinkFactory
	radioFactory = func(*logrus.Logger, config.DeviceConfig) (closableRadio, error) { return s.radio, nil }
	sinkFactory = func(context.Context, config.SinkConfig, *logrus.Logger) (sink.Sink, error) { return s.store, nil }

	scanFormat = "table"
	scanName = ""
	scanDuration = 0
}

func (s *CommandTestSuite) TearDownTest() {
	radioFactory = s.originalRadio
	sinkFactory = s.originalSink
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func (s *CommandTestSuite) testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Device.PacketLength = 2
	cfg.Device.ScanDwell = time.Millisecond
	cfg.Device.RetryBackoff = 5 * time.Millisecond
	cfg.Device.PollInterval = 5 * time.Millisecond
	cfg.Sink.Destination = "spectra"
	return cfg
}

func (s *CommandTestSuite) TestRunAgentStoresPackets() {
	// GOAL: Verify the full pipeline from radio fragments to sink writes
	//
	// TEST SCENARIO: Peripheral sends 4 bytes in 2 fragments → one packet written to the destination → cancel stops cleanly

	logger := testutils.QuietLogger()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runAgent(ctx, s.testConfig(), logger, time.Millisecond) }()

	s.Eventually(func() bool { return s.store.count("spectra") == 1 }, 2*time.Second, time.Millisecond,
		"one packet MUST reach the sink")
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		s.Fail("runAgent MUST return after cancellation")
	}

	s.Equal([]float32{258, 772}, s.store.writes["spectra"][0])
	s.True(s.store.closed, "sink MUST be closed on exit")
	s.True(s.radio.Closed(), "radio MUST be closed on exit")
	s.Require().Len(s.radio.Dialed(), 1)
	s.Equal("ESP32_ATH_SPEC_7", s.radio.Dialed()[0].Name(), "first matching peripheral MUST be used")
	s.Equal(1, s.link.Disconnects(), "link MUST be released on exit")
}

func (s *CommandTestSuite) TestRunAgentRejectsBadGeometry() {
	cfg := s.testConfig()
	cfg.Device.SampleWidth = 3

	err := runAgent(context.Background(), cfg, testutils.QuietLogger(), 0)
	s.Error(err)
}

func (s *CommandTestSuite) TestScanJSONMarksTarget() {
	out, err := s.ExecuteCommand(rootCmd, "scan", "--format", "json", "--duration", "1ms")
	s.Require().NoError(err)

	var views []peripheralView
	s.Require().NoError(json.Unmarshal([]byte(out), &views))
	s.Require().Len(views, 3)
	s.False(views[0].Match)
	s.True(views[1].Match, "first named match MUST be marked")
	s.False(views[2].Match, "only one target MUST be marked")
}

func (s *CommandTestSuite) TestScanTable() {
	out, err := s.ExecuteCommand(rootCmd, "scan", "--format", "table", "--name", "SPEC_8", "--duration", "1ms")
	s.Require().NoError(err)

	s.Contains(out, "(unnamed)")
	s.Contains(out, "ESP32_ATH_SPEC_8")
	s.Contains(out, "-40 dBm")
	s.Contains(out, "<- target")
}

func (s *CommandTestSuite) TestScanRejectsFormat() {
	_, err := s.ExecuteCommand(rootCmd, "scan", "--format", "xml")
	s.Error(err)
}

func (s *CommandTestSuite) TestConfigPrintsYAMLWithoutSecrets() {
	s.T().Setenv("PG_USER", "agent")
	s.T().Setenv("PG_PASSWORD", "hunter2")
	s.T().Setenv("DATA_SIZE", "512")

	out, err := s.ExecuteCommand(rootCmd, "config")
	s.Require().NoError(err)

	s.Contains(out, "packet_length: 512")
	s.Contains(out, "user: agent")
	s.NotContains(out, "hunter2", "password MUST NOT be printed")
}

func (s *CommandTestSuite) TestConfigReportsProblems() {
	out, err := s.ExecuteCommand(rootCmd, "config")

	var cerr *config.Error
	s.Require().True(errors.As(err, &cerr), "missing PG_USER MUST fail validation")
	s.Contains(out, "# invalid: sink.postgres.user")
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}

func TestFormatUserError(t *testing.T) {
	assert.Contains(t, formatUserError(&config.Error{Problems: []string{"a", "b"}}), "  - a\n  - b")
	assert.Contains(t, formatUserError(errors.Join(errors.New("x"), device.ErrBluetoothOff)), "turned off")
	assert.Equal(t, "boom", formatUserError(errors.New("boom")))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
}

func TestTruncateNameKeepsWholeRunes(t *testing.T) {
	// GOAL: Verify long advertised names are shortened on rune boundaries
	//
	// TEST SCENARIO: short name unchanged → long ASCII cut to 24 → long multi-byte name stays valid UTF-8

	assert.Equal(t, "ESP32_ATH_SPEC", truncateName("ESP32_ATH_SPEC", 24))
	assert.Equal(t, "abcdefghijklmnopqrstu...", truncateName("abcdefghijklmnopqrstuvwxyz", 24))

	got := truncateName("Спектрометр_атмосферный_001", 24)
	assert.True(t, utf8.ValidString(got), "cut MUST NOT split a rune")
	assert.Equal(t, 24, utf8.RuneCountInString(got))
	assert.Equal(t, "Спектрометр_атмосферн...", got)
}

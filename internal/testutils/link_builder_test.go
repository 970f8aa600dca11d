package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blestream/internal/device"
	"github.com/stretchr/testify/suite"
)

type LinkBuilderTestSuite struct {
	suite.Suite
}

func (s *LinkBuilderTestSuite) TestFromJSON() {
	link := NewLinkBuilder().FromJSON(`{
		"peripheral": {"name": "%s", "address": "00:00:00:00:00:01", "rssi": -50},
		"characteristics": [
			{"uuid": "2a00", "properties": "read"},
			{"uuid": "2a37", "properties": "read,notify"}
		]
	}`, "ESP32_ATH_SPEC").Build()

	s.Equal("ESP32_ATH_SPEC", link.Peripheral().Name())
	s.Require().Len(link.Characteristics(), 2)
	s.Equal(device.PropRead|device.PropNotify, link.Characteristics()[1].Properties())
	s.True(link.IsConnected(), "built link MUST start connected")
}

func (s *LinkBuilderTestSuite) TestFragmentsReplayAfterSubscribe() {
	link := NewLinkBuilder().WithCharacteristic("2a37", "notify").WithFragments([]byte{1}, []byte{2}).Build()

	got := make(chan []byte, 2)
	s.Require().NoError(link.Subscribe(link.Characteristics()[0], func(b []byte) { got <- b }))

	s.Equal([]byte{1}, <-got)
	s.Equal([]byte{2}, <-got)
	s.Equal("2a37", link.Subscribed().UUID())
}

func (s *LinkBuilderTestSuite) TestSubscribeErrorAndDisconnect() {
	boom := errors.New("boom")
	link := NewLinkBuilder().WithSubscribeError(boom).Build()

	s.ErrorIs(link.Subscribe(nil, func([]byte) {}), boom)
	s.False(link.Notify([]byte{1}), "Notify without subscriber MUST report false")

	s.NoError(link.Disconnect())
	s.NoError(link.Disconnect())
	s.False(link.IsConnected())
	s.Equal(2, link.Disconnects())
}

func (s *LinkBuilderTestSuite) TestParseProperties() {
	p, err := ParseProperties("read, indicate")
	s.Require().NoError(err)
	s.Equal(device.PropRead|device.PropIndicate, p)
	s.Equal("read,indicate", p.String(), "names MUST round-trip through Property.String")

	_, err = ParseProperties("teleport")
	s.Error(err)

	s.Panics(func() { NewLinkBuilder().WithCharacteristic("x", "teleport").Build() })
}

func (s *LinkBuilderTestSuite) TestRadioOutcomesInOrder() {
	target := NewPeripheral("dev", "00:00:00:00:00:01", -40)
	link := NewLinkBuilder().Build()
	radio := NewFakeRadio(target).QueueConnectError(device.ErrDialFailed).QueueLink(link)
	ctx := context.Background()

	seen, err := radio.Scan(ctx, time.Millisecond)
	s.Require().NoError(err)
	s.Equal([]device.Peripheral{target}, seen)

	_, err = radio.Connect(ctx, target)
	s.ErrorIs(err, device.ErrDialFailed)

	got, err := radio.Connect(ctx, target)
	s.Require().NoError(err)
	s.Equal(target, got.Peripheral(), "link without peripheral MUST adopt the dialed one")

	_, err = radio.Connect(ctx, target)
	s.ErrorIs(err, ErrNoLinkQueued)
	s.Len(radio.Dialed(), 3)
}

func TestLinkBuilderTestSuite(t *testing.T) {
	suite.Run(t, new(LinkBuilderTestSuite))
}

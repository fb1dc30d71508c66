package ping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuePingRespectsInterval(t *testing.T) {
	s := NewSystem(10*time.Millisecond, time.Second)
	now := time.Now()

	_, ok := s.DuePing(now)
	require.True(t, ok)

	_, ok = s.DuePing(now.Add(1 * time.Millisecond))
	assert.False(t, ok)

	_, ok = s.DuePing(now.Add(11 * time.Millisecond))
	assert.True(t, ok)
}

func TestHandleReqEchoesNum(t *testing.T) {
	s := NewSystem(time.Second, time.Second)
	res := s.HandleReq(Message{Kind: Req, Num: 42})
	assert.Equal(t, Message{Kind: Res, Num: 42}, res)
}

func TestRTTSampleAndEMA(t *testing.T) {
	s := NewSystem(time.Hour, time.Minute)
	now := time.Now()

	msg, ok := s.DuePing(now)
	require.True(t, ok)

	s.HandleRes(msg, now.Add(100*time.Millisecond))
	rtt, ok := s.RTT()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, rtt)

	msg2, ok := s.DuePing(now.Add(time.Hour))
	require.True(t, ok)
	s.HandleRes(msg2, now.Add(time.Hour+108*time.Millisecond))
	rtt2, _ := s.RTT()
	// (7*100 + 108) / 8 = 101ms
	assert.Equal(t, (7*100*time.Millisecond+108*time.Millisecond)/8, rtt2)
}

func TestStaleRTTSampleDiscarded(t *testing.T) {
	s := NewSystem(time.Hour, 10*time.Millisecond)
	now := time.Now()

	msg, ok := s.DuePing(now)
	require.True(t, ok)

	s.HandleRes(msg, now.Add(time.Second)) // far older than maxAge
	_, hasRTT := s.RTT()
	assert.False(t, hasRTT)
}

func TestUnknownResIgnored(t *testing.T) {
	s := NewSystem(time.Hour, time.Minute)
	s.HandleRes(Message{Kind: Res, Num: 999}, time.Now())
	_, hasRTT := s.RTT()
	assert.False(t, hasRTT)
}

package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUIDHex(t *testing.T) {
	uid, err := ParseUID("12 34 ab:cd")
	require.NoError(t, err)
	assert.Equal(t, "1234ABCD", uid.String())
	assert.True(t, uid.Equal(UID{0x12, 0x34, 0xAB, 0xCD}))
	assert.False(t, uid.Equal(UID{0x12, 0x34, 0xAB}))

	_, err = ParseUID("")
	assert.Error(t, err)
	_, err = ParseUID("XYZ0")
	assert.Error(t, err)
}

func TestSelectReader(t *testing.T) {
	names := []string{
		"Identiv uTrust 3700 F Contact Reader 00 00",
		"Identiv uTrust 3700 F CL Reader [Contactless] 01 00",
		"Generic Smart Card Reader 02 00",
	}

	got, err := SelectReader(names, "")
	require.NoError(t, err)
	assert.Equal(t, "Identiv uTrust 3700 F CL Reader [Contactless] 01 00", got)

	got, err = SelectReader(names, "Generic Smart Card Reader 02 00")
	require.NoError(t, err)
	assert.Equal(t, "Generic Smart Card Reader 02 00", got)

	_, err = SelectReader(names, "missing")
	assert.ErrorIs(t, err, ErrNoReader)

	_, err = SelectReader(nil, "")
	assert.ErrorIs(t, err, ErrNoReader)
}

func TestScoreReader(t *testing.T) {
	assert.Equal(t, 0, ScoreReader("Generic Smart Card Reader"))
	assert.Equal(t, 5, ScoreReader("ACS ACR122U PICC Interface"))
	assert.Equal(t, 2, ScoreReader("Identiv uTrust 2700 R"))
	assert.Equal(t, 7, ScoreReader("Identiv uTrust 3700 F Contactless"))
}

func TestParseFrame(t *testing.T) {
	// data = 09 00 12 34 56 78, checksum = xor of data
	frame := []byte{0x02, 0x09, 0x00, 0x12, 0x34, 0x56, 0x78, 0x00, 0x03}
	var xor byte
	for _, b := range frame[1:7] {
		xor ^= b
	}
	frame[7] = xor

	p := parseFrame(frame)
	require.NotNil(t, p)
	assert.Equal(t, StatusSuccess, p.status)
	assert.Equal(t, "12345678", p.uid.String())

	frame[7] ^= 0xFF
	p = parseFrame(frame)
	require.NotNil(t, p)
	assert.Equal(t, statusChecksum, p.status)

	assert.Nil(t, parseFrame([]byte{0x01, 0x09, 0, 0, 0, 0, 0, 0, 0x03}))
	assert.Nil(t, parseFrame([]byte{0x02, 0x09}))
}

func TestFrameSessionOnlyAnswersGetUID(t *testing.T) {
	p := &framePresence{uid: UID{0xAA, 0xBB}, status: StatusSuccess}
	s, err := p.Connect()
	require.NoError(t, err)

	payload, status, err := s.Transmit(GetUIDCommand)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, []byte{0xAA, 0xBB}, payload)

	_, status, err = s.Transmit([]byte{0x00, 0xA4, 0x04, 0x00})
	require.NoError(t, err)
	assert.NotEqual(t, StatusSuccess, status)

	require.NoError(t, s.Release())
	_, _, err = s.Transmit(GetUIDCommand)
	assert.Error(t, err)
}

func TestDecodeWiegand(t *testing.T) {
	// 4 id bytes 01 AB CD EF, checksum 01^AB^CD^EF
	sum := byte(0x01 ^ 0xAB ^ 0xCD ^ 0xEF)
	p := decodeWiegand("01ABCDEF" + UID{sum}.String())
	assert.Equal(t, StatusSuccess, p.status)
	assert.Equal(t, "ABCDEF", p.uid.String())

	p = decodeWiegand("01ABCDEF00")
	assert.Equal(t, statusChecksum, p.status)

	p = decodeWiegand("zz")
	assert.Equal(t, statusMalformed, p.status)
}

func TestWiegandFeed(t *testing.T) {
	w := &Wiegand{}
	sum := byte(0x00 ^ 0x12 ^ 0x34 ^ 0x56)
	input := append([]byte{'x', stx}, []byte("00123456"+UID{sum}.String())...)
	input = append(input, etx)

	var got *framePresence
	for _, c := range input {
		if p := w.feed(c); p != nil {
			got = p
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, "123456", got.uid.String())
	assert.Equal(t, StatusSuccess, got.status)
}

func TestKeyboardParseLine(t *testing.T) {
	digits, isHex, format := parseKeyboardFormat("")
	assert.Equal(t, 10, digits)
	assert.True(t, isHex)
	assert.Equal(t, "10h", format)

	k := &Keyboard{numDigits: 8, isHex: true}
	p := k.parseLine("0A1B2C3D")
	assert.Equal(t, StatusSuccess, p.status)
	assert.Equal(t, "0A1B2C3D", p.uid.String())

	p = k.parseLine("123")
	assert.Equal(t, statusMalformed, p.status)

	k = &Keyboard{isHex: false}
	p = k.parseLine("305419896") // 0x12345678
	assert.Equal(t, "12345678", p.uid.String())
}

func TestSimProbe(t *testing.T) {
	sim := NewSim()
	ctx := context.Background()

	_, err := sim.Probe(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	go func() {
		time.Sleep(5 * time.Millisecond)
		sim.Present(UID{0x12, 0x34})
	}()
	p, err := sim.Probe(ctx, 5*time.Second)
	require.NoError(t, err)

	s, err := p.Connect()
	require.NoError(t, err)
	payload, status, err := s.Transmit(GetUIDCommand)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, []byte{0x12, 0x34}, payload)
	require.NoError(t, s.Release())

	sim.Remove()
	_, err = p.Connect()
	assert.ErrorIs(t, err, ErrReadFailure)
}

func TestSimFlaky(t *testing.T) {
	sim := NewSim()
	sim.Present(UID{0x01})
	sim.Flaky(2)

	p, err := sim.Probe(context.Background(), time.Second)
	require.NoError(t, err)

	var statuses []uint16
	for i := 0; i < 3; i++ {
		s, err := p.Connect()
		require.NoError(t, err)
		_, status, err := s.Transmit(GetUIDCommand)
		require.NoError(t, err)
		statuses = append(statuses, status)
		require.NoError(t, s.Release())
	}
	assert.Equal(t, []uint16{0x6300, 0x6300, StatusSuccess}, statuses)
}

func TestSimProbeCancelled(t *testing.T) {
	sim := NewSim()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sim.Probe(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(Config{Type: "carrier-pigeon"})
	assert.Error(t, err)

	tr, err := New(Config{Type: "sim"})
	require.NoError(t, err)
	assert.IsType(t, &Sim{}, tr)
}

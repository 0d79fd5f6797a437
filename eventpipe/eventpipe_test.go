package eventpipe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapflow/reader"
)

type recordingAntenna struct {
	calls []string
}

func (a *recordingAntenna) Present(uid reader.UID) { a.calls = append(a.calls, "present "+uid.String()) }
func (a *recordingAntenna) Remove()                { a.calls = append(a.calls, "remove") }
func (a *recordingAntenna) Flaky(n int)            { a.calls = append(a.calls, "flaky "+strings.Repeat("x", n)) }

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		want command
	}{
		{"present 1234abcd", command{verb: verbPresent, uid: reader.UID{0x12, 0x34, 0xAB, 0xCD}}},
		{"TAG 12:34:AB:CD", command{verb: verbPresent, uid: reader.UID{0x12, 0x34, 0xAB, 0xCD}}},
		{"present 04 A2 1B", command{verb: verbPresent, uid: reader.UID{0x04, 0xA2, 0x1B}}},
		{"  remove  ", command{verb: verbRemove}},
		{"flaky 3", command{verb: verbFlaky, n: 3}},
		{"", command{}},
		{"# comment", command{}},
	}
	for _, tc := range cases {
		got, err := parseLine(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{
		"present",
		"present xyz",
		"present 123",
		"flaky",
		"flaky -1",
		"flaky many",
		"rfid 42",
	} {
		_, err := parseLine(line)
		assert.Error(t, err, line)
	}
}

func TestServeAppliesCommands(t *testing.T) {
	a := &recordingAntenna{}
	ep := &EventPipe{antenna: a}

	ep.serve(strings.NewReader("present aabbcc\nbogus\nflaky 2\n\n# done\nremove\n"))

	assert.Equal(t, []string{"present AABBCC", "flaky xx", "remove"}, a.calls)
}

func TestPipeDrivesSimulatedReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events")
	sim := reader.NewSim()

	ep, err := New(Config{Path: path}, sim)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ep.Start(ctx)
		close(done)
	}()

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("present 1234ABCD\n")
	require.NoError(t, err)
	w.Close()

	assert.Eventually(t, func() bool {
		return sim.Current().Equal(reader.UID{0x12, 0x34, 0xAB, 0xCD})
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event pipe did not stop")
	}
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewWithoutPath(t *testing.T) {
	ep, err := New(Config{}, reader.NewSim())
	require.NoError(t, err)
	assert.Nil(t, ep)
}

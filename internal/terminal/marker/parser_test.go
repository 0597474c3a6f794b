package marker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "abc123def456ghi789jkl012mno345pq"

func feedAll(p *Parser, chunks ...[]byte) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, p.Feed(c)...)
	}
	return events
}

func TestFeedSplitCommandStart(t *testing.T) {
	p := New(testSecret)

	chunk1 := append(append([]byte{}, LeadIn...), []byte("CMD_START;"+testSecret+";ls -")...)
	chunk2 := append([]byte("la\a"), []byte("more output")...)

	events := feedAll(p, chunk1, chunk2)

	require.Len(t, events, 1)
	assert.Equal(t, Start("ls -la"), events[0])
	assert.Equal(t, CommandStart, events[0].Kind)
	assert.Equal(t, 0, p.Pending())
}

func TestFeedCommandEnd(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"zero", "0", 0},
		{"failure", "1", 1},
		{"signal", "130", 130},
		{"negative", "-2", -2},
		{"not a number", "oops", ExitCodeUnknown},
		{"empty", "", ExitCodeUnknown},
		{"overflows int32", "99999999999", ExitCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(testSecret)
			events := p.Feed(Encode(NameCommandEnd, testSecret, tt.payload))

			require.Len(t, events, 1)
			assert.Equal(t, CommandEnd, events[0].Kind)
			assert.Equal(t, tt.want, events[0].ExitCode)
		})
	}
}

func TestFeedRejectsForeignSecret(t *testing.T) {
	var reasons []DropReason
	p := New(testSecret, WithDropHook(func(r DropReason) { reasons = append(reasons, r) }))

	for _, secret := range []string{
		"",
		"wrong",
		strings.ToUpper(testSecret),
		testSecret + "x",
		testSecret[:len(testSecret)-1],
	} {
		events := p.Feed(Encode(NameCommandStart, secret, "rm -rf /"))
		assert.Empty(t, events, "secret %q must not be accepted", secret)
	}

	assert.Len(t, reasons, 5)
	for _, r := range reasons {
		assert.Equal(t, DropSecretMismatch, r)
	}
}

func TestEmptySecretAcceptsNothing(t *testing.T) {
	p := New("")
	assert.Empty(t, p.Feed(Encode(NameCommandStart, "", "ls")))
}

func TestFeedSTTerminator(t *testing.T) {
	p := New(testSecret)
	stream := []byte("\x1b]777;vibe;CMD_END;" + testSecret + ";3\x1b\\")

	events := p.Feed(stream)

	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].ExitCode)
}

func TestFeedOtherKinds(t *testing.T) {
	p := New(testSecret)

	events := feedAll(p,
		Encode(NameWorkingDir, testSecret, "/home/dev/src"),
		Encode("PROMPT", testSecret, ""),
	)

	require.Len(t, events, 2)
	assert.Equal(t, WorkingDir, events[0].Kind)
	assert.Equal(t, "/home/dev/src", events[0].Payload)
	assert.Equal(t, Other, events[1].Kind)
	assert.Equal(t, "PROMPT", events[1].Name)
}

func TestPayloadMayContainSeparator(t *testing.T) {
	p := New(testSecret)

	events := p.Feed(Encode(NameCommandStart, testSecret, "echo a; echo b"))

	require.Len(t, events, 1)
	assert.Equal(t, "echo a; echo b", events[0].Payload)
}

func TestMalformedMarkersAreDropped(t *testing.T) {
	var reasons []DropReason
	p := New(testSecret, WithDropHook(func(r DropReason) { reasons = append(reasons, r) }))

	inputs := [][]byte{
		[]byte("\x1b]777;vibe;\a"),
		[]byte("\x1b]777;vibe;CMD_START\a"),
		[]byte("\x1b]777;vibe;CMD_START;" + testSecret + "\a"),
		[]byte("\x1b]777;vibe;;" + testSecret + ";x\a"),
	}
	for _, in := range inputs {
		assert.Empty(t, p.Feed(in))
	}

	assert.Equal(t, []DropReason{DropMalformed, DropMalformed, DropMalformed, DropMalformed}, reasons)
}

func TestOrdinaryOSCIsIgnored(t *testing.T) {
	p := New(testSecret)

	stream := []byte("\x1b]0;window title\a\x1b]777;notify;hi\a\x1b[31mred\x1b[0m")
	stream = append(stream, Encode(NameCommandEnd, testSecret, "0")...)

	events := p.Feed(stream)

	require.Len(t, events, 1)
	assert.Equal(t, CommandEnd, events[0].Kind)
}

func TestEventsKeepStreamOrder(t *testing.T) {
	p := New(testSecret)

	var stream []byte
	stream = append(stream, "prompt$ "...)
	stream = append(stream, Encode(NameCommandStart, testSecret, "make")...)
	stream = append(stream, "building...\r\n"...)
	stream = append(stream, Encode(NameCommandEnd, testSecret, "2")...)
	stream = append(stream, Encode(NameWorkingDir, testSecret, "/src")...)
	stream = append(stream, Encode(NameCommandStart, testSecret, "make test")...)

	events := p.Feed(stream)

	require.Len(t, events, 4)
	assert.Equal(t, []Kind{CommandStart, CommandEnd, WorkingDir, CommandStart}, []Kind{
		events[0].Kind, events[1].Kind, events[2].Kind, events[3].Kind,
	})
	assert.Equal(t, "make", events[0].Payload)
	assert.Equal(t, 2, events[1].ExitCode)
	assert.Equal(t, "make test", events[3].Payload)
}

func TestMarkerSplitAtEveryOffset(t *testing.T) {
	whole := Encode(NameCommandStart, testSecret, "git status --short")
	want := New(testSecret).Feed(whole)
	require.Len(t, want, 1)

	for n := 1; n <= len(whole); n++ {
		p := New(testSecret)
		var got []Event
		for i := 0; i < len(whole); i += n {
			end := i + n
			if end > len(whole) {
				end = len(whole)
			}
			got = append(got, p.Feed(whole[i:end])...)
		}
		assert.Equal(t, want, got, "chunk size %d", n)
	}
}

func TestChunkingInvariance(t *testing.T) {
	var stream []byte
	stream = append(stream, "\x1b[1mhello\x1b[0m\r\n"...)
	stream = append(stream, Encode(NameCommandStart, testSecret, "ls -la")...)
	stream = append(stream, "\x1b]777;vibe;CMD_END;forged;0\a"...)
	stream = append(stream, "total 0\r\n\x1b"...)
	stream = append(stream, Encode(NameCommandEnd, testSecret, "0")...)
	stream = append(stream, "\x1b]777;vibe;CMD_START;"+testSecret+";cut"...)
	stream = append(stream, Encode(NameCommandStart, testSecret, "pwd")...)

	want := New(testSecret).Feed(stream)
	require.Len(t, want, 3)

	for _, size := range []int{1, 2, 3, 5, 7, 11, 13, 64} {
		p := New(testSecret)
		var got []Event
		for i := 0; i < len(stream); i += size {
			end := i + size
			if end > len(stream) {
				end = len(stream)
			}
			got = append(got, p.Feed(stream[i:end])...)
		}
		assert.Equal(t, want, got, "chunk size %d", size)
	}
}

func TestUnterminatedMarkerResyncsAfterBound(t *testing.T) {
	var reasons []DropReason
	p := New(testSecret,
		WithMaxMarkerBytes(64),
		WithDropHook(func(r DropReason) { reasons = append(reasons, r) }),
	)

	// Lead-in with a body that never terminates.
	p.Feed(LeadIn)
	p.Feed(bytes.Repeat([]byte("A"), 200))
	assert.LessOrEqual(t, p.Pending(), 64+len(LeadIn))

	events := p.Feed(Encode(NameCommandEnd, testSecret, "0"))

	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].ExitCode)
	assert.Contains(t, reasons, DropOverflow)
}

func TestTruncatedMarkerDoesNotSwallowNext(t *testing.T) {
	var reasons []DropReason
	p := New(testSecret, WithDropHook(func(r DropReason) { reasons = append(reasons, r) }))

	stream := []byte("\x1b]777;vibe;CMD_START;" + testSecret + ";vim")
	stream = append(stream, Encode(NameCommandEnd, testSecret, "0")...)

	events := p.Feed(stream)

	require.Len(t, events, 1)
	assert.Equal(t, CommandEnd, events[0].Kind)
	assert.Equal(t, []DropReason{DropInterrupted}, reasons)
}

func TestPendingIsBounded(t *testing.T) {
	p := New(testSecret, WithMaxMarkerBytes(32))

	for i := 0; i < 100; i++ {
		p.Feed(LeadIn)
		p.Feed(bytes.Repeat([]byte("x"), 50))
		assert.LessOrEqual(t, p.Pending(), 32+len(LeadIn))
	}
}

func TestReset(t *testing.T) {
	p := New(testSecret)
	p.Feed([]byte("\x1b]777;vibe;CMD_START;" + testSecret + ";partial"))
	require.NotZero(t, p.Pending())

	p.Reset()

	assert.Zero(t, p.Pending())
	assert.Empty(t, p.Feed([]byte("\a")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "command_start", CommandStart.String())
	assert.Equal(t, "command_end", CommandEnd.String())
	assert.Equal(t, "working_dir", WorkingDir.String())
	assert.Equal(t, "other", Other.String())
}

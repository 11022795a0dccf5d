package adapter

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unknown, "unknown"},
		{Resetting, "resetting"},
		{Unsupported, "unsupported"},
		{Unauthorized, "unauthorized"},
		{PoweredOff, "poweredOff"},
		{PoweredOn, "poweredOn"},
		{State(42), "State(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("POWEREDON")
	require.NoError(t, err)
	assert.Equal(t, PoweredOn, s)

	_, err = ParseState("exploded")
	assert.Error(t, err)

	var decoded State
	require.NoError(t, decoded.UnmarshalText([]byte("unauthorized")))
	assert.Equal(t, Unauthorized, decoded)

	text, err := PoweredOff.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "poweredOff", string(text))
}

func TestState_Availability(t *testing.T) {
	assert.True(t, PoweredOn.Available())
	for _, s := range []State{Unknown, Resetting, Unsupported, Unauthorized, PoweredOff} {
		assert.False(t, s.Available(), s.String())
	}

	for _, s := range []State{Unsupported, Unauthorized, PoweredOff} {
		assert.True(t, s.Unavailable(), s.String())
	}
	for _, s := range []State{Unknown, Resetting, PoweredOn} {
		assert.False(t, s.Unavailable(), s.String())
	}
}

func TestTracker_InitialState(t *testing.T) {
	tr := NewTracker(nil)
	assert.Equal(t, Unknown, tr.State())
}

func TestTracker_SetNotifiesOnChangeOnly(t *testing.T) {
	tr := NewTracker(quietLogger())
	sub := tr.Subscribe()
	at := time.Unix(100, 0)

	_, changed := tr.Set(PoweredOn, at)
	assert.True(t, changed)
	_, changed = tr.Set(PoweredOn, at.Add(time.Second))
	assert.False(t, changed)
	_, changed = tr.Set(PoweredOff, at.Add(2*time.Second))
	assert.True(t, changed)

	assert.Equal(t, Transition{From: Unknown, To: PoweredOn, At: at, Seq: 1}, <-sub)
	assert.Equal(t, Transition{From: PoweredOn, To: PoweredOff, At: at.Add(2 * time.Second), Seq: 2}, <-sub)
	select {
	case extra := <-sub:
		t.Fatalf("unexpected transition %+v", extra)
	default:
	}
	assert.Equal(t, PoweredOff, tr.State())
}

func TestTracker_AnyTransitionAllowed(t *testing.T) {
	tr := NewTracker(quietLogger())
	states := []State{PoweredOn, Unsupported, Resetting, Unauthorized, Unknown, PoweredOff, PoweredOn}

	for _, s := range states {
		_, changed := tr.Set(s, time.Time{})
		assert.True(t, changed)
		assert.Equal(t, s, tr.State())
	}
}

func TestTracker_SeqCountsChanges(t *testing.T) {
	tr := NewTracker(quietLogger())

	first, _ := tr.Set(PoweredOn, time.Time{})
	same, changed := tr.Set(PoweredOn, time.Time{})
	second, _ := tr.Set(Resetting, time.Time{})

	assert.False(t, changed)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Zero(t, same.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestTracker_FanOut(t *testing.T) {
	tr := NewTracker(quietLogger())
	a := tr.Subscribe()
	b := tr.Subscribe()

	tr.Set(Resetting, time.Time{})

	assert.Equal(t, Resetting, (<-a).To)
	assert.Equal(t, Resetting, (<-b).To)
}

func TestTracker_SlowSubscriberKeepsLatest(t *testing.T) {
	tr := NewTracker(quietLogger())
	sub := tr.Subscribe()

	next := []State{PoweredOn, PoweredOff}
	for i := 0; i < DefaultSubscriberBuffer*2+1; i++ {
		tr.Set(next[i%2], time.Time{})
	}
	tr.Close()

	var last Transition
	n := 0
	for got := range sub {
		last = got
		n++
	}
	assert.Equal(t, DefaultSubscriberBuffer, n)
	assert.Equal(t, PoweredOn, last.To)
}

func TestTracker_Close(t *testing.T) {
	tr := NewTracker(quietLogger())
	sub := tr.Subscribe()
	tr.Close()
	tr.Close()

	_, ok := <-sub
	assert.False(t, ok)

	late := tr.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	assert.NotPanics(t, func() { tr.Set(PoweredOn, time.Time{}) })
}

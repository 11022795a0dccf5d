package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/srg/blewatch/internal/adapter"
	"github.com/srg/blewatch/internal/advert"
	"github.com/srg/blewatch/internal/testutils"
	"github.com/srg/blewatch/pkg/config"
	"github.com/srg/blewatch/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var displayNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleViews() []registry.View {
	return []registry.View{
		{
			Entry: registry.Entry{
				ID:        "aa:aa",
				FirstSeen: displayNow.Add(-12 * time.Second),
				LastSeen:  displayNow,
				RSSI:      -48,
				Payload:   advert.New(advert.Fields{LocalName: "Tracker", Services: []string{"FD6F"}, TxPower: 127}),
			},
			Current: true,
		},
		{
			Entry: registry.Entry{
				ID:        "bb:bb",
				FirstSeen: displayNow.Add(-300 * time.Second),
				LastSeen:  displayNow.Add(-90 * time.Second),
				RSSI:      -80,
				Payload:   advert.New(advert.Fields{TxPower: 127}),
			},
		},
	}
}

func TestRenderTable(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, config.DefaultConfig(), false, false)

	require.NoError(t, r.Render(adapter.PoweredOn, sampleViews(), displayNow))

	testutils.NewTextAsserter(t).Assert(out.String(), `
Devices seen in the last 900 seconds (* advertises fd6f)
Adapter: poweredOn

Current
  ID     NAME     FIRST SEEN       LAST SEEN       RSSI
* aa:aa  Tracker  12 seconds ago   now             -48 dBm

Other
  ID     NAME     FIRST SEEN       LAST SEEN       RSSI
  bb:bb           300 seconds ago  90 seconds ago  -80 dBm
`)
}

func TestRenderTable_EmptyAndNoTarget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TargetService = ""
	cfg.MaxAgeThreshold = time.Minute

	var out bytes.Buffer
	r := newRenderer(&out, cfg, false, false)
	require.NoError(t, r.Render(adapter.PoweredOff, nil, displayNow))

	testutils.NewTextAsserter(t).Assert(out.String(), `
Devices seen in the last 60 seconds
Adapter: poweredOff

Current
  (none)
`)
}

func TestRenderTable_HideExpired(t *testing.T) {
	views := sampleViews()
	views[1].Expired = true

	var out bytes.Buffer
	r := newRenderer(&out, config.DefaultConfig(), true, false)
	require.NoError(t, r.Render(adapter.PoweredOn, views, displayNow))

	assert.NotContains(t, out.String(), "bb:bb")
	assert.NotContains(t, out.String(), "Other")
}

func TestRenderTable_Colors(t *testing.T) {
	views := sampleViews()
	views = append(views, registry.View{Entry: registry.Entry{
		ID:        "cc:cc",
		FirstSeen: displayNow.Add(-10 * time.Second),
		LastSeen:  displayNow.Add(-8 * time.Second),
		RSSI:      -65,
	}})

	var out bytes.Buffer
	r := newRenderer(&out, config.DefaultConfig(), false, true)
	require.NoError(t, r.Render(adapter.PoweredOn, views, displayNow))

	lines := strings.Split(out.String(), "\n")
	find := func(id string) string {
		for _, l := range lines {
			if strings.Contains(l, id) {
				return l
			}
		}
		t.Fatalf("no line for %s", id)
		return ""
	}

	assert.Contains(t, find("Adapter"), "\x1b[32mpoweredOn")
	// fresh and strong
	assert.Contains(t, find("aa:aa"), "\x1b[32mnow")
	assert.Contains(t, find("aa:aa"), "\x1b[32m-48 dBm")
	// stale and weak: no colour
	assert.NotContains(t, find("bb:bb"), "\x1b[")
	// newcomer with a fair signal
	assert.Contains(t, find("cc:cc"), "\x1b[33m8 seconds ago")
	assert.Contains(t, find("cc:cc"), "\x1b[33m-65 dBm")

	// padding happens before colouring, so stripped output stays aligned
	plain := testutils.StripANSI(out.String())
	assert.Contains(t, plain, "* aa:aa  Tracker  12 seconds ago   now             -48 dBm")
}

func TestStateText(t *testing.T) {
	r := &renderer{colors: true}

	tests := []struct {
		state adapter.State
		code  string
	}{
		{adapter.Resetting, "\x1b[33m"},
		{adapter.PoweredOn, "\x1b[32m"},
		{adapter.PoweredOff, "\x1b[31m"},
		{adapter.Unauthorized, "\x1b[31m"},
		{adapter.Unsupported, "\x1b[31m"},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.True(t, strings.HasPrefix(r.stateText(tt.state), tt.code))
		})
	}

	assert.Equal(t, "unknown", r.stateText(adapter.Unknown))
}

func TestRenderJSON(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = config.FormatJSON

	var out bytes.Buffer
	r := newRenderer(&out, cfg, false, false)
	require.NoError(t, r.Render(adapter.PoweredOn, sampleViews(), displayNow))

	testutils.NewJSONAsserter(t, testutils.WithIgnoredFields("first_seen", "last_seen")).Assert(out.String(), `{
  "adapter_state": "poweredOn",
  "devices": {
    "aa:aa": {
      "name": "Tracker",
      "rssi": -48,
      "services": ["fd6f"],
      "connectable": false,
      "current": true,
      "expired": false,
      "target": true
    },
    "bb:bb": {
      "rssi": -80,
      "services": [],
      "connectable": false,
      "current": false,
      "expired": false,
      "target": false
    }
  }
}`)

	// device keys follow snapshot order
	assert.Less(t, strings.Index(out.String(), `"aa:aa"`), strings.Index(out.String(), `"bb:bb"`))
}

func TestSinceText(t *testing.T) {
	assert.Equal(t, "now", sinceText(displayNow, displayNow))
	assert.Equal(t, "now", sinceText(displayNow.Add(-999*time.Millisecond), displayNow))
	assert.Equal(t, "now", sinceText(displayNow.Add(time.Second), displayNow))
	assert.Equal(t, "1 seconds ago", sinceText(displayNow.Add(-1500*time.Millisecond), displayNow))
	assert.Equal(t, "75 seconds ago", sinceText(displayNow.Add(-75*time.Second), displayNow))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 20))
	assert.Equal(t, "a very long devic...", truncate("a very long device name", 20))
}

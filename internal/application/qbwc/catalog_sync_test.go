package qbwc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
)

func TestCatalogSync_Cycle(t *testing.T) {
	cs := newCatalogSync(qbxml.QueryModeInventory, nil)
	assert.False(t, cs.inProgress())

	first, err := cs.nextRequest(qbxml.DefaultVersion, 50)
	require.NoError(t, err)
	assert.Contains(t, first, `iterator="Start"`)
	assert.True(t, cs.inProgress())

	names, done := cs.accept(qbxml.ItemPage{Names: []string{"A", " B "}, IteratorID: "{it}", Remaining: 1})
	assert.False(t, done)
	assert.Nil(t, names)

	next, err := cs.nextRequest(qbxml.DefaultVersion, 50)
	require.NoError(t, err)
	assert.Contains(t, next, `iteratorID="{it}"`)

	names, done = cs.accept(qbxml.ItemPage{Names: []string{"B", "C", ""}})
	assert.True(t, done)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, names)
	assert.False(t, cs.inProgress())

	restart, err := cs.nextRequest(qbxml.DefaultVersion, 50)
	require.NoError(t, err)
	assert.Contains(t, restart, `iterator="Start"`)
}

func TestCatalogSync_Abort(t *testing.T) {
	tests := []struct {
		name     string
		mode     qbxml.QueryMode
		fallback []string
		hresult  string
		want     bool
		wantMode qbxml.QueryMode
	}{
		{name: "listed code switches", mode: qbxml.QueryModeInventory, fallback: []string{"0x80040400"}, hresult: "0x80040400", want: true, wantMode: qbxml.QueryModeCompat},
		{name: "match ignores case and space", mode: qbxml.QueryModeInventory, fallback: []string{" 0X8004041D "}, hresult: "0x8004041d", want: true, wantMode: qbxml.QueryModeCompat},
		{name: "unlisted code keeps mode", mode: qbxml.QueryModeInventory, fallback: []string{"0x80040400"}, hresult: "0x80040408", wantMode: qbxml.QueryModeInventory},
		{name: "already compat", mode: qbxml.QueryModeCompat, fallback: []string{"0x80040400"}, hresult: "0x80040400", wantMode: qbxml.QueryModeCompat},
		{name: "no fallback codes", mode: qbxml.QueryModeInventory, hresult: "0x80040400", wantMode: qbxml.QueryModeInventory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newCatalogSync(tt.mode, tt.fallback)
			_, err := cs.nextRequest(qbxml.DefaultVersion, 10)
			require.NoError(t, err)

			assert.Equal(t, tt.want, cs.abort(tt.hresult))
			assert.Equal(t, tt.wantMode, cs.queryMode())
			assert.False(t, cs.inProgress())
		})
	}
}

func TestCatalogSync_ResetDropsPartialNames(t *testing.T) {
	cs := newCatalogSync(qbxml.QueryModeInventory, nil)
	_, err := cs.nextRequest(qbxml.DefaultVersion, 10)
	require.NoError(t, err)
	cs.accept(qbxml.ItemPage{Names: []string{"Partial"}, IteratorID: "{it}", Remaining: 3})

	cs.reset()
	_, err = cs.nextRequest(qbxml.DefaultVersion, 10)
	require.NoError(t, err)

	names, done := cs.accept(qbxml.ItemPage{Names: []string{"Fresh"}})
	assert.True(t, done)
	assert.Equal(t, []string{"Fresh"}, names)
}

package colors

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*ColorCache, *time.Time) {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }
	return c, &now
}

func TestColorForIsStable(t *testing.T) {
	c, _ := newCache(t)
	first := c.ColorFor("P1")
	assert.Equal(t, "1", first)
	assert.Equal(t, "2", c.ColorFor("P2"))
	assert.Equal(t, first, c.ColorFor("P1"))
	assert.Equal(t, NoProject, c.ColorFor(""))
}

func TestColorForRecyclesLeastRecentlyUsed(t *testing.T) {
	c, now := newCache(t)
	for i := 1; i <= 11; i++ {
		c.ColorFor(fmt.Sprintf("P%d", i))
		*now = now.Add(time.Minute)
	}
	// P1 is used again, so P2 is now the idlest.
	c.ColorFor("P1")
	*now = now.Add(time.Minute)

	got := c.ColorFor("P12")
	assert.Equal(t, "2", got)
	_, stillThere := c.Projects["P2"]
	assert.False(t, stillThere)
	assert.Len(t, c.Projects, 11)
}

func TestSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	c, err := Open(path)
	require.NoError(t, err)
	c.ColorFor("P1")
	c.ColorFor("P2")
	require.NoError(t, c.Save())

	again, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, "2", again.ColorFor("P2"))
	require.Equal(t, "3", again.ColorFor("P3"))
}

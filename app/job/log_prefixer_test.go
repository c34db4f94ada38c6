package job

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPrefixer_Write(t *testing.T) {
	out := bytes.NewBuffer(nil)
	prefixer := NewLogPrefixer(out, KindImport)

	n, err := prefixer.Write([]byte("first line of the output\n"))
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = prefixer.Write([]byte("second line of the output\n"))
	require.NoError(t, err)
	assert.Equal(t, 26, n)

	assert.Equal(t, "{import} first line of the output\n{import} second line of the output\n", out.String())
}

func TestLogPrefixer_PartialLines(t *testing.T) {
	out := bytes.NewBuffer(nil)
	prefixer := NewLogPrefixer(out, KindScrape)

	_, err := prefixer.Write([]byte("tracker udp://a"))
	require.NoError(t, err)
	assert.Empty(t, out.String(), "partial line held")

	_, err = prefixer.Write([]byte(" ok\nnext"))
	require.NoError(t, err)
	assert.Equal(t, "{scrape} tracker udp://a ok\n", out.String())

	require.NoError(t, prefixer.Flush())
	assert.Equal(t, "{scrape} tracker udp://a ok\n{scrape} next\n", out.String())
	require.NoError(t, prefixer.Flush(), "nothing to flush")
}

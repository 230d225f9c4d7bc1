package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingCloser struct {
	order *[]int
	id    int
	err   error
}

func (c recordingCloser) Close() error {
	*c.order = append(*c.order, c.id)
	return c.err
}

func TestCloseAllReverseOrder(t *testing.T) {
	var order []int
	RegisterCloser(recordingCloser{order: &order, id: 1})
	RegisterCloser(recordingCloser{order: &order, id: 2, err: errors.New("boom")})
	RegisterCloser(nil)
	RegisterCloser(recordingCloser{order: &order, id: 3})

	CloseAll()
	assert.Equal(t, []int{3, 2, 1}, order)

	// second call is a no-op
	CloseAll()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestFileExists(t *testing.T) {
	assert.True(t, FileExists(t.TempDir()))
	assert.False(t, FileExists("/definitely/not/here/nostr-onion"))
}

package discovery

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestNewManager(t *testing.T) {
	config := Config{ServiceName: "Test Server", Port: 1704}
	mgr := NewManager(config, log.New(io.Discard))
	assert.NotNil(t, mgr)
	assert.NotNil(t, mgr.Servers())
}

package jid

import (
	"bufio"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInteropJIDsValid(t *testing.T) {
	assert := assert.New(t)
	file, err := os.Open("testdata/jid_syntax_valid.txt")
	assert.NoError(err)
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		j, err := Parse(line)
		if err != nil {
			fmt.Println("GOOD: " + line)
		}
		assert.NoError(err)
		assert.Equal(line, j.String())
	}
	assert.NoError(scanner.Err())
}

func TestInteropJIDsInvalid(t *testing.T) {
	assert := assert.New(t)
	file, err := os.Open("testdata/jid_syntax_invalid.txt")
	assert.NoError(err)
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		_, err := Parse(line)
		if err == nil {
			fmt.Println("BAD: " + line)
		}
		assert.ErrorIs(err, ErrInvalidJID)
	}
	assert.NoError(scanner.Err())
}

func TestJIDParts(t *testing.T) {
	assert := assert.New(t)

	j, err := Parse("5511999999999_4:12@s.whatsapp.net")
	assert.NoError(err)
	assert.Equal("5511999999999", j.User)
	assert.Equal("4", j.Agent)
	assert.Equal(uint16(12), j.Device)
	assert.True(j.HasDevice)
	assert.True(j.IsPN())
	assert.False(j.IsLID())

	j, err = Parse("123456789012345@lid")
	assert.NoError(err)
	assert.Equal("123456789012345", j.User)
	assert.Equal("", j.Agent)
	assert.False(j.HasDevice)
	assert.True(j.IsLID())

	assert.Equal("", JID{}.String())
	assert.Equal("abc:5@lid", NewDeviceJID("abc", 5, ServerLID).String())
	assert.Equal("abc:0@s.whatsapp.net", NewDeviceJID("abc", 0, ServerPN).String())
	assert.Equal("", NewDeviceJID("", 1, ServerLID).String())
}

func TestNamespacePredicates(t *testing.T) {
	assert := assert.New(t)

	assert.True(IsPN("1234@s.whatsapp.net"))
	assert.True(IsPN("1234:3@s.whatsapp.net"))
	assert.False(IsPN("1234@lid"))
	assert.False(IsPN("1234@c.us"))
	assert.True(IsLID("1234:1@lid"))
	assert.False(IsLID("1234@s.whatsapp.net"))
	assert.False(IsLID(""))
}

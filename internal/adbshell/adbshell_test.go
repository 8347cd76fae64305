package adbshell

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotePOSIX(t *testing.T) {
	assert.Equal(t, "'DCIM/Camera'", QuotePOSIX("DCIM/Camera"))
	assert.Equal(t, `'it'\''s'`, QuotePOSIX("it's"))
}

func TestScanNULSplitsOnNulBytes(t *testing.T) {
	data := "one\x00two\x00three\x00"
	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Split(ScanNUL)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	assert.NoError(t, scanner.Err())
	assert.Equal(t, []string{"one", "two", "three"}, tokens)
}

func TestScanNULHandlesTrailingDataWithoutFinalNul(t *testing.T) {
	data := "one\x00two"
	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Split(ScanNUL)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	assert.Equal(t, []string{"one", "two"}, tokens)
}

func TestArgvAlwaysCarriesSerial(t *testing.T) {
	f := &Facade{Serial: "emulator-5554"}
	assert.Equal(t, []string{"-s", "emulator-5554", "pull", "-a", "x", "y"}, f.argv("pull", "-a", "x", "y"))
}

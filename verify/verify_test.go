package verify

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyGarbageInput(t *testing.T) {
	report, err := Verify([]byte("definitely not a pdf"), Options{})
	require.NoError(t, err)
	assert.False(t, report.CryptographicallyValid)
	assert.False(t, report.PAdESCompliant)
	assert.Equal(t, LevelUnknown, report.Level)
	require.NotEmpty(t, report.Reasons)
	assert.Contains(t, report.Reasons[0], "No CMS signature")
	assert.NotEmpty(t, report.Checks, "the checklist is reported even without a signature")
}

func TestDecodeContents(t *testing.T) {
	der := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}
	slot := strings.ToUpper(hex.EncodeToString(der)) + strings.Repeat("0", 32)
	assert.Equal(t, der, decodeContents([]byte(slot)))

	// A DER container ending in zero bytes must not lose them to the
	// slot padding.
	derTrailingZero := []byte{0x30, 0x02, 0x05, 0x00}
	slot = strings.ToUpper(hex.EncodeToString(derTrailingZero)) + strings.Repeat("0", 16)
	assert.Equal(t, derTrailingZero, decodeContents([]byte(slot)))

	assert.Empty(t, decodeContents([]byte(strings.Repeat("0", 64))))
	assert.Empty(t, decodeContents([]byte("zz")))
}

func TestScanLiteralString(t *testing.T) {
	body := []byte(`<< /Name (Dr. Test) /Reason (Integration \(test\)) /Location (Paris) >>`)
	assert.Equal(t, "Dr. Test", scanLiteralString(body, "/Name"))
	assert.Equal(t, "Integration (test)", scanLiteralString(body, "/Reason"))
	assert.Equal(t, "Paris", scanLiteralString(body, "/Location"))
	assert.Equal(t, "", scanLiteralString(body, "/ContactInfo"))
}

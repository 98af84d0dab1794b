package locate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDoc writes a minimal document with a field dictionary referencing a
// signature dictionary, then patches the real byte range values in.
func buildDoc(t *testing.T, fieldEntry string, hexWidth int) []byte {
	t.Helper()

	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	b.WriteString("1 0 obj\n<<\n /Type /Sig\n /Filter /Adobe.PPKLite\n")
	b.WriteString(" /ByteRange [0 0 0 0" + strings.Repeat(" ", 40) + "]\n")
	b.WriteString(" /Contents <")
	b.WriteString(strings.Repeat("0", hexWidth))
	b.WriteString(">\n>>\nendobj\n")
	b.WriteString("2 0 obj\n<< /FT /Sig " + fieldEntry + " /V 1 0 R >>\nendobj\n")
	b.WriteString("%%EOF\n")
	doc := b.Bytes()

	// Patch the real offsets in, fixed width.
	lt := bytes.Index(doc, []byte("/Contents <")) + len("/Contents <") - 1
	gt := lt + 1 + hexWidth
	require.Equal(t, byte('>'), doc[gt])

	br := fmt.Sprintf("[0 %d %d %d", lt, gt+1, len(doc)-(gt+1))
	slot := bytes.Index(doc, []byte("/ByteRange ["))
	end := bytes.IndexByte(doc[slot:], ']') + slot
	patch := "/ByteRange " + br + strings.Repeat(" ", end-slot-len("/ByteRange ")-len(br))
	copy(doc[slot:end], patch)

	return doc
}

func TestLocateByFieldName(t *testing.T) {
	tests := []struct {
		name       string
		fieldEntry string
	}{
		{"literal", "/T (Signature1)"},
		{"hex upper", "/T <" + strings.ToUpper(hex.EncodeToString([]byte("Signature1"))) + ">"},
		{"hex lower", "/T <" + strings.ToLower(hex.EncodeToString([]byte("Signature1"))) + ">"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := buildDoc(t, tt.fieldEntry, 64)

			areas, err := LocateSignatureAreas(doc, "Signature1")
			require.NoError(t, err)

			assert.EqualValues(t, 64, areas.ContentsSlot.Len())
			assert.Equal(t, byte('<'), doc[areas.ContentsSlot.Start-1])
			assert.Equal(t, byte('>'), doc[areas.ContentsSlot.End])
			assert.EqualValues(t, 0, areas.ByteRange[0])
			assert.EqualValues(t, areas.ContentsSlot.Start-1, areas.ByteRange[1])
		})
	}
}

// An unknown field name still resolves through the /ByteRange fallback scan.
func TestLocateFallback(t *testing.T) {
	doc := buildDoc(t, "/T (SomethingElse)", 64)

	areas, err := LocateSignatureAreas(doc, "Signature1")
	require.NoError(t, err)
	assert.EqualValues(t, 64, areas.ContentsSlot.Len())
}

func TestLocateMissingSignature(t *testing.T) {
	_, err := LocateSignatureAreas([]byte("%PDF-1.7\nnothing here\n%%EOF\n"), "Signature1")
	var notFound *SignatureDictionaryNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestEmbedCMS(t *testing.T) {
	doc := buildDoc(t, "/T (Signature1)", 64)
	cmsDER := []byte{0x30, 0x0a, 0xde, 0xad, 0xbe, 0xef}

	areas, err := LocateSignatureAreas(doc, "Signature1")
	require.NoError(t, err)
	digest, err := ByteRangeDigest(doc, areas.ByteRange)
	require.NoError(t, err)

	out, err := EmbedCMS(doc, "Signature1", cmsDER, digest)
	require.NoError(t, err)

	slot := out[areas.ContentsSlot.Start:areas.ContentsSlot.End]
	wantHex := strings.ToUpper(hex.EncodeToString(cmsDER))
	assert.True(t, bytes.HasPrefix(slot, []byte(wantHex)))
	assert.Equal(t, strings.Repeat("0", int(areas.ContentsSlot.Len())-len(wantHex)), string(slot[len(wantHex):]))

	// Nothing outside the slot moved.
	assert.Equal(t, doc[:areas.ContentsSlot.Start], out[:areas.ContentsSlot.Start])
	assert.Equal(t, doc[areas.ContentsSlot.End:], out[areas.ContentsSlot.End:])

	// Digest stability: the embed did not change the signed ranges.
	after, err := ByteRangeDigest(out, areas.ByteRange)
	require.NoError(t, err)
	assert.Equal(t, digest, after)
}

func TestEmbedCMSPlaceholderTooSmall(t *testing.T) {
	doc := buildDoc(t, "/T (Signature1)", 64)
	original := make([]byte, len(doc))
	copy(original, doc)

	_, err := EmbedCMS(doc, "Signature1", make([]byte, 40000), nil)
	var tooSmall *PlaceholderTooSmallError
	require.ErrorAs(t, err, &tooSmall)
	assert.Equal(t, 80000, tooSmall.Needed)
	assert.Equal(t, 64, tooSmall.Available)

	// The input was not mutated.
	assert.Equal(t, original, doc)
}

func TestEmbedCMSDigestDrift(t *testing.T) {
	doc := buildDoc(t, "/T (Signature1)", 64)
	wrong := sha256.Sum256([]byte("not the document"))

	_, err := EmbedCMS(doc, "Signature1", []byte{0x30, 0x00}, wrong[:])
	var drift *DigestDriftError
	require.ErrorAs(t, err, &drift)
}

func TestUnbalancedDictionary(t *testing.T) {
	doc := []byte("%PDF-1.7\n1 0 obj\n<< /ByteRange [0 1 2 3] /Contents <00> \nno closing\n%%EOF\n")
	_, err := LocateSignatureAreas(doc, "Signature1")
	require.Error(t, err)
}

func TestByteRangeDigestBounds(t *testing.T) {
	_, err := ByteRangeDigest([]byte("short"), [4]int64{0, 10, 20, 5})
	var malformed *MalformedError
	require.ErrorAs(t, err, &malformed)
}

package sign

import (
	"bytes"
	"testing"
	"time"

	"github.com/digitorus/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidensys/padessign/demo"
	"github.com/evidensys/padessign/locate"
)

func demoInput() []byte {
	return demo.Generate(demo.Options{
		Title:      "Prepare test",
		SignerName: "Dr. Test",
		Location:   "Paris",
	})
}

func prepareDemo(t *testing.T, data PrepareData) *PreparedPdf {
	t.Helper()
	prepared, err := Prepare(demoInput(), data)
	require.NoError(t, err)
	return prepared
}

func TestPrepareByteRangeInvariants(t *testing.T) {
	prepared := prepareDemo(t, PrepareData{
		Info: SignatureInfo{Name: "Dr. Test", Location: "Paris", Reason: "Testing"},
	})

	a, b, c, d := prepared.ByteRange[0], prepared.ByteRange[1], prepared.ByteRange[2], prepared.ByteRange[3]
	size := int64(len(prepared.Bytes))

	assert.EqualValues(t, 0, a)
	assert.Equal(t, byte('<'), prepared.Bytes[a+b], "b must point at the opening <")
	assert.Equal(t, byte('>'), prepared.Bytes[c-1], "c must point just past the closing >")
	assert.Equal(t, size, c+d, "the second interval must reach the end of file")
	assert.EqualValues(t, DefaultPlaceholderHexSize, c-b-2, "default hex slot width")
	assert.Len(t, prepared.MessageDigest, 32)

	// The digest covers exactly the two intervals.
	digest, err := locate.ByteRangeDigest(prepared.Bytes, prepared.ByteRange)
	require.NoError(t, err)
	assert.Equal(t, prepared.MessageDigest, digest)
}

// Mutations confined to the hex slot leave the digest untouched.
func TestPrepareDigestStability(t *testing.T) {
	prepared := prepareDemo(t, PrepareData{})

	mutated := make([]byte, len(prepared.Bytes))
	copy(mutated, prepared.Bytes)
	for i := prepared.ByteRange[1] + 1; i < prepared.ByteRange[2]-1; i += 97 {
		mutated[i] = 'F'
	}

	digest, err := locate.ByteRangeDigest(mutated, prepared.ByteRange)
	require.NoError(t, err)
	assert.Equal(t, prepared.MessageDigest, digest)
}

func TestPrepareEmitsSignatureDictionary(t *testing.T) {
	prepared := prepareDemo(t, PrepareData{
		Info: SignatureInfo{
			Name:   "Dr. Test",
			Reason: "Integration (test)",
			Date:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	})

	assert.Contains(t, string(prepared.Bytes[:prepared.ByteRange[1]]), "/SubFilter /ETSI.CAdES.detached")
	assert.Contains(t, string(prepared.Bytes), "/Filter /Adobe.PPKLite")
	assert.Contains(t, string(prepared.Bytes), "/T (Signature1)")
	assert.Contains(t, string(prepared.Bytes), "/Reason (Integration \\(test\\))")
	assert.Contains(t, string(prepared.Bytes), "/SigFlags 3")
	assert.Contains(t, string(prepared.Bytes), "/M (D:20240501120000+00'00')")
}

func TestPrepareCustomFieldAndSlot(t *testing.T) {
	prepared, err := Prepare(demoInput(), PrepareData{
		FieldName:          "ApprovalSig",
		PlaceholderHexSize: 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "ApprovalSig", prepared.FieldName)

	areas, err := locate.LocateSignatureAreas(prepared.Bytes, "ApprovalSig")
	require.NoError(t, err)
	assert.EqualValues(t, 4096, areas.ContentsSlot.Len())
	assert.Equal(t, prepared.ByteRange, areas.ByteRange)
}

// The prepared document keeps a readable xref chain: the incremental update
// must resolve with the same reader used on arbitrary inputs.
func TestPreparedDocumentStaysReadable(t *testing.T) {
	prepared := prepareDemo(t, PrepareData{Visible: true, Rect: [4]float64{400, 50, 550, 100}})

	rdr, err := pdf.NewReader(bytes.NewReader(prepared.Bytes), int64(len(prepared.Bytes)))
	require.NoError(t, err)

	acroForm := rdr.Trailer().Key("Root").Key("AcroForm")
	require.False(t, acroForm.IsNull(), "catalog must gain an AcroForm")
	assert.EqualValues(t, 3, acroForm.Key("SigFlags").Int64())
	require.EqualValues(t, 1, acroForm.Key("Fields").Len())

	field := acroForm.Key("Fields").Index(0)
	assert.Equal(t, "Signature1", field.Key("T").Text())
	sig := field.Key("V")
	assert.Equal(t, "Sig", sig.Key("Type").Name())
	assert.Equal(t, "ETSI.CAdES.detached", sig.Key("SubFilter").Name())
}

func TestPrepareRejectsGarbage(t *testing.T) {
	_, err := Prepare([]byte("not a pdf at all"), PrepareData{})
	require.Error(t, err)
	var prepErr *PrepareError
	assert.ErrorAs(t, err, &prepErr)
}

func TestPdfStringEscaping(t *testing.T) {
	assert.Equal(t, "(plain)", pdfString("plain"))
	assert.Equal(t, "(with \\(parens\\))", pdfString("with (parens)"))
	assert.Equal(t, "(back\\\\slash)", pdfString("back\\slash"))

	// Non-ASCII becomes a UTF-16BE hex string with BOM.
	hexString := pdfString("Théo")
	assert.True(t, len(hexString) > 2 && hexString[0] == '<')
	assert.Contains(t, hexString, "FEFF")
}

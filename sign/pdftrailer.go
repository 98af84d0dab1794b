package sign

import (
	"fmt"
	"strconv"
)

// writeTrailer emits the trailer dictionary for the appended xref section.
// The dictionary is synthesized rather than patched from the original: the
// previous section may have been a cross-reference stream, which has no
// trailer text to patch.
func (context *prepareContext) writeTrailer(xrefStart int64) error {
	size := context.lastXrefID + 1 + uint32(len(context.newXrefEntries))

	trailer := "trailer\n<<\n"
	trailer += "  /Size " + strconv.FormatUint(uint64(size), 10) + "\n"
	trailer += "  /Root " + strconv.FormatUint(uint64(context.CatalogData.ObjectId), 10) + " 0 R\n"
	trailer += "  /Prev " + strconv.FormatInt(context.PDFReader.XrefInformation.StartPos, 10) + "\n"

	info := context.PDFReader.Trailer().Key("Info")
	if !info.IsNull() {
		ptr := info.GetPtr()
		if ptr.GetID() != 0 {
			trailer += fmt.Sprintf("  /Info %d %d R\n", ptr.GetID(), ptr.GetGen())
		}
	}

	trailer += ">>\n"
	trailer += "startxref\n"
	trailer += strconv.FormatInt(xrefStart, 10) + "\n"
	trailer += "%%EOF\n"

	if _, err := context.OutputBuffer.Write([]byte(trailer)); err != nil {
		return err
	}
	return nil
}

package sign

import (
	"io"
	"time"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

// DefaultFieldName is the form field name registered by Prepare.
const DefaultFieldName = "Signature1"

// DefaultPlaceholderHexSize reserves 8 KiB of DER in the /Contents slot.
const DefaultPlaceholderHexSize = 16384

// SignatureInfo is the human-facing metadata written into the signature
// dictionary.
type SignatureInfo struct {
	Name        string
	Location    string
	Reason      string
	ContactInfo string
	Date        time.Time
}

// PrepareData configures a prepare pass.
type PrepareData struct {
	Info SignatureInfo

	// FieldName of the signature form field. Defaults to Signature1.
	FieldName string

	// PlaceholderHexSize is the width of the /Contents hex slot.
	PlaceholderHexSize int

	// Visible places the widget on a page with the given rectangle.
	Visible bool
	Page    uint32
	Rect    [4]float64
}

// PreparedPdf is the self-consistent output of one prepare pass: the emitted
// bytes, the final ByteRange and the SHA-256 over both signed intervals. The
// digest stays valid for any mutation confined to the /Contents hex slot.
type PreparedPdf struct {
	Bytes         []byte
	ByteRange     [4]int64
	MessageDigest []byte
	FieldName     string
}

type catalogData struct {
	ObjectId   uint32
	RootString string
}

type visualSignData struct {
	pageObjectId uint32
	objectId     uint32
}

type xrefEntry struct {
	ID     uint32
	Offset int64
}

// prepareContext carries the state of one prepare pass over a document. It
// mirrors the incremental-update flow: the input is copied, new objects are
// appended, then xref table, trailer and byte range are finalized.
type prepareContext struct {
	PDFReader    *pdf.Reader
	InputFile    io.ReadSeeker
	OutputBuffer *filebuffer.Buffer
	PrepareData  PrepareData

	CatalogData    catalogData
	VisualSignData visualSignData

	sigObjectId        uint32
	lastXrefID         uint32
	newXrefEntries     []xrefEntry
	updatedXrefEntries []xrefEntry

	existingFields []uint32
}

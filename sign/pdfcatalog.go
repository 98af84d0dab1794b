package sign

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/digitorus/pdf"
)

// createCatalog re-emits the document catalog with an AcroForm that lists the
// new signature field next to any pre-existing fields. Entries we do not own
// are carried over from the original catalog unchanged.
func (context *prepareContext) createCatalog() ([]byte, error) {
	var overwrittenCatalogKeys []string
	var catalog_buffer bytes.Buffer

	catalog_buffer.WriteString("<<\n")
	catalog_buffer.WriteString("  /Type /Catalog\n")
	overwrittenCatalogKeys = append(overwrittenCatalogKeys, "Type")

	root := context.PDFReader.Trailer().Key("Root")
	rootPtr := root.GetPtr()
	context.CatalogData.RootString = strconv.Itoa(int(rootPtr.GetID())) + " " + strconv.Itoa(int(rootPtr.GetGen())) + " R"

	foundPages, foundNames := false, false
	for _, key := range root.Keys() {
		switch key {
		case "Pages":
			foundPages = true
		case "Names":
			foundNames = true
		}
	}

	if foundPages {
		pages := root.Key("Pages").GetPtr()
		catalog_buffer.WriteString("  /Pages " + strconv.Itoa(int(pages.GetID())) + " " + strconv.Itoa(int(pages.GetGen())) + " R\n")
		overwrittenCatalogKeys = append(overwrittenCatalogKeys, "Pages")
	}
	if foundNames {
		names := root.Key("Names").GetPtr()
		catalog_buffer.WriteString("  /Names " + strconv.Itoa(int(names.GetID())) + " " + strconv.Itoa(int(names.GetGen())) + " R\n")
		overwrittenCatalogKeys = append(overwrittenCatalogKeys, "Names")
	}

	overwrittenCatalogKeys = append(overwrittenCatalogKeys, "AcroForm")
	catalog_buffer.WriteString("  /AcroForm <<\n")
	catalog_buffer.WriteString("    /Fields [")
	for i, id := range context.existingFields {
		if i > 0 {
			catalog_buffer.WriteString(" ")
		}
		catalog_buffer.WriteString(strconv.Itoa(int(id)) + " 0 R")
	}
	if len(context.existingFields) > 0 {
		catalog_buffer.WriteString(" ")
	}
	catalog_buffer.WriteString(strconv.Itoa(int(context.VisualSignData.objectId)) + " 0 R]\n")

	// SignaturesExist | AppendOnly (Table 225).
	catalog_buffer.WriteString("    /SigFlags 3\n")
	catalog_buffer.WriteString("  >>\n")

	// Carry over the remaining catalog entries from the original document.
	for _, key := range root.Keys() {
		if !slices.Contains(overwrittenCatalogKeys, key) {
			_, _ = fmt.Fprintf(&catalog_buffer, "  /%s ", key)
			context.serializeCatalogEntry(&catalog_buffer, rootPtr.GetID(), root.Key(key))
			catalog_buffer.WriteString("\n")
		}
	}
	catalog_buffer.WriteString(">>\n")

	return catalog_buffer.Bytes(), nil
}

// serializeCatalogEntry writes a catalog value, keeping indirect references
// as references and expanding direct values recursively.
func (context *prepareContext) serializeCatalogEntry(w io.Writer, rootObjId uint32, value pdf.Value) {
	if ptr := value.GetPtr(); ptr.GetID() != rootObjId {
		_, _ = fmt.Fprintf(w, "%d %d R", ptr.GetID(), ptr.GetGen())
		return
	}

	switch value.Kind() {
	case pdf.String:
		_, _ = fmt.Fprintf(w, "(%s)", value.RawString())
	case pdf.Null:
		_, _ = fmt.Fprint(w, "null")
	case pdf.Bool:
		if value.Bool() {
			_, _ = fmt.Fprint(w, "true")
		} else {
			_, _ = fmt.Fprint(w, "false")
		}
	case pdf.Integer:
		_, _ = fmt.Fprintf(w, "%d", value.Int64())
	case pdf.Real:
		_, _ = fmt.Fprintf(w, "%f", value.Float64())
	case pdf.Name:
		_, _ = fmt.Fprintf(w, "/%s", value.Name())
	case pdf.Dict:
		_, _ = fmt.Fprint(w, "<<")
		for idx, key := range value.Keys() {
			if idx > 0 {
				_, _ = fmt.Fprint(w, " ")
			}
			_, _ = fmt.Fprintf(w, "/%s ", key)
			context.serializeCatalogEntry(w, rootObjId, value.Key(key))
		}
		_, _ = fmt.Fprint(w, ">>")
	case pdf.Array:
		_, _ = fmt.Fprint(w, "[")
		for idx := 0; idx < value.Len(); idx++ {
			if idx > 0 {
				_, _ = fmt.Fprint(w, " ")
			}
			context.serializeCatalogEntry(w, rootObjId, value.Index(idx))
		}
		_, _ = fmt.Fprint(w, "]")
	case pdf.Stream:
		panic("stream cannot be a direct catalog entry")
	}
}

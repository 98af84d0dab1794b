// Package locate finds the byte-exact spans of a signature dictionary inside
// a PDF and embeds CMS containers into the reserved /Contents slot. It works
// on raw bytes only: no charset decoding, no object-stream support, and it
// never rewrites anything outside the two placeholder slots.
package locate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Span is a half-open byte interval [Start, End).
type Span struct {
	Start int64
	End   int64
}

// Len returns the width of the span.
func (s Span) Len() int64 { return s.End - s.Start }

// Areas describes where a signature lives inside a PDF.
type Areas struct {
	// ByteRange holds the four integers currently written in the slot. In a
	// prepared-but-unsigned document these may still be the placeholder
	// zeros.
	ByteRange [4]int64

	// ByteRangeSlot spans "/ByteRange [ ... ]" including both brackets.
	ByteRangeSlot Span

	// ContentsSlot spans the hex digits between < and > after /Contents.
	ContentsSlot Span
}

// LocateSignatureAreas finds the signature dictionary for the named form
// field. The field is matched as a literal string /T (name) and as upper and
// lower case hex strings /T <...>; every match is resolved through its /V
// reference. When no field-based match yields a dictionary with /ByteRange
// and /Contents, every /ByteRange occurrence is tried in file order.
func LocateSignatureAreas(data []byte, fieldName string) (*Areas, error) {
	for _, dict := range candidateDictionaries(data, fieldName) {
		areas, err := areasFromDictionary(data, dict)
		if err == nil {
			return areas, nil
		}
	}

	// Fallback: any dictionary containing /ByteRange.
	offset := 0
	for {
		idx := bytes.Index(data[offset:], []byte("/ByteRange"))
		if idx < 0 {
			break
		}
		pos := offset + idx
		if dict, err := enclosingDictionary(data, int64(pos)); err == nil {
			if areas, err := areasFromDictionary(data, dict); err == nil {
				return areas, nil
			}
		}
		offset = pos + 1
	}

	return nil, &SignatureDictionaryNotFoundError{FieldName: fieldName}
}

// EmbedCMS writes the hex-encoded CMS into the /Contents slot of the named
// signature field. The slot is padded on the right with '0'; everything
// outside the slot is copied unchanged. When expectedDigest is non-nil the
// ByteRange digest of the result is recomputed and compared.
func EmbedCMS(data []byte, fieldName string, cmsDER []byte, expectedDigest []byte) ([]byte, error) {
	areas, err := LocateSignatureAreas(data, fieldName)
	if err != nil {
		return nil, err
	}

	slotLen := int(areas.ContentsSlot.Len())
	needed := hex.EncodedLen(len(cmsDER))
	if needed > slotLen {
		return nil, &PlaceholderTooSmallError{Needed: needed, Available: slotLen}
	}

	out := make([]byte, len(data))
	copy(out, data)

	slot := out[areas.ContentsSlot.Start:areas.ContentsSlot.End]
	hex.Encode(slot, cmsDER)
	copy(slot, bytes.ToUpper(slot[:needed]))
	for i := needed; i < slotLen; i++ {
		slot[i] = '0'
	}

	if expectedDigest != nil {
		digest, err := ByteRangeDigest(out, areas.ByteRange)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(digest, expectedDigest) {
			return nil, &DigestDriftError{}
		}
	}

	return out, nil
}

// ByteRangeDigest computes SHA-256 over the two signed intervals.
func ByteRangeDigest(data []byte, br [4]int64) ([]byte, error) {
	if br[0] < 0 || br[1] < 0 || br[2] < br[0]+br[1] || br[2]+br[3] > int64(len(data)) {
		return nil, &MalformedError{Reason: fmt.Sprintf("byte range %v out of bounds for %d bytes", br, len(data))}
	}
	h := sha256.New()
	h.Write(data[br[0] : br[0]+br[1]])
	h.Write(data[br[2] : br[2]+br[3]])
	return h.Sum(nil), nil
}

// EnclosingDictionary exposes the dictionary span containing pos, for
// callers that need to read neighbouring entries of a located slot.
func EnclosingDictionary(data []byte, pos int64) (Span, error) {
	return enclosingDictionary(data, pos)
}

// candidateDictionaries resolves every /T hit for the field to a signature
// dictionary span via its /V indirect reference.
func candidateDictionaries(data []byte, fieldName string) []Span {
	if fieldName == "" {
		return nil
	}

	needles := [][]byte{
		[]byte("/T (" + fieldName + ")"),
		[]byte("/T <" + strings.ToUpper(hex.EncodeToString([]byte(fieldName))) + ">"),
		[]byte("/T <" + strings.ToLower(hex.EncodeToString([]byte(fieldName))) + ">"),
	}

	var dicts []Span
	for _, needle := range needles {
		offset := 0
		for {
			idx := bytes.Index(data[offset:], needle)
			if idx < 0 {
				break
			}
			pos := offset + idx
			if dict, err := enclosingDictionary(data, int64(pos)); err == nil {
				if sig, ok := dereferenceValue(data, dict); ok {
					dicts = append(dicts, sig)
				} else {
					// The field dictionary may be merged with the
					// signature dictionary itself.
					dicts = append(dicts, dict)
				}
			}
			offset = pos + 1
		}
	}
	return dicts
}

// enclosingDictionary walks backwards from pos to the << opening the
// dictionary that contains pos, then forward to its matching >>.
func enclosingDictionary(data []byte, pos int64) (Span, error) {
	depth := 0
	start := int64(-1)
	for i := pos; i >= 1; i-- {
		if data[i-1] == '>' && data[i] == '>' {
			depth++
			i-- // don't reread the first '>' as the tail of another token
			continue
		}
		if data[i-1] == '<' && data[i] == '<' {
			if depth == 0 {
				start = i - 1
				break
			}
			depth--
			i--
		}
	}
	if start < 0 {
		return Span{}, &SignatureDictionaryNotFoundError{}
	}
	end, err := matchDictionaryEnd(data, start)
	if err != nil {
		return Span{}, err
	}
	return Span{Start: start, End: end}, nil
}

// matchDictionaryEnd returns the offset just past the >> matching the << at
// start.
func matchDictionaryEnd(data []byte, start int64) (int64, error) {
	depth := 0
	for i := start; i < int64(len(data))-1; i++ {
		if data[i] == '<' && data[i+1] == '<' {
			depth++
			i++
			continue
		}
		if data[i] == '>' && data[i+1] == '>' {
			depth--
			i++
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, &UnbalancedDictionaryError{Offset: start}
}

// dereferenceValue reads the /V N G R entry of a field dictionary and
// resolves it to the dictionary of object N G.
func dereferenceValue(data []byte, field Span) (Span, bool) {
	dict := data[field.Start:field.End]
	idx := bytes.Index(dict, []byte("/V"))
	if idx < 0 {
		return Span{}, false
	}
	num, gen, ok := parseIndirectRef(dict[idx+2:])
	if !ok {
		return Span{}, false
	}
	return locateObjectDictionary(data, num, gen)
}

// parseIndirectRef parses "N G R" allowing leading whitespace.
func parseIndirectRef(b []byte) (num, gen int, ok bool) {
	fields := strings.Fields(string(firstBytes(b, 48)))
	if len(fields) < 3 || fields[2] != "R" {
		return 0, 0, false
	}
	num, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	gen, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return num, gen, true
}

// locateObjectDictionary finds "N G obj" and returns the span of its top
// level dictionary. The last occurrence wins: incremental updates append
// redefinitions after the original object.
func locateObjectDictionary(data []byte, num, gen int) (Span, bool) {
	marker := []byte(fmt.Sprintf("%d %d obj", num, gen))
	at := int64(-1)
	offset := 0
	for {
		idx := bytes.Index(data[offset:], marker)
		if idx < 0 {
			break
		}
		pos := offset + idx
		// Reject hits like "12 0 obj" matched inside "112 0 obj".
		if pos == 0 || !isDigit(data[pos-1]) {
			at = int64(pos)
		}
		offset = pos + 1
	}
	if at < 0 {
		return Span{}, false
	}
	open := bytes.Index(data[at:], []byte("<<"))
	if open < 0 {
		return Span{}, false
	}
	start := at + int64(open)
	end, err := matchDictionaryEnd(data, start)
	if err != nil {
		return Span{}, false
	}
	return Span{Start: start, End: end}, true
}

// areasFromDictionary extracts the /ByteRange and /Contents slots from a
// signature dictionary span.
func areasFromDictionary(data []byte, dict Span) (*Areas, error) {
	body := data[dict.Start:dict.End]

	brIdx := bytes.Index(body, []byte("/ByteRange"))
	if brIdx < 0 {
		return nil, &SignatureDictionaryNotFoundError{}
	}
	open := bytes.IndexByte(body[brIdx:], '[')
	if open < 0 {
		return nil, &MalformedError{Reason: "/ByteRange has no array"}
	}
	open += brIdx
	closeIdx := bytes.IndexByte(body[open:], ']')
	if closeIdx < 0 {
		return nil, &MalformedError{Reason: "/ByteRange array is not closed"}
	}
	closeIdx += open

	var br [4]int64
	fields := strings.Fields(string(body[open+1 : closeIdx]))
	if len(fields) != 4 {
		return nil, &MalformedError{Reason: fmt.Sprintf("/ByteRange has %d integers, want 4", len(fields))}
	}
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, &MalformedError{Reason: "/ByteRange integer does not parse: " + f}
		}
		br[i] = v
	}

	ctIdx := bytes.Index(body, []byte("/Contents"))
	if ctIdx < 0 {
		return nil, &SignatureDictionaryNotFoundError{}
	}
	lt := bytes.IndexByte(body[ctIdx:], '<')
	if lt < 0 {
		return nil, &MalformedError{Reason: "/Contents has no hex string"}
	}
	lt += ctIdx
	gt := lt + 1
	for gt < len(body) && isHexDigit(body[gt]) {
		gt++
	}
	if gt >= len(body) || body[gt] != '>' {
		return nil, &MalformedError{Reason: "/Contents hex string is not closed"}
	}

	return &Areas{
		ByteRange: br,
		ByteRangeSlot: Span{
			Start: dict.Start + int64(brIdx),
			End:   dict.Start + int64(closeIdx) + 1,
		},
		ContentsSlot: Span{
			Start: dict.Start + int64(lt) + 1,
			End:   dict.Start + int64(gt),
		},
	}, nil
}

func firstBytes(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

package sign

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// pdfString emits a PDF text string. ASCII input becomes a literal string
// with the reserved characters escaped; anything else becomes a UTF-16BE hex
// string with BOM, which every conforming reader accepts.
func pdfString(text string) string {
	if isASCII(text) {
		text = strings.Replace(text, "\\", "\\\\", -1)
		text = strings.Replace(text, ")", "\\)", -1)
		text = strings.Replace(text, "(", "\\(", -1)
		text = strings.Replace(text, "\r", "\\r", -1)
		return "(" + text + ")"
	}

	encoder := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	encoded, err := encoder.String(text)
	if err != nil {
		// Unencodable runes degrade to a literal string with them dropped.
		return pdfString(strings.Map(func(r rune) rune {
			if r > 127 {
				return -1
			}
			return r
		}, text))
	}
	return "<" + strings.ToUpper(hex.EncodeToString([]byte(encoded))) + ">"
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// pdfDateTime formats a time as a PDF date string, D:YYYYMMDDHHmmSS with the
// timezone offset in the +HH'mm' form Go's layouts can't express.
func pdfDateTime(date time.Time) string {
	_, original_offset := date.Zone()
	offset := original_offset
	if offset < 0 {
		offset = -offset
	}

	offset_duration := time.Duration(offset) * time.Second
	offset_hours := int(math.Floor(offset_duration.Hours()))
	offset_minutes := int(math.Floor(offset_duration.Minutes())) - offset_hours*60

	dateString := "D:" + date.Format("20060102150405")
	if original_offset < 0 {
		dateString += "-"
	} else {
		dateString += "+"
	}
	dateString += fmt.Sprintf("%02d'%02d'", offset_hours, offset_minutes)

	return pdfString(dateString)
}

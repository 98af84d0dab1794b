package verify

import (
	"bytes"
	"strings"
	"time"

	"github.com/digitorus/pdf"
)

// DocumentInfo carries the document metadata of the verified file.
type DocumentInfo struct {
	Author   string `json:"author,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Title    string `json:"title,omitempty"`

	Pages    int      `json:"pages,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	CreationDate *time.Time `json:"creation_date,omitempty"`
	ModDate      *time.Time `json:"mod_date,omitempty"`
}

// readDocumentInfo extracts the /Info dictionary and page count, best effort:
// a document that defeats the reader simply yields no metadata.
func readDocumentInfo(data []byte) (info *DocumentInfo) {
	defer func() {
		if r := recover(); r != nil {
			info = nil
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil
	}

	info = &DocumentInfo{Pages: rdr.NumPage()}

	dict := rdr.Trailer().Key("Info")
	if dict.IsNull() {
		return info
	}

	info.Author = dict.Key("Author").Text()
	info.Creator = dict.Key("Creator").Text()
	info.Producer = dict.Key("Producer").Text()
	info.Subject = dict.Key("Subject").Text()
	info.Title = dict.Key("Title").Text()

	if v := dict.Key("Keywords").Text(); v != "" {
		info.Keywords = parseKeywords(v)
	}
	if t, err := parseDate(dict.Key("CreationDate").Text()); err == nil {
		info.CreationDate = &t
	}
	if t, err := parseDate(dict.Key("ModDate").Text()); err == nil {
		info.ModDate = &t
	}

	return info
}

// parseDate parses the PDF date format D:YYYYMMDDHHmmSSOHH'mm'.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("D:20060102150405Z07'00'", v); err == nil {
		return t, nil
	}
	return time.Parse("D:20060102150405", v)
}

// parseKeywords splits the keyword metadata; the separator in the wild is a
// comma, a semicolon or plain spaces.
func parseKeywords(value string) []string {
	separators := []string{", ", "; ", ",", ";", " "}
	for _, s := range separators {
		if strings.Contains(value, s) {
			return strings.Split(value, s)
		}
	}
	return []string{value}
}


// Package mapping parses the IDs_mapping file: three stacked sections that
// map integer admission type, discharge disposition and admission source
// codes to free-text descriptions.
package mapping

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"diabclean/internal/textio"
)

// Family identifies one code section of the mapping file. Its value is both
// the section header and the encounter column the codes appear in.
type Family string

const (
	AdmissionType        Family = "admission_type_id"
	DischargeDisposition Family = "discharge_disposition_id"
	AdmissionSource      Family = "admission_source_id"
)

// Families lists the code families in file order.
var Families = []Family{AdmissionType, DischargeDisposition, AdmissionSource}

var ErrUnknownFamily = errors.New("unknown code family")

// ParseFamily matches a section header field (case-insensitive) to a Family.
func ParseFamily(s string) (Family, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range Families {
		if s == string(f) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
}

// DescriptionColumn is the encounter column that receives the family's
// descriptions, e.g. admission_type_id -> admission_type_desc.
func (f Family) DescriptionColumn() string {
	return strings.TrimSuffix(string(f), "_id") + "_desc"
}

// Entry is one code/description pair.
type Entry struct {
	Code        int
	Description string
}

// Sections holds one association list per family, in file order.
type Sections struct {
	entries map[Family][]Entry
	index   map[Family]map[int]int // code -> position in entries
}

func newSections() *Sections {
	s := &Sections{
		entries: make(map[Family][]Entry, len(Families)),
		index:   make(map[Family]map[int]int, len(Families)),
	}
	for _, f := range Families {
		s.index[f] = make(map[int]int)
	}
	return s
}

func (s *Sections) add(f Family, code int, desc string) {
	if pos, ok := s.index[f][code]; ok {
		s.entries[f][pos].Description = desc
		return
	}
	s.index[f][code] = len(s.entries[f])
	s.entries[f] = append(s.entries[f], Entry{Code: code, Description: desc})
}

// Load reads and parses the mapping file at path. enc names the file
// encoding (see textio.NormalizeEncoding).
func Load(path, enc string) (*Sections, error) {
	rc, err := textio.Open(path, enc)
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	defer rc.Close()

	s, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("load mapping %s: %w", path, err)
	}
	return s, nil
}

// Parse scans the mapping text line by line. A line whose first field names
// a family starts that family's section; any other line is split on its
// first comma into code and description. Lines that do not parse (no comma,
// non-integer code, empty or NULL description, data before any header) are
// skipped, so their codes describe as NA.
func Parse(r io.Reader) (*Sections, error) {
	s := newSections()
	var current Family

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		head, rest, found := strings.Cut(line, ",")
		if f, err := ParseFamily(head); err == nil {
			current = f
			continue
		}
		if !found || current == "" {
			continue
		}

		code, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}
		desc := cleanDescription(rest)
		if desc == "" || isNull(desc) {
			continue
		}
		s.add(current, code, desc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan mapping: %w", err)
	}
	return s, nil
}

// cleanDescription trims whitespace and one pair of surrounding CSV quotes.
func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return strings.TrimSpace(s)
}

// nullDescriptions are description cells that stand for a missing value.
var nullDescriptions = []string{"NULL", "NaN", "NA", "N/A", "#N/A", "<NA>"}

func isNull(desc string) bool {
	for _, n := range nullDescriptions {
		if strings.EqualFold(desc, n) {
			return true
		}
	}
	return false
}

// Entries returns the family's code/description pairs in file order.
func (s *Sections) Entries(f Family) []Entry {
	return s.entries[f]
}

// Len returns the number of codes parsed for a family.
func (s *Sections) Len(f Family) int {
	return len(s.entries[f])
}

// Describe returns the description for code, or false for an unknown code.
func (s *Sections) Describe(f Family, code int) (string, bool) {
	pos, ok := s.index[f][code]
	if !ok {
		return "", false
	}
	return s.entries[f][pos].Description, true
}

// CodesMatching returns the family's codes whose description contains any of
// the substrings, compared case-insensitively.
func (s *Sections) CodesMatching(f Family, substrings ...string) []int {
	var codes []int
	for _, e := range s.entries[f] {
		desc := strings.ToLower(e.Description)
		for _, sub := range substrings {
			if strings.Contains(desc, strings.ToLower(sub)) {
				codes = append(codes, e.Code)
				break
			}
		}
	}
	return codes
}

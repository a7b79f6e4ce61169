package domain

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type SeatCategory string

const (
	CategoryRegular   SeatCategory = "regular"
	CategoryExecutive SeatCategory = "executive"
	CategoryPremium   SeatCategory = "premium"

	// Gap marks a non-sellable slot such as an aisle.
	Gap SeatCategory = ""
)

// SeatLayout is an ordered list of rows, each an ordered list of slots.
type SeatLayout struct {
	Rows [][]SeatCategory `json:"rows"`
}

// LayoutFromRows builds a layout from a compact notation: one string per row,
// R regular, E executive, P premium, '_' or ' ' an aisle gap.
func LayoutFromRows(rows ...string) (SeatLayout, error) {
	l := SeatLayout{Rows: make([][]SeatCategory, 0, len(rows))}
	for i, r := range rows {
		slots := make([]SeatCategory, 0, len(r))
		for _, c := range r {
			switch c {
			case 'R', 'r':
				slots = append(slots, CategoryRegular)
			case 'E', 'e':
				slots = append(slots, CategoryExecutive)
			case 'P', 'p':
				slots = append(slots, CategoryPremium)
			case '_', ' ':
				slots = append(slots, Gap)
			default:
				return SeatLayout{}, errors.Newf("row %s: unknown slot %q", RowLabel(i), c)
			}
		}
		l.Rows = append(l.Rows, slots)
	}
	return l, nil
}

func (l SeatLayout) Slot(id SeatID) (SeatCategory, bool) {
	if id.Row < 0 || id.Row >= len(l.Rows) {
		return Gap, false
	}
	row := l.Rows[id.Row]
	if id.Slot < 0 || id.Slot >= len(row) {
		return Gap, false
	}
	return row[id.Slot], true
}

func (l SeatLayout) Sellable(id SeatID) bool {
	c, ok := l.Slot(id)
	return ok && c != Gap
}

func (l SeatLayout) SellableCount() int {
	n := 0
	for _, row := range l.Rows {
		for _, c := range row {
			if c != Gap {
				n++
			}
		}
	}
	return n
}

// Categories lists the distinct sellable categories in the layout, sorted.
func (l SeatLayout) Categories() []SeatCategory {
	seen := map[SeatCategory]struct{}{}
	for _, row := range l.Rows {
		for _, c := range row {
			if c != Gap {
				seen[c] = struct{}{}
			}
		}
	}
	out := make([]SeatCategory, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SeatID identifies a slot of a screen by zero-based row and slot index.
type SeatID struct {
	Row  int
	Slot int
}

// Label renders the seat as row letters plus its 1-based slot position, e.g. C7.
func (s SeatID) Label() string {
	return RowLabel(s.Row) + strconv.Itoa(s.Slot+1)
}

func (s SeatID) Less(o SeatID) bool {
	if s.Row != o.Row {
		return s.Row < o.Row
	}
	return s.Slot < o.Slot
}

// RowLabel maps 0 to A, 25 to Z, 26 to AA and so on.
func RowLabel(i int) string {
	var b []byte
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ParseSeatLabel is the inverse of SeatID.Label.
func ParseSeatLabel(label string) (SeatID, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(s) {
		return SeatID{}, errors.Wrapf(ErrInvalidSeatSelection, "malformed seat label %q", label)
	}
	row := 0
	for _, c := range s[:i] {
		row = row*26 + int(c-'A'+1)
		if row > 1<<20 {
			return SeatID{}, errors.Wrapf(ErrInvalidSeatSelection, "malformed seat label %q", label)
		}
	}
	n := 0
	for _, c := range s[i:] {
		if c < '0' || c > '9' {
			return SeatID{}, errors.Wrapf(ErrInvalidSeatSelection, "malformed seat label %q", label)
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return SeatID{}, errors.Wrapf(ErrInvalidSeatSelection, "malformed seat label %q", label)
		}
	}
	if n < 1 {
		return SeatID{}, errors.Wrapf(ErrInvalidSeatSelection, "malformed seat label %q", label)
	}
	return SeatID{Row: row - 1, Slot: n - 1}, nil
}

func SortSeats(ids []SeatID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

func Labels(ids []SeatID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Label()
	}
	return out
}

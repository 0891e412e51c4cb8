package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnparseable is returned when a model reply lacks the expected
// Offered/Requested structure.
var ErrUnparseable = errors.New("unparseable extraction reply")

// Parsed holds the four fields read from a model reply.
type Parsed struct {
	OfferedQuantity   int64
	OfferedType       string
	RequestedQuantity int64
	RequestedType     string
}

type section int

const (
	sectionNone section = iota
	sectionOffered
	sectionRequested
)

// ParseResponse reads a reply of the form
//
//	Offered:
//	Quantity: 2
//	Type: NSA
//	Requested:
//	Quantity: 2
//	Type: ÖG
//
// "Ticket Type:" is accepted in place of "Type:". Lines outside the two
// sections are ignored. Quantities are kept as written, including zero.
func ParseResponse(reply string) (Parsed, error) {
	var p Parsed
	var current section
	var hasOffQty, hasOffType, hasReqQty, hasReqType bool

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "*-"))
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "offered":
			current = sectionOffered
		case "requested":
			current = sectionRequested
		case "quantity":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Parsed{}, fmt.Errorf("%w: quantity %q is not an integer", ErrUnparseable, value)
			}
			switch current {
			case sectionOffered:
				p.OfferedQuantity, hasOffQty = n, true
			case sectionRequested:
				p.RequestedQuantity, hasReqQty = n, true
			}
		case "type", "ticket type":
			switch current {
			case sectionOffered:
				p.OfferedType, hasOffType = value, value != ""
			case sectionRequested:
				p.RequestedType, hasReqType = value, value != ""
			}
		}
	}

	if !hasOffQty || !hasOffType || !hasReqQty || !hasReqType {
		return Parsed{}, fmt.Errorf("%w: missing offered or requested fields", ErrUnparseable)
	}
	return p, nil
}

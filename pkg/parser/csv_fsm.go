package parser

// csvState is the state of the field scanner.
type csvState uint8

const (
	stateFieldStart csvState = iota
	stateInField
	stateInQuotedField
	stateQuoteInQuotedField
)

// CSVScanner splits one CSV record into fields with a finite state machine.
// It handles embedded delimiters, doubled quotes and trailing CR.
type CSVScanner struct {
	delimiter  byte
	state      csvState
	fieldStart int
	fieldEnd   int
}

// NewCSVScanner creates a scanner for delimiter.
func NewCSVScanner(delimiter byte) *CSVScanner {
	return &CSVScanner{delimiter: delimiter}
}

// ScanLine returns the fields of line. Unquoted fields point into line;
// quoted fields containing doubled quotes are copied.
func (s *CSVScanner) ScanLine(line []byte) [][]byte {
	if len(line) == 0 {
		return nil
	}

	fields := make([][]byte, 0, 16)
	s.state = stateFieldStart
	escaped := false

	for i := 0; i <= len(line); i++ {
		end := i == len(line)
		var c byte
		if !end {
			c = line[i]
		}

		switch s.state {
		case stateFieldStart:
			switch {
			case end:
				fields = append(fields, nil)
			case c == '"':
				s.fieldStart = i + 1
				s.state = stateInQuotedField
			case c == s.delimiter:
				fields = append(fields, nil)
			case c == '\r' || c == '\n':
				fields = append(fields, nil)
				i = len(line)
			default:
				s.fieldStart = i
				s.state = stateInField
			}

		case stateInField:
			if end || c == s.delimiter || c == '\r' || c == '\n' {
				fields = append(fields, line[s.fieldStart:i])
				s.state = stateFieldStart
				if !end && c != s.delimiter {
					i = len(line)
				}
			}

		case stateInQuotedField:
			if end {
				// unterminated: keep what we have
				fields = append(fields, line[s.fieldStart:i])
				continue
			}
			if c == '"' {
				s.fieldEnd = i
				s.state = stateQuoteInQuotedField
			}

		case stateQuoteInQuotedField:
			switch {
			case end || c == s.delimiter || c == '\r' || c == '\n':
				field := line[s.fieldStart:s.fieldEnd]
				if escaped {
					field = unescapeQuotes(field)
					escaped = false
				}
				fields = append(fields, field)
				s.state = stateFieldStart
				if !end && c != s.delimiter {
					i = len(line)
				}
			case c == '"':
				escaped = true
				s.state = stateInQuotedField
			default:
				// stray character after a closing quote; stay lenient
				s.state = stateInQuotedField
			}
		}
	}

	return fields
}

// unescapeQuotes replaces "" with " in a quoted field.
func unescapeQuotes(field []byte) []byte {
	out := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		if field[i] == '"' && i+1 < len(field) && field[i+1] == '"' {
			i++
		}
		out = append(out, field[i])
	}
	return out
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	valid := true
	for i := 0; i < len(data); {
		size := validSequence(data, i)
		if size == 0 {
			valid = false
			break
		}
		i += size
	}
	if valid {
		return data
	}

	out := make([]byte, 0, len(data)+8)
	for i := 0; i < len(data); {
		if size := validSequence(data, i); size > 0 {
			out = append(out, data[i:i+size]...)
			i += size
			continue
		}
		out = append(out, 0xEF, 0xBF, 0xBD)
		i++
	}
	return out
}

// validSequence returns the length of the valid UTF-8 sequence at data[i],
// or 0.
func validSequence(data []byte, i int) int {
	b := data[i]
	var size int
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		size = 2
	case b < 0xF0:
		size = 3
	case b < 0xF8:
		size = 4
	default:
		return 0
	}
	if i+size > len(data) {
		return 0
	}
	for j := 1; j < size; j++ {
		if data[i+j]&0xC0 != 0x80 {
			return 0
		}
	}
	return size
}

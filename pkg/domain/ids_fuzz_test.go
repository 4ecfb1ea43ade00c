package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAccountID checks that parsing never panics and that accepted
// input always round-trips.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE visitor_logs;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		parsed, err := ParseAccountID(input)
		if err == nil {
			again, err2 := ParseAccountID(parsed.String())
			if err2 != nil {
				t.Errorf("valid id failed round-trip: %v", err2)
			}
			if again != parsed {
				t.Error("round-trip changed id value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errAccount := ParseAccountID(input)
		_, errSociety := ParseSocietyID(input)
		_, errVisitor := ParseVisitorID(input)

		if (errAccount == nil) != (errSociety == nil) || (errAccount == nil) != (errVisitor == nil) {
			t.Error("inconsistent parsing across id types")
		}
	})
}

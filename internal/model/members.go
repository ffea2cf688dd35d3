package model

// Standard log member names.
const (
	MemberTimestamp = "Timestamp"
	MemberLogger    = "Logger"
	MemberLevel     = "Level"
	MemberThread    = "Thread"
	MemberClass     = "Class"
	MemberMethod    = "Method"
	MemberFile      = "File"
	MemberLine      = "Line"
	MemberNDC       = "NDC"
	MemberMessage   = "Message"

	// MemberRecPos holds the input line of a record's first unit.
	MemberRecPos = "RecPos"
)

var standardMembers = []Member{
	{Name: MemberTimestamp, Type: MemberText},
	{Name: MemberLogger, Type: MemberEnum},
	{Name: MemberLevel, Type: MemberEnum},
	{Name: MemberThread, Type: MemberEnum},
	{Name: MemberClass, Type: MemberEnum},
	{Name: MemberMethod, Type: MemberEnum},
	{Name: MemberFile, Type: MemberEnum},
	{Name: MemberLine, Type: MemberInteger},
	{Name: MemberNDC, Type: MemberEnum},
	{Name: MemberMessage, Type: MemberText},
}

// StandardMember reports the catalogue entry for name and its canonical
// order. ok is false for names outside the catalogue.
func StandardMember(name string) (m Member, order int, ok bool) {
	for i, sm := range standardMembers {
		if sm.Name == name {
			return sm, i, true
		}
	}
	return Member{}, len(standardMembers), false
}

// StandardMembers returns a copy of the standard log member catalogue.
func StandardMembers() []Member {
	out := make([]Member, len(standardMembers))
	copy(out, standardMembers)
	return out
}

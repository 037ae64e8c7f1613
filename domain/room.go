package domain

// RoomID is the stable, externally visible room identifier.
type RoomID string

// Metadata carries the display attributes of a room. PasscodeHash is empty
// for public rooms; for private rooms it holds an argon2id encoded hash and
// joins must present the matching passcode.
type Metadata struct {
	Name         string
	Description  string
	PasscodeHash string
}

// Merge applies the explicit-creation-wins policy: fields already set on m
// are kept, empty fields are filled from other. An implicit join therefore
// never overwrites metadata written by an explicit room creation.
func (m Metadata) Merge(other Metadata) Metadata {
	if m.Name == "" {
		m.Name = other.Name
	}
	if m.Description == "" {
		m.Description = other.Description
	}
	if m.PasscodeHash == "" {
		m.PasscodeHash = other.PasscodeHash
	}
	return m
}

package service

// IdentitySource supplies the current authenticated participant. Anonymous
// passengers have an identity too; ok is false only when nobody is signed in
// or the credentials have lapsed.
type IdentitySource interface {
	ParticipantID() (id string, ok bool)
}

// StaticIdentity is an identity that never lapses.
type StaticIdentity string

func (s StaticIdentity) ParticipantID() (string, bool) {
	return string(s), s != ""
}

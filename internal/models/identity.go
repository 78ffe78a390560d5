package models

// Identity carries the user and company strings attached to outgoing assistant
// payloads. It comes from the external auth layer and is treated purely as a
// source of identifiers; zero values degrade to the anonymous placeholders.
type Identity struct {
	UserID      string
	Email       string
	CompanyName string
}

// Placeholder identity values used when the auth layer provides nothing.
const (
	AnonymousUserID  = "anonymous"
	AnonymousEmail   = "anonymous@example.com"
	AnonymousCompany = "Non définie"
)

// OrAnonymous returns the identity with every missing field replaced by its
// anonymous placeholder.
func (i Identity) OrAnonymous() Identity {
	if i.UserID == "" {
		i.UserID = AnonymousUserID
	}
	if i.Email == "" {
		i.Email = AnonymousEmail
	}
	if i.CompanyName == "" {
		i.CompanyName = AnonymousCompany
	}
	return i
}

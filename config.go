package accounts

// PasswordPolicy is external configuration for password validation.
// The service enforces length bounds; complexity rules belong to the
// host's payload validation.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy mirrors the registration payload rules
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength: 10,
	MaxLength: 100,
}

func (p PasswordPolicy) withDefaults() PasswordPolicy {
	if p.MinLength <= 0 {
		p.MinLength = DefaultPasswordPolicy.MinLength
	}
	if p.MaxLength <= 0 {
		p.MaxLength = DefaultPasswordPolicy.MaxLength
	}
	return p
}

// Config holds codec and policy options for hosts that prefer a
// single configuration object.
type Config interface {
	GetCodecSalt() string
	GetCodecMinLength() int
	GetPasswordMinLength() int
	GetPasswordMaxLength() int
	GetContextKey() string
}

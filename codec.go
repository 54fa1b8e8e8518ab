package accounts

import (
	"encoding/hex"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	hashids "github.com/speps/go-hashids/v2"
)

// IDCodec translates internal user ids into opaque external tokens at
// the API boundary. Internal ids never cross the boundary in raw form
// so clients cannot enumerate accounts.
type IDCodec interface {
	Encode(id uuid.UUID) (string, error)
	Decode(token string) (uuid.UUID, error)
}

// HashIDCodec is a keyed, reversible IDCodec backed by hashids.
// Tokens produced with a different salt do not decode.
type HashIDCodec struct {
	h *hashids.HashID
}

var _ IDCodec = (*HashIDCodec)(nil)

// NewHashIDCodec builds a codec keyed with salt. minLength pads short
// tokens; pass 0 to keep the hashids default.
func NewHashIDCodec(salt string, minLength int) (*HashIDCodec, error) {
	if salt == "" {
		return nil, goerrors.New("codec salt cannot be empty", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	data := hashids.NewData()
	data.Salt = salt
	if minLength > 0 {
		data.MinLength = minLength
	}

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize id codec")
	}

	return &HashIDCodec{h: h}, nil
}

// Encode converts an internal id into an external token
func (c *HashIDCodec) Encode(id uuid.UUID) (string, error) {
	if id == uuid.Nil {
		return "", userNotFound(id.String())
	}

	token, err := c.h.EncodeHex(hex.EncodeToString(id[:]))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode identifier")
	}

	return token, nil
}

// Decode converts an external token back into the internal id.
// Malformed or tampered tokens fail with a not-found error, never a
// crash and never a different user's id.
func (c *HashIDCodec) Decode(token string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return uuid.Nil, userNotFound(token)
	}

	raw, err := c.h.DecodeHex(trimmed)
	if err != nil {
		return uuid.Nil, userNotFound(token)
	}

	if len(raw) != 32 {
		return uuid.Nil, userNotFound(token)
	}

	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, userNotFound(token)
	}

	return id, nil
}

// NewDeterministicUserID derives a stable uuid from an email address.
// Used when the caller wants re-registration of the same address to
// mint the same internal id.
func NewDeterministicUserID(email string) (uuid.UUID, error) {
	return hashid.NewUUID(email)
}

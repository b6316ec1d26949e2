package pipeline

import (
	"io"

	"filippo.io/age"

	"github.com/c360/leo/errors"
)

// AlgorithmAgeX25519 tags payloads encrypted with age X25519
// recipients. Stored in object metadata; the wire contract.
const AlgorithmAgeX25519 = "age-x25519"

// AgeCodec encrypts with age to a set of X25519 recipients and decrypts
// with the matching identities. Keys are supplied by the caller; the
// store never manages rotation.
type AgeCodec struct {
	recipients []age.Recipient
	identities []age.Identity
}

// NewAgeCodec builds a codec from an X25519 identity, encrypting to its
// own recipient. This is the common single-key deployment.
func NewAgeCodec(identity *age.X25519Identity) *AgeCodec {
	return &AgeCodec{
		recipients: []age.Recipient{identity.Recipient()},
		identities: []age.Identity{identity},
	}
}

// NewAgeCodecFromString parses an AGE-SECRET-KEY-1... string.
func NewAgeCodecFromString(secretKey string) (*AgeCodec, error) {
	identity, err := age.ParseX25519Identity(secretKey)
	if err != nil {
		return nil, errors.WrapInvalid(err, "pipeline", "NewAgeCodecFromString", "parse identity")
	}
	return NewAgeCodec(identity), nil
}

// NewAgeCodecMultiRecipient encrypts to several recipients; any one of
// the identities can decrypt. Used when backup consumers hold their own
// keys.
func NewAgeCodecMultiRecipient(recipients []age.Recipient, identities []age.Identity) *AgeCodec {
	return &AgeCodec{recipients: recipients, identities: identities}
}

// Algorithm implements Codec.
func (c *AgeCodec) Algorithm() string { return AlgorithmAgeX25519 }

// Encoder implements Codec.
func (c *AgeCodec) Encoder(dst io.Writer) (io.WriteCloser, error) {
	if len(c.recipients) == 0 {
		return nil, errors.WrapFatal(errors.ErrNotConfigured, "pipeline", "Encoder", "age recipients")
	}
	return age.Encrypt(dst, c.recipients...)
}

// Decoder implements Codec.
func (c *AgeCodec) Decoder(src io.Reader) (io.ReadCloser, error) {
	if len(c.identities) == 0 {
		return nil, errors.WrapFatal(errors.ErrNotConfigured, "pipeline", "Decoder", "age identities")
	}
	r, err := age.Decrypt(src, c.identities...)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(r), nil
}

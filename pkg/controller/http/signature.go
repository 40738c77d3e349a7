package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

const signaturePrefix = "sha256="

// VerifySignature checks header, the X-Hub-Signature-256 value, against the HMAC-SHA256 of the raw body
func VerifySignature(body []byte, header, secret string) error {
	if header == "" {
		return goerr.Wrap(model.ErrMissingSignature, "signature header is empty")
	}

	encoded, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return goerr.Wrap(model.ErrInvalidSignature, "signature has no sha256= prefix")
	}
	signature, err := hex.DecodeString(encoded)
	if err != nil {
		return goerr.Wrap(model.ErrInvalidSignature, "signature is not hex encoded")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return goerr.Wrap(model.ErrInvalidSignature, "signature mismatch")
	}

	return nil
}

package qrcodes

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PayloadPrefix starts every copy payload, e.g. "bookcopy:17".
const PayloadPrefix = "bookcopy:"

var ErrInvalidPayload = errors.New("invalid QR code payload")

// Payload is the text encoded in the QR code of a copy.
func Payload(copyID int) string {
	return PayloadPrefix + strconv.Itoa(copyID)
}

// ParsePayload resolves a scanned payload back to the copy id.
func ParsePayload(payload string) (int, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), PayloadPrefix)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidPayload, "%q", payload)
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(ErrInvalidPayload, "%q", payload)
	}
	return id, nil
}

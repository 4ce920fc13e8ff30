package gwselect

import (
	"fmt"
	"strings"
)

// PixKeyType enumerates the recognized PIX key categories (GLOSSARY,
// D.2). PIX_KEY_TYPE rule conditions validate against this set.
type PixKeyType string

const (
	PixKeyQRCode        PixKeyType = "QRCODE"
	PixKeyQRCodeStatic  PixKeyType = "QRCODE_STATIC"
	PixKeyQRCodeDynamic PixKeyType = "QRCODE_DYNAMIC"
	PixKeyEmail         PixKeyType = "EMAIL"
	PixKeyPhone         PixKeyType = "PHONE"
	PixKeyEVP           PixKeyType = "EVP"
	PixKeyCPF           PixKeyType = "CPF"
	PixKeyCNPJ          PixKeyType = "CNPJ"
)

var allowedPixKeyTypes = map[PixKeyType]struct{}{
	PixKeyQRCode:        {},
	PixKeyQRCodeStatic:  {},
	PixKeyQRCodeDynamic: {},
	PixKeyEmail:         {},
	PixKeyPhone:         {},
	PixKeyEVP:           {},
	PixKeyCPF:           {},
	PixKeyCNPJ:          {},
}

// ParsePixKeyType normalizes raw (trimming whitespace, upper-casing)
// and validates it against the recognized pix key categories. It is
// used by D.1's PIX_KEY_TYPE condition-type synthesis in the compiler.
func ParsePixKeyType(raw string) (PixKeyType, error) {
	upper := PixKeyType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := allowedPixKeyTypes[upper]; !ok {
		return "", fmt.Errorf("gwselect: %q is not a recognized pix key type", raw)
	}
	return upper, nil
}

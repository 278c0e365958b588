package storage

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidDataURI 不是 base64 编码的 data URI
var ErrInvalidDataURI = errors.New("invalid data uri")

// ParseDataURI 解析 data:<mime>;base64,<payload> 形式的内联文件
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || contentType == "" {
		return "", nil, ErrInvalidDataURI
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidDataURI
	}
	return strings.ToLower(contentType), data, nil
}

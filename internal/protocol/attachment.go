package protocol

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
)

// EncodeUpload builds the upload envelope {"<kind>": base64(content)}.
func EncodeUpload(kind FileKind, content []byte) ([]byte, error) {
	return json.Marshal(map[FileKind]string{
		kind: base64.StdEncoding.EncodeToString(content),
	})
}

// DecodeUpload reverses EncodeUpload.
func DecodeUpload(data []byte) (map[FileKind][]byte, error) {
	var raw map[FileKind]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[FileKind][]byte, len(raw))
	for kind, b64 := range raw {
		content, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		out[kind] = content
	}
	return out, nil
}

// AttachmentHash is the hex sha256 of the base64 text of content, the key
// the server uses to reference an attachment.
func AttachmentHash(content []byte) string {
	sum := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(content)))
	return hex.EncodeToString(sum[:])
}

package filter

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// PageToken resumes a filtered read after the record with sequence Seq.
type PageToken struct {
	Seq        int64
	Descending bool
}

// Encode serialises the token. A nil token encodes to "".
func (t *PageToken) Encode() string {
	if t == nil {
		return ""
	}
	dir := "asc"
	if t.Descending {
		dir = "desc"
	}
	raw := fmt.Sprintf("%d|%s", t.Seq, dir)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodePageToken parses a token from Encode. An empty string yields nil.
func DecodePageToken(token string) (*PageToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid page token format")
	}
	seq, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, err
	}
	switch parts[1] {
	case "asc":
		return &PageToken{Seq: seq}, nil
	case "desc":
		return &PageToken{Seq: seq, Descending: true}, nil
	default:
		return nil, fmt.Errorf("invalid page token direction %q", parts[1])
	}
}

package ws

import (
	"bytes"
	"fmt"
	"strings"
)

// ControlFrame is the JSON shape of client control messages, e.g.
// {"type":"auth","deviceId":"..."}.
type ControlFrame struct {
	Type string `json:"type"`
}

// AuthRequest is the body of the "auth" control frame.
type AuthRequest struct {
	DeviceID string `json:"deviceId"`
}

// UsersPayload is the presence snapshot pushed to every connection.
type UsersPayload struct {
	Type   string   `json:"type"`
	Online []string `json:"online"`
	All    []string `json:"all"`
}

func NewUsersPayload(online, all []string) UsersPayload {
	if online == nil {
		online = []string{}
	}
	if all == nil {
		all = []string{}
	}
	return UsersPayload{Type: "users", Online: online, All: all}
}

const (
	cmdCreate = "/create"
	cmdJoin   = "/join"

	replyRoomNotFound = "[Room not found]"
	imagesPrivateOnly = "Images only allowed in private rooms"
	imageBadType      = "Only PNG/JPG allowed"
)

var (
	pngMagic  = []byte("\x89PNG")
	jpegMagic = []byte{0xFF, 0xD8}
)

func chatLine(name, text string) string { return name + ": " + text }

func notice(text string) string { return "[" + text + "]" }

func serverNotice(text string) string { return "[Server]: " + text }

func joinedNotice(name string) string { return notice(name + " joined") }

func leftNotice(name string) string { return notice(name + " left") }

func roomCreatedReply(code string) string { return "[Room created] Code: " + code }

// imageRejection returns the reason an image frame may not be relayed, or ""
// when it is acceptable.
func imageRejection(private bool, data []byte, maxBytes int64) string {
	switch {
	case !private:
		return imagesPrivateOnly
	case int64(len(data)) > maxBytes:
		return fmt.Sprintf("Image too large (max %s)", humanSize(maxBytes))
	case !bytes.HasPrefix(data, pngMagic) && !bytes.HasPrefix(data, jpegMagic):
		return imageBadType
	}
	return ""
}

func humanSize(n int64) string {
	const mib = 1024 * 1024
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// isControlFrame reports whether a trimmed text frame is meant as JSON.
func isControlFrame(text string) bool {
	return strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}")
}

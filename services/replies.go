package services

import "strings"

// Reply id prefixes carried by buttons and list rows. The router parses them back.
const (
	ReplyAccept   = "accept:"
	ReplyReject   = "reject:"
	ReplySelect   = "select:"
	ReplyConfirm  = "confirm:"
	ReplyDispute  = "dispute:"
	ReplyOpponent = "opponent:"
)

// splitReply returns the prefix and id of a reply id like "accept:<id>".
func splitReply(replyID string) (prefix, id string, ok bool) {
	i := strings.IndexByte(replyID, ':')
	if i <= 0 || i == len(replyID)-1 {
		return "", "", false
	}
	return replyID[:i+1], replyID[i+1:], true
}

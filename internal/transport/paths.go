package transport

import (
	"net/url"
	"strconv"
)

// FoldersPath is the folder listing endpoint.
func FoldersPath() string {
	return "/"
}

// FolderPath addresses a folder listing with the given page size.
func FolderPath(folder string, pageSize int) string {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	return "/" + url.PathEscape(folder) + "?" + q.Encode()
}

// MessagePath addresses a single message.
func MessagePath(folder, uid string) string {
	return "/" + url.PathEscape(folder) + "/" + url.PathEscape(uid)
}

// UnseePath asks the gateway to clear the seen flag of a message.
func UnseePath(folder, uid string) string {
	return MessagePath(folder, uid) + "?unsee=1"
}

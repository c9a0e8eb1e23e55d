package ui

import "github.com/nhle/mailgate/internal/model"

// Views emit these messages; the root model turns them into engine calls.

// SelectFolderMsg asks to load a folder.
type SelectFolderMsg struct {
	Folder string
}

// SelectMessageMsg asks to open a message of the loaded folder.
type SelectMessageMsg struct {
	UID string
}

// DeleteMessageMsg asks to delete a message of the loaded folder.
type DeleteMessageMsg struct {
	UID string
}

// ToggleUnreadMsg asks to mark a message of the loaded folder unread.
type ToggleUnreadMsg struct {
	UID string
}

// OpenAttachmentMsg asks to download an attachment.
type OpenAttachmentMsg struct {
	Attachment model.Attachment
}

// BackMsg signals the parent to navigate back to the mailbox view.
type BackMsg struct{}

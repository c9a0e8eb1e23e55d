package mailbox

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownFolder is returned when selecting a folder that is not listed.
var ErrUnknownFolder = errors.New("unknown folder")

// FolderList is the ordered set of folder names and the selected one.
// Invariant: selected is either "" or an element of folders.
type FolderList struct {
	mu       sync.RWMutex
	folders  []string
	selected string
}

// NewFolderList returns an empty folder list.
func NewFolderList() *FolderList {
	return &FolderList{}
}

// ReplaceAll swaps in a new folder sequence. The first folder becomes the
// selected one; an empty sequence clears the selection.
func (l *FolderList) ReplaceAll(folders []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.folders = append([]string(nil), folders...)
	l.selected = ""
	if len(l.folders) > 0 {
		l.selected = l.folders[0]
	}
}

// Select marks name as the selected folder.
func (l *FolderList) Select(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.containsLocked(name) {
		return fmt.Errorf("selecting %q: %w", name, ErrUnknownFolder)
	}
	l.selected = name
	return nil
}

// Contains reports whether name is listed.
func (l *FolderList) Contains(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.containsLocked(name)
}

// Selected returns the selected folder, or "" when none.
func (l *FolderList) Selected() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected
}

// Folders returns a copy of the folder sequence.
func (l *FolderList) Folders() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.folders...)
}

func (l *FolderList) containsLocked(name string) bool {
	for _, f := range l.folders {
		if f == name {
			return true
		}
	}
	return false
}

package domain

import "time"

const (
	// MaxTitleLength is the column width of todos.title.
	MaxTitleLength = 255
	// MaxFileNameLength is the column width of todos.file_name.
	MaxFileNameLength = 255
)

// Todo is the persisted todo row. FileURL, FileName and FileKey are either all
// set or all nil.
type Todo struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"size:255;not null;check:chk_todos_title_not_empty,title <> ''"`
	Description string    `gorm:"type:text;not null;default:''"`
	Completed   bool      `gorm:"not null;default:false"`
	FileURL     *string   `gorm:"size:1024"`
	FileName    *string   `gorm:"size:255"`
	FileKey     *string   `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// HasAttachment reports whether the todo references an uploaded file.
func (t *Todo) HasAttachment() bool {
	return t.FileURL != nil || t.FileKey != nil
}

// AttachmentRef returns the value handed to the blob store when the
// attachment is removed. The stored key wins over the public URL.
func (t *Todo) AttachmentRef() string {
	if t.FileKey != nil && *t.FileKey != "" {
		return *t.FileKey
	}
	if t.FileURL != nil {
		return *t.FileURL
	}
	return ""
}

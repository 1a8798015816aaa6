package model

import "time"

// File is one document attached to a contract: the body, an addendum, a signed scan.
type File struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	FileURL    string    `json:"fileUrl"`
	IsPrimary  bool      `json:"isPrimary"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// NewFile returns a file record stamped with the current time.
func NewFile(id, name, fileType string, size int64, url string) File {
	return File{
		ID:         id,
		FileName:   name,
		FileType:   fileType,
		FileSize:   size,
		FileURL:    url,
		UploadedAt: time.Now().UTC(),
	}
}

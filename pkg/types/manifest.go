package types

import "time"

// ModelManifest is the small persisted record proving a model file was
// downloaded and checksum-verified. It is written only after verification
// succeeds and removed when the model is deleted.
type ModelManifest struct {
	ID               string    `json:"id"`
	Version          string    `json:"version"`
	DownloadedAt     time.Time `json:"downloadedAt"`
	FileSize         int64     `json:"fileSize"`
	Checksum         string    `json:"checksum"`
	ChecksumVerified bool      `json:"checksumVerified"`
}

package models

import "time"

// Release is a normalized release record, keyed by the provider release id.
type Release struct {
	ID                 int64      `json:"id"                   db:"id"`
	ReleaseID          int64      `json:"release_id"           db:"release_id"`
	RepositoryFullName string     `json:"repository_full_name" db:"repository_full_name"`
	TagName            string     `json:"tag_name"             db:"tag_name"`
	Name               string     `json:"name"                 db:"name"`
	Author             string     `json:"author"               db:"author"`
	PublishedAt        *time.Time `json:"published_at"         db:"published_at"`
	CreatedAt          time.Time  `json:"created_at"           db:"created_at"`
	Draft              bool       `json:"draft"                db:"draft"`
	Prerelease         bool       `json:"prerelease"           db:"prerelease"`
	Assets             string     `json:"assets"               db:"assets"` // JSON list of ReleaseAsset
	IndexedAt          time.Time  `json:"indexed_at"           db:"indexed_at"`
}

// ReleaseAsset is one downloadable artifact attached to a release.
type ReleaseAsset struct {
	Name          string `json:"name"`
	Size          int    `json:"size"`
	DownloadCount int    `json:"download_count"`
	ContentType   string `json:"content_type,omitempty"`
}

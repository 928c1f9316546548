package models

import "time"

// AssetKind classifies a user-owned media asset.
type AssetKind string

const (
	// AssetKindVideo is user-uploaded video footage.
	AssetKindVideo AssetKind = "video"
	// AssetKindImage is a still image.
	AssetKindImage AssetKind = "image"
	// AssetKindAudio is music, narration, or an effect.
	AssetKindAudio AssetKind = "audio"
	// AssetKindLogo is a brand logo image.
	AssetKindLogo AssetKind = "logo"
)

// Asset is a user-owned media file registered by the authoring service.
// The worker only ever reads these rows; identifiers are assigned upstream.
type Asset struct {
	// ID is the upstream asset identifier referenced from timelines.
	ID string `gorm:"primaryKey;size:64" json:"id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Kind classifies the media type.
	Kind AssetKind `gorm:"not null;size:20" json:"kind"`

	// URL is the canonical public download URL, when the asset is public.
	URL string `gorm:"size:2048" json:"url,omitempty"`

	// ObjectKey is the object-store key for private assets; downloads go
	// through a presigned GET.
	ObjectKey string `gorm:"size:1024" json:"object_key,omitempty"`

	// Filename is the original upload name.
	Filename string `gorm:"size:512" json:"filename,omitempty"`

	// MIME is the declared content type.
	MIME string `gorm:"size:128" json:"mime,omitempty"`
}

// TableName returns the table name for Asset.
func (Asset) TableName() string {
	return "assets"
}

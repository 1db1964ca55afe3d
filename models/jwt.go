package models

// DownloadClaims are carried by the signed token embedded in download links.
type DownloadClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub"` // job id
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	File      string `json:"file"` // artifact filename in the serve dir
}

// StorageTarget is one mirror destination: a backend type plus the access
// information that backend needs.
type StorageTarget struct {
	Type        string            `json:"type"` // "s3", "gcs", "sftp", "minio", "directServe"
	Credentials map[string]string `json:"credentials"`
}

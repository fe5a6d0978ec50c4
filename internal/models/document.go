// internal/models/document.go
package models

import "time"

// DocumentReference is a source artifact that has already been indexed
// by the AI provider. ProviderFileURI is the opaque handle issued after
// indexing; the pipeline only ever passes it back to the provider.
type DocumentReference struct {
	FileName        string    `json:"fileName"`
	DocumentType    string    `json:"documentType"`
	MimeType        string    `json:"mimeType"`
	ProviderFileURI string    `json:"providerFileUri"`
	UploadedAt      time.Time `json:"uploadedAt"`
}

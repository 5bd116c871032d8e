package api

import "encoding/json"

// TokenPair is the response to login and registration calls. The
// backend has been observed to emit both snake_case and camelCase
// field names for it, so unmarshalling accepts either.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (t *TokenPair) UnmarshalJSON(data []byte) error {
	var raw struct {
		AccessTokenSnake  string `json:"access_token"`
		AccessTokenCamel  string `json:"accessToken"`
		RefreshTokenSnake string `json:"refresh_token"`
		RefreshTokenCamel string `json:"refreshToken"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.AccessToken = raw.AccessTokenSnake
	if t.AccessToken == "" {
		t.AccessToken = raw.AccessTokenCamel
	}
	t.RefreshToken = raw.RefreshTokenSnake
	if t.RefreshToken == "" {
		t.RefreshToken = raw.RefreshTokenCamel
	}
	return nil
}

// Identity is the record returned by GET /v1/auth/me.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// RegisterRequest is the payload for POST /v1/auth/registration.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	PhoneNumber     string `json:"phone_number"`
}

// FileRecord represents a stored file.
type FileRecord struct {
	ID          string `json:"id"`
	OwnerID     string `json:"userId"`
	DirectoryID string `json:"directoryId,omitempty"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	MimeType    string `json:"mimeType,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// FilePage is a paged file listing.
type FilePage struct {
	Items  []FileRecord `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// DirectoryRecord represents a folder. ParentID is empty for roots;
// parent links form a tree, cycles are a backend invariant violation.
type DirectoryRecord struct {
	ID       string `json:"id"`
	OwnerID  string `json:"userId"`
	ParentID string `json:"parentId,omitempty"`
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
}

// DirectoryPage is a paged folder listing.
type DirectoryPage struct {
	Items []DirectoryRecord `json:"items"`
}

// UploadResult is the response to a multipart file upload.
type UploadResult struct {
	Files []FileRecord `json:"files"`
}

// DeleteResult acknowledges a file deletion.
type DeleteResult struct {
	ID string `json:"id"`
}

// DirectoryCreated acknowledges a folder creation.
type DirectoryCreated struct {
	ID string `json:"id"`
}

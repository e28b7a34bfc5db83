package transport

import "time"

type CreateProjectRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	PI           string `json:"pi"`
	NonSensitive bool   `json:"non_sensitive"`
}

type CreateProjectResponse struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
}

type ProjectInfo struct {
	ProjectID    string     `json:"Project ID"`
	Title        string     `json:"Title"`
	PI           string     `json:"PI"`
	Status       string     `json:"Status"`
	CreatedBy    string     `json:"Created by"`
	DateCreated  time.Time  `json:"Created"`
	DateUpdated  *time.Time `json:"Last updated,omitempty"`
	Size         int64      `json:"Size"`
	NonSensitive bool       `json:"Non sensitive"`
	Access       bool       `json:"Access"`
}

type ChangeStatusRequest struct {
	NewStatus string `json:"new_status"`
}

type NewFileRequest struct {
	Name          string `json:"name"`
	NameInBucket  string `json:"name_in_bucket"`
	Subpath       string `json:"subpath"`
	Size          int64  `json:"size"`
	SizeProcessed int64  `json:"size_processed"`
	Compressed    bool   `json:"compressed"`
	PublicKey     string `json:"public_key"`
	Salt          string `json:"salt"`
	Checksum      string `json:"checksum"`
}

type FileInfo struct {
	NameInBucket string `json:"name_in_bucket"`
	Subpath      string `json:"subpath"`
	SizeOriginal int64  `json:"size_original"`
	SizeStored   int64  `json:"size_stored"`
	Compressed   bool   `json:"compressed"`
	PublicKey    string `json:"public_key"`
	Salt         string `json:"salt"`
	Checksum     string `json:"checksum"`
	URL          string `json:"url,omitempty"`
}

type ContentsRequest struct {
	Paths []string `json:"requested_items" query:"path"`
	URL   bool     `json:"url"             query:"url"`
	All   bool     `json:"get_all"         query:"get_all"`
}

type ContentsResponse struct {
	Files    map[string]FileInfo            `json:"files"`
	Folders  map[string]map[string]FileInfo `json:"folders"`
	NotFound []string                       `json:"not_found"`
}

type ListFilesResponse struct {
	Files   []string `json:"files_folders"`
	Folders []string `json:"folders"`
}

type RemoveResponse struct {
	NotRemoved []string `json:"not_removed"`
	NotExists  []string `json:"not_exists"`
}

type SecondFactorRequest struct {
	HOTP string `json:"HOTP"`
	TOTP string `json:"TOTP"`
}

type TokenResponse struct {
	Token                string `json:"token"`
	SecondFactorRequired bool   `json:"second_factor_required"`
}

type TOTPSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type TOTPActivateRequest struct {
	Code string `json:"code"`
}

type NewUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	UnitID   *uint  `json:"unit_id"`
	Project  string `json:"project"`
}

type UserActivationRequest struct {
	Username string `json:"username"`
	Action   string `json:"action"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type GrantAccessRequest struct {
	Username string `json:"username"`
}

type NewUnitRequest struct {
	Name        string `json:"name"`
	InternalRef string `json:"internal_ref"`
}

type UsageProject struct {
	ProjectID string  `json:"project_id"`
	GBHours   float64 `json:"gbhours"`
}

type UsageResponse struct {
	Projects     []UsageProject `json:"project_usage"`
	TotalGBHours float64        `json:"total_usage_gbhours"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

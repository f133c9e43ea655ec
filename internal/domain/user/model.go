package user

import "github.com/cnics/mireview/internal/platform/auth"

// User maps to the users table. Role flags are independent.
type User struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Login         string `json:"login"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Site          string `json:"site"`
	Admin         bool   `json:"admin_flag"`
	Uploader      bool   `json:"uploader_flag"`
	Reviewer      bool   `json:"reviewer_flag"`
	ThirdReviewer bool   `json:"third_reviewer_flag"`
}

// Capabilities converts the role flags into capability tags.
func (u *User) Capabilities() []auth.Capability {
	caps := make([]auth.Capability, 0, 4)
	if u.Admin {
		caps = append(caps, auth.CapAdmin)
	}
	if u.Uploader {
		caps = append(caps, auth.CapUploader)
	}
	if u.Reviewer {
		caps = append(caps, auth.CapReviewer)
	}
	if u.ThirdReviewer {
		caps = append(caps, auth.CapThirdReviewer)
	}
	return caps
}

func (u *User) Identity() *auth.Identity {
	return &auth.Identity{
		UserID:       u.ID,
		Login:        u.Login,
		Username:     u.Username,
		Site:         u.Site,
		Capabilities: u.Capabilities(),
	}
}

// Reviewer is one entry of the reviewer picker; DisplayName is
// "username (id)".
type Reviewer struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// CreateRequest is the body of POST /api/users.
type CreateRequest struct {
	Username      string `json:"username" validate:"notblank,max=200"`
	Login         string `json:"login" validate:"notblank,max=200"`
	FirstName     string `json:"first_name" validate:"max=64"`
	LastName      string `json:"last_name" validate:"max=64"`
	Site          string `json:"site" validate:"notblank,max=20"`
	Admin         bool   `json:"admin_flag"`
	Uploader      bool   `json:"uploader_flag"`
	Reviewer      *bool  `json:"reviewer_flag"`
	ThirdReviewer bool   `json:"third_reviewer_flag"`
}

// UpdateRequest carries the fields PUT /api/users/:id may change. Nil
// fields keep their stored value.
type UpdateRequest struct {
	Username      *string `json:"username" validate:"omitempty,notblank,max=200"`
	Login         *string `json:"login" validate:"omitempty,notblank,max=200"`
	FirstName     *string `json:"first_name" validate:"omitempty,max=64"`
	LastName      *string `json:"last_name" validate:"omitempty,max=64"`
	Site          *string `json:"site" validate:"omitempty,notblank,max=20"`
	Admin         *bool   `json:"admin_flag"`
	Uploader      *bool   `json:"uploader_flag"`
	Reviewer      *bool   `json:"reviewer_flag"`
	ThirdReviewer *bool   `json:"third_reviewer_flag"`
}

func (r *UpdateRequest) apply(u *User) {
	if r.Username != nil {
		u.Username = *r.Username
	}
	if r.Login != nil {
		u.Login = *r.Login
	}
	if r.FirstName != nil {
		u.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		u.LastName = *r.LastName
	}
	if r.Site != nil {
		u.Site = *r.Site
	}
	if r.Admin != nil {
		u.Admin = *r.Admin
	}
	if r.Uploader != nil {
		u.Uploader = *r.Uploader
	}
	if r.Reviewer != nil {
		u.Reviewer = *r.Reviewer
	}
	if r.ThirdReviewer != nil {
		u.ThirdReviewer = *r.ThirdReviewer
	}
}

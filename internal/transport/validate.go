package transport

import (
	"net/mail"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/models"
)

var (
	disallowedTitle = regexp.MustCompile(`[^\p{L}\p{N}_\s()-]`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,50}$`)
	internalRef     = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)
	hexPattern      = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

type ValidProject struct {
	Title        string
	Description  string
	PI           string
	NonSensitive bool
}

func ValidateCreateProject(req CreateProjectRequest) (ValidProject, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return ValidProject{}, errs.Validation("Title is required")
	}
	if disallowedTitle.MatchString(title) {
		return ValidProject{}, errs.Validation("The title contains disallowed characters")
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return ValidProject{}, errs.Validation("A project description is required")
	}
	if containsEmoji(desc) {
		return ValidProject{}, errs.Validation("The description contains emojis")
	}
	pi := strings.TrimSpace(req.PI)
	if pi == "" {
		return ValidProject{}, errs.Validation("A principal investigator is required")
	}
	if !validEmail(pi) {
		return ValidProject{}, errs.Validation("The PI email is invalid")
	}
	return ValidProject{Title: title, Description: desc, PI: pi, NonSensitive: req.NonSensitive}, nil
}

func containsEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F000 && r <= 0x1FAFF,
			r >= 0x2600 && r <= 0x27BF,
			r >= 0x1F900 && r <= 0x1F9FF,
			r == 0xFE0F:
			return true
		case unicode.Is(unicode.So, r) && r > 0x2000:
			return true
		}
	}
	return false
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func ValidateNewFile(req NewFileRequest) (NewFileRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.NameInBucket == "" {
		return req, errs.Validation("File name and name in bucket are required")
	}
	if strings.HasPrefix(req.Name, "/") || path.Clean(req.Name) != req.Name ||
		req.Name == ".." || strings.HasPrefix(req.Name, "../") {
		return req, errs.Validation("Invalid file path: %s", req.Name)
	}
	if req.Subpath == "" {
		req.Subpath = path.Dir(req.Name)
	}
	if req.Size < 0 || req.SizeProcessed < 0 {
		return req, errs.Validation("File sizes cannot be negative")
	}
	for field, v := range map[string]string{"public_key": req.PublicKey, "salt": req.Salt, "checksum": req.Checksum} {
		if v == "" || len(v) > 64 || !hexPattern.MatchString(v) {
			return req, errs.Validation("Invalid %s", field)
		}
	}
	return req, nil
}

// ValidatePaths trims trailing slashes and drops empty entries.
func ValidatePaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	seen := map[string]bool{}
	for _, p := range paths {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errs.Validation("No items were specified")
	}
	return out, nil
}

func ValidateNewUser(req NewUserRequest) (NewUserRequest, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if !usernamePattern.MatchString(req.Username) {
		return req, errs.Validation("Invalid username: 3-50 characters of letters, digits, '.', '_' or '-'")
	}
	if !validEmail(req.Email) {
		return req, errs.Validation("Invalid email address")
	}
	if err := ValidatePassword(req.Password); err != nil {
		return req, err
	}
	switch req.Role {
	case models.RoleResearcher:
		req.UnitID = nil
	case models.RoleUnitAdmin:
		if req.UnitID == nil {
			return req, errs.Validation("Unit administrators must belong to a unit")
		}
	case models.RoleSuperAdmin:
		req.UnitID = nil
	default:
		return req, errs.Validation("Invalid role: %s", req.Role)
	}
	return req, nil
}

func ValidatePassword(pw string) error {
	if len(pw) < 10 || len(pw) > 64 {
		return errs.Validation("The password must be between 10 and 64 characters long")
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return errs.Validation("The password must contain upper case and lower case letters and digits")
	}
	return nil
}

func ValidateNewUnit(req NewUnitRequest) (NewUnitRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return req, errs.Validation("Unit name is required")
	}
	if !internalRef.MatchString(req.InternalRef) {
		return req, errs.Validation("Internal reference must be 1-10 letters or digits")
	}
	return req, nil
}

package core

import (
	"fmt"
	"strings"

	"gopkg.in/go-playground/validator.v9"
)

var validate = validator.New()

// NewProjectRequest adds one project by hand, outside of an export.
type NewProjectRequest struct {
	Name          string   `json:"name" validate:"required,lte=255"`
	Description   string   `json:"description" validate:"required"`
	TryLink       string   `json:"try_link"`
	VideoLink     string   `json:"video_link"`
	ChallengeList []string `json:"challenge_list"`
}

// Draft converts the request into a project draft. Empty links become
// absent values, as in an export.
func (r NewProjectRequest) Draft() ProjectDraft {
	challenges := r.ChallengeList
	if challenges == nil {
		challenges = []string{}
	}
	return ProjectDraft{
		Name:          r.Name,
		Description:   r.Description,
		TryLink:       ToPgTrimmedText(r.TryLink),
		VideoLink:     ToPgTrimmedText(r.VideoLink),
		ChallengeList: challenges,
	}
}

// NewJudgeRequest adds one judge by hand, outside of a roster file.
type NewJudgeRequest struct {
	Name  string `json:"name" validate:"required,lte=255"`
	Email string `json:"email" validate:"required"`
	Role  string `json:"role" validate:"required"`
}

// validateRequest checks presence rules. Contact and link syntax are not
// checked.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}

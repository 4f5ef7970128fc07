package core

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       any
		wantErr   bool
		wantField string
	}{
		{
			name: "valid project",
			req:  NewProjectRequest{Name: "Smart Bin", Description: "Sorts recycling"},
		},
		{
			name:      "project without name",
			req:       NewProjectRequest{Description: "d"},
			wantErr:   true,
			wantField: "Name",
		},
		{
			name:      "project name too long",
			req:       NewProjectRequest{Name: strings.Repeat("x", 256), Description: "d"},
			wantErr:   true,
			wantField: "Name",
		},
		{
			name: "valid judge, email syntax unchecked",
			req:  NewJudgeRequest{Name: "Ada", Email: "not-an-email", Role: "judge"},
		},
		{
			name:      "judge without role",
			req:       NewJudgeRequest{Name: "Ada", Email: "ada@x.com"},
			wantErr:   true,
			wantField: "Role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not name field %s", err, tt.wantField)
			}
		})
	}
}

func TestNewProjectRequest_Draft(t *testing.T) {
	d := NewProjectRequest{Name: "P", Description: "d", VideoLink: "https://v"}.Draft()

	if d.TryLink.Valid {
		t.Errorf("TryLink = %+v, want absent", d.TryLink)
	}
	if !d.VideoLink.Valid || d.VideoLink.String != "https://v" {
		t.Errorf("VideoLink = %+v, want https://v", d.VideoLink)
	}
	if d.ChallengeList == nil || len(d.ChallengeList) != 0 {
		t.Errorf("ChallengeList = %#v, want empty non-nil", d.ChallengeList)
	}
}

// Package ai defines the classifier that rates a resume against a posting.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/utils"
)

// ErrInvalidResponse is returned when the classifier output is not a JSON object
// carrying both rating and justification.
var ErrInvalidResponse = errors.New("invalid classifier response")

// Candidate is the text bundle sent to the classifier for one pair.
type Candidate struct {
	JobID    int64
	ResumeID int64
	Posting  *model.Posting
	Resume   *model.Resume
}

// Text renders the candidate as a single user turn.
func (c Candidate) Text() string {
	var b strings.Builder
	if c.Posting != nil {
		fmt.Fprintf(&b, "Job Title: %s\n\n", utils.Deref(c.Posting.Title))
		if company := utils.Deref(c.Posting.Company); company != "" {
			fmt.Fprintf(&b, "Company: %s\n\n", company)
		}
		if location := utils.Deref(c.Posting.Location); location != "" {
			fmt.Fprintf(&b, "Location: %s\n\n", location)
		}
		fmt.Fprintf(&b, "Job Description: %s\n\n", utils.Deref(c.Posting.Description))
	}
	if c.Resume != nil {
		fmt.Fprintf(&b, "Resume: %s\n", c.Resume.Content)
	}
	return strings.TrimSpace(b.String())
}

// Classification splits the classifier output into the posting enrichment and
// the rating record. Rating carries provenance but no pair identities.
type Classification struct {
	Enrichment model.Enrichment
	Rating     model.Rating
}

type Classifier interface {
	Classify(ctx context.Context, candidate Candidate) (*Classification, error)
}

package github

import "time"

// Repo is the part of a GitHub repository document routing cares about
type Repo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	Fork          bool      `json:"fork"`
	DefaultBranch string    `json:"default_branch"`
	SizeKB        int64     `json:"size"`
	OpenIssues    int       `json:"open_issues_count"`
	PushedAt      time.Time `json:"pushed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RateResource is one bucket of the /rate_limit document
type RateResource struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
	Used      int   `json:"used"`
}

// RateLimits is the /rate_limit document
type RateLimits struct {
	Resources struct {
		Core    RateResource `json:"core"`
		Search  RateResource `json:"search"`
		GraphQL RateResource `json:"graphql"`
	} `json:"resources"`
}

// Sample converts the core bucket to a RateSample
func (r RateLimits) Sample() RateSample {
	s := RateSample{Remaining: r.Resources.Core.Remaining, Limit: r.Resources.Core.Limit}
	if r.Resources.Core.Reset > 0 {
		s.Reset = time.Unix(r.Resources.Core.Reset, 0).UTC()
	}
	return s
}

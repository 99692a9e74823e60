// Package domain
package domain

import "time"

type Category string

const (
	CategoryService Category = "service"
	CategoryISO     Category = "iso"
	CategoryGeneral Category = "general"
	CategorySkip    Category = "skip"
)

type CommentStatus string

const (
	StatusPending       CommentStatus = "pending"
	StatusApproved      CommentStatus = "approved"
	StatusWaitingForBot CommentStatus = "waiting_for_bot"
	StatusPosting       CommentStatus = "posting"
	StatusPosted        CommentStatus = "posted"
	StatusFailed        CommentStatus = "failed"
	StatusRejected      CommentStatus = "rejected"
)

// validNext is the full transition lattice. WAITING_FOR_BOT is the approve
// outcome used while the posting subsystem is not ready; FAILED is recoverable
// only through manual re-approval.
var validNext = map[CommentStatus]map[CommentStatus]bool{
	StatusPending:       {StatusApproved: true, StatusWaitingForBot: true, StatusRejected: true},
	StatusApproved:      {StatusPosting: true, StatusWaitingForBot: true, StatusRejected: true},
	StatusWaitingForBot: {StatusApproved: true, StatusPosting: true, StatusRejected: true},
	StatusPosting:       {StatusPosted: true, StatusFailed: true},
	StatusFailed:        {StatusApproved: true, StatusWaitingForBot: true},
	StatusPosted:        {},
	StatusRejected:      {},
}

func ValidTransition(from, to CommentStatus) bool {
	return validNext[from][to]
}

func (s CommentStatus) Terminal() bool {
	return s == StatusPosted || s == StatusRejected
}

type SessionRole string

const (
	RoleScan    SessionRole = "scan"
	RolePost    SessionRole = "post"
	RoleMessage SessionRole = "message"
)

// CandidatePost is a scraped feed item. URL is normalized and acts as identity.
type CandidatePost struct {
	URL       string
	Text      string
	Author    string
	ImageURLs []string
	Likes     int
	Replies   int
	SeenAt    time.Time
}

type ClassificationResult struct {
	Category   Category
	Score      float64
	Matched    map[Category][]string
	Reasons    []string
	Tags       []string
	ShouldSkip bool
}

type QueuedComment struct {
	ID         string
	PostURL    string
	PostAuthor string
	PostText   string
	Category   Category
	Generated  string
	Text       string
	Status     CommentStatus
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PostingTask is the posting queue's unit of work.
type PostingTask struct {
	CommentID  string
	PostURL    string
	Text       string
	ImagePaths []string
}

type Template struct {
	ID       string
	Category Category
	Body     string
	UseCount int64
}

// Settings is the store-backed settings singleton read by the control plane.
type Settings struct {
	ScanEnabled      bool `json:"scan_enabled"`
	MaxPostsPerDay   int  `json:"max_posts_per_day"`
	MinDelaySeconds  int  `json:"min_delay_seconds"`
	MaxDelaySeconds  int  `json:"max_delay_seconds"`
	AIGeneration     bool `json:"ai_generation"`
	ImageAttachments bool `json:"image_attachments"`
}

type DailyCounts struct {
	Day    string
	Posted int
	Failed int
}

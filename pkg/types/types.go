package types

import (
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities for sorting; critical is highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type Category string

const (
	CategoryEmailSecurity     Category = "email_security"
	CategoryTransportSecurity Category = "transport_security"
	CategoryWebSecurity       Category = "web_security"
	CategoryHygiene           Category = "hygiene"
)

// Categories lists every scoring category in display order.
func Categories() []Category {
	return []Category{
		CategoryEmailSecurity,
		CategoryTransportSecurity,
		CategoryWebSecurity,
		CategoryHygiene,
	}
}

// CategoryLabels maps categories to human-readable report headings.
var CategoryLabels = map[Category]string{
	CategoryEmailSecurity:     "Email Security",
	CategoryTransportSecurity: "Transport Security",
	CategoryWebSecurity:       "Web Security",
	CategoryHygiene:           "Redirect & Hygiene",
}

type FindingStatus string

const (
	FindingStatusOK      FindingStatus = "ok"
	FindingStatusFailed  FindingStatus = "failed"
	FindingStatusSkipped FindingStatus = "skipped"
)

// Finding is a single observation from a passive probe. Findings are
// immutable once emitted; Weight is resolved at construction time from the
// static weight table when not set explicitly.
type Finding struct {
	ID             string        `json:"id"`
	Category       Category      `json:"category"`
	Severity       Severity      `json:"severity"`
	Title          string        `json:"title"`
	Summary        string        `json:"summary"`
	BusinessImpact string        `json:"business_impact"`
	Evidence       string        `json:"evidence"`
	Recommendation []string      `json:"recommendation"`
	References     []string      `json:"references,omitempty"`
	Weight         int           `json:"weight"`
	Status         FindingStatus `json:"status"`
	ErrorHint      string        `json:"error_hint,omitempty"`
}

type ScoreLabel string

const (
	ScoreLabelLowRisk  ScoreLabel = "Low risk"
	ScoreLabelModerate ScoreLabel = "Moderate"
	ScoreLabelElevated ScoreLabel = "Elevated"
	ScoreLabelHighRisk ScoreLabel = "High risk"
)

// ScoreCard holds the overall risk score and the per-category breakdown.
// Overall is NOT an average of the categories; both are derived
// independently from the same weight table.
type ScoreCard struct {
	Overall    int              `json:"overall"`
	Label      ScoreLabel       `json:"label"`
	Categories map[Category]int `json:"categories"`
}

// ScanResult is the immutable outcome of one completed scan. It is persisted
// as an opaque blob and consumed as-is by report rendering and notification.
type ScanResult struct {
	Domain          string    `json:"domain"`
	AnalysisVersion string    `json:"analysisVersion"`
	Findings        []Finding `json:"findings"`
	Score           ScoreCard `json:"score"`
	GeneratedAt     time.Time `json:"generatedAt"`
	TopFindings     []Finding `json:"topFindings"`
}

type ScanStatus string

const (
	ScanStatusQueued  ScanStatus = "queued"
	ScanStatusRunning ScanStatus = "running"
	ScanStatusDone    ScanStatus = "done"
	ScanStatusError   ScanStatus = "error"
)

// Terminal reports whether the status permits no further transitions.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusDone || s == ScanStatusError
}

// Scan is the lifecycle record for one requested assessment. State
// transitions (queued -> running -> done|error) are owned by the lifecycle
// manager; done and error never revert.
type Scan struct {
	ID              string      `json:"id" db:"id"`
	Domain          string      `json:"domain" db:"domain"`
	CacheKey        string      `json:"cache_key" db:"cache_key"`
	AnalysisVersion string      `json:"analysis_version" db:"analysis_version"`
	Status          ScanStatus  `json:"status" db:"status"`
	Result          *ScanResult `json:"result,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty" db:"error_message"`
	EmailOptIn      string      `json:"email_opt_in,omitempty" db:"email_opt_in"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty" db:"finished_at"`
}

// Job is a queued unit of scan work handed to the dispatch collaborator.
type Job struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	Domain    string    `json:"domain"`
	Status    string    `json:"status"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WorkerStatus struct {
	ID           string    `json:"id"`
	Hostname     string    `json:"hostname"`
	Status       string    `json:"status"`
	CurrentScan  string    `json:"current_scan,omitempty"`
	ScansDone    int       `json:"scans_done"`
	LastActivity time.Time `json:"last_activity"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckStatus is the severity of a single preflight check.
type CheckStatus string

const (
	CheckOK      CheckStatus = "ok"
	CheckWarning CheckStatus = "warning"
	CheckError   CheckStatus = "error"
)

// severityRank orders check statuses: error > warning > ok.
func severityRank(s CheckStatus) int {
	switch s {
	case CheckError:
		return 2
	case CheckWarning:
		return 1
	default:
		return 0
	}
}

// MaxStatus returns the more severe of two check statuses.
func MaxStatus(a, b CheckStatus) CheckStatus {
	if severityRank(b) > severityRank(a) {
		return b
	}
	return a
}

// CheckResult is a single named preflight check outcome.
type CheckResult struct {
	Name    string         `json:"name"`
	Status  CheckStatus    `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// PreflightResult is the persisted per-item result shape read verbatim
// by the dashboard.
type PreflightResult struct {
	Overall CheckStatus   `json:"overall"`
	Checks  []CheckResult `json:"checks"`
}

// Overall computes the max severity across a list of checks.
func Overall(checks []CheckResult) CheckStatus {
	overall := CheckOK
	for _, c := range checks {
		overall = MaxStatus(overall, c.Status)
	}
	return overall
}

// ItemStatus is the per-item preflight state. It moves from pending to
// exactly one terminal status and never regresses.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemOK      ItemStatus = "ok"
	ItemWarning ItemStatus = "warning"
	ItemError   ItemStatus = "error"
)

// UploadStatus is the order-level readiness state.
type UploadStatus string

const (
	UploadProcessing      UploadStatus = "processing"
	UploadBlocked         UploadStatus = "blocked"
	UploadNeedsReview     UploadStatus = "needs_review"
	UploadReady           UploadStatus = "ready"
	UploadPendingApproval UploadStatus = "pending_approval"
)

// PreflightSummary is the denormalized order-level snapshot written
// atomically with Upload.Status.
type PreflightSummary struct {
	Overall      CheckStatus `json:"overall"`
	CompletedAt  time.Time   `json:"completedAt"`
	ItemCount    int         `json:"itemCount"`
	AutoApproved bool        `json:"autoApproved"`
}

// Upload is the order-level aggregate owning one or more items.
type Upload struct {
	ID        uuid.UUID         `json:"id"`
	ShopID    uuid.UUID         `json:"shopId"`
	Status    UploadStatus      `json:"status"`
	Summary   *PreflightSummary `json:"preflightSummary,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// UploadItem is one physical uploaded file. StorageKey points at the
// original bytes and is immutable; PreviewKey always equals StorageKey
// since converted rasters are disposable and never substituted.
type UploadItem struct {
	ID              uuid.UUID        `json:"id"`
	UploadID        uuid.UUID        `json:"uploadId"`
	StorageKey      string           `json:"storageKey"`
	PreviewKey      string           `json:"previewKey"`
	ThumbnailKey    *string          `json:"thumbnailKey,omitempty"`
	PreflightStatus ItemStatus       `json:"preflightStatus"`
	Result          *PreflightResult `json:"preflightResult,omitempty"`
	Progress        int              `json:"progress"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Shop is read-only input from the business layer: it selects the
// preflight plan and the storage backend, and carries the auto-approve
// setting that shapes aggregation.
type Shop struct {
	ID              uuid.UUID `json:"id"`
	Plan            string    `json:"plan"`
	StorageProvider string    `json:"storageProvider"`
	AutoApprove     bool      `json:"autoApprove"`
}

// Aggregate derives the order-level status from sibling item statuses.
// It reports changed=false while any sibling is still pending, in which
// case callers must not write anything.
func Aggregate(statuses []ItemStatus, autoApprove bool) (UploadStatus, CheckStatus, bool) {
	if len(statuses) == 0 {
		return "", CheckOK, false
	}

	overall := CheckOK
	for _, s := range statuses {
		switch s {
		case ItemPending:
			return "", CheckOK, false
		case ItemError:
			overall = MaxStatus(overall, CheckError)
		case ItemWarning:
			overall = MaxStatus(overall, CheckWarning)
		}
	}

	switch {
	case overall == CheckError:
		return UploadBlocked, overall, true
	case overall == CheckWarning:
		return UploadNeedsReview, overall, true
	case autoApprove:
		return UploadReady, overall, true
	default:
		return UploadPendingApproval, overall, true
	}
}

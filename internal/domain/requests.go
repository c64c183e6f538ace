package domain

import "time"

// RequestStatus is the lifecycle state of a MediaRequest.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestProcessing RequestStatus = "processing"
	RequestSnoozed    RequestStatus = "snoozed"
	RequestRejected   RequestStatus = "rejected"
	RequestDone       RequestStatus = "done"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestProcessing, RequestSnoozed, RequestRejected, RequestDone:
		return true
	}
	return false
}

// MediaRequest is a user's request for a title to be added to the library.
//
// CompletedAt, MediaLink and RejectionReason are side effects of the status
// transition: "done" sets CompletedAt and optionally MediaLink, "rejected" sets
// CompletedAt and RejectionReason, and every other status clears all three.
type MediaRequest struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Username        string        `json:"username"`
	Title           string        `json:"title"`
	Type            string        `json:"type"`
	Notes           string        `json:"notes,omitempty"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	MediaLink       string        `json:"media_link,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	SnoozedUntil    *time.Time    `json:"snoozed_until,omitempty"`
}

// ApplyStatus moves r into status at time now, maintaining the completion
// fields as described on MediaRequest. SnoozedUntil is cleared unless the new
// status is RequestSnoozed.
func (r *MediaRequest) ApplyStatus(status RequestStatus, mediaLink, rejectionReason string, now time.Time) {
	r.Status = status
	switch status {
	case RequestDone:
		t := now
		r.CompletedAt = &t
		r.MediaLink = mediaLink
		r.RejectionReason = ""
	case RequestRejected:
		t := now
		r.CompletedAt = &t
		r.RejectionReason = rejectionReason
		r.MediaLink = ""
	default:
		r.CompletedAt = nil
		r.MediaLink = ""
		r.RejectionReason = ""
	}
	if status != RequestSnoozed {
		r.SnoozedUntil = nil
	}
}

// DeletionStatus is the lifecycle state of a DeletionRequest.
type DeletionStatus string

const (
	DeletionPending  DeletionStatus = "pending"
	DeletionApproved DeletionStatus = "approved"
	DeletionRejected DeletionStatus = "rejected"
)

// DeletionRequest asks an admin to remove the library item that fulfilled a
// media request. At most one pending request may exist per MediaRequestID;
// callers check HasPendingDeletionRequest before creating one.
type DeletionRequest struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	Username           string         `json:"username"`
	MediaRequestID     string         `json:"media_request_id"`
	ItemID             string         `json:"item_id"`
	Title              string         `json:"title"`
	Reason             string         `json:"reason,omitempty"`
	Status             DeletionStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	ResolvedByUsername string         `json:"resolved_by_username,omitempty"`
	RejectionReason    string         `json:"rejection_reason,omitempty"`
}

// ScheduledDeletion marks a library item for removal at DeleteAt. There is at
// most one active entry per ItemID; rescheduling overwrites it in place.
type ScheduledDeletion struct {
	ID                string     `json:"id"`
	ItemID            string     `json:"item_id"`
	Title             string     `json:"title,omitempty"`
	DeleteAt          time.Time  `json:"delete_at"`
	ScheduledByUserID string     `json:"scheduled_by_user_id"`
	CreatedAt         time.Time  `json:"created_at"`
	IsCancelled       bool       `json:"is_cancelled"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
}

// IsDue reports whether the deletion should run at now.
func (d ScheduledDeletion) IsDue(now time.Time) bool {
	return !d.IsCancelled && !d.DeleteAt.After(now)
}

// UserBanType names the request privilege a UserBan revokes.
type UserBanType string

const (
	UserBanMediaRequest    UserBanType = "media_request"
	UserBanDeletionRequest UserBanType = "deletion_request"
)

// Valid reports whether t is a known request ban type.
func (t UserBanType) Valid() bool {
	return t == UserBanMediaRequest || t == UserBanDeletionRequest
}

// UserBan revokes a request privilege. It is lifted logically, not deleted;
// a nil ExpiresAt means the ban holds until lifted.
type UserBan struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	BanType   UserBanType `json:"ban_type"`
	Reason    string      `json:"reason,omitempty"`
	BannedBy  string      `json:"banned_by"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	IsLifted  bool        `json:"is_lifted"`
	LiftedAt  *time.Time  `json:"lifted_at,omitempty"`
}

// IsActiveAt reports whether the ban is in force at now.
func (b UserBan) IsActiveAt(now time.Time) bool {
	if b.IsLifted {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// IsExpiredAt reports whether a timed ban has run out at now.
func (b UserBan) IsExpiredAt(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

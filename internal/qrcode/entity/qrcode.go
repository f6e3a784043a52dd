package entity

import "time"

// Status is the claim state of a code. Claimed is terminal.
type Status string

const (
	StatusUnclaimed Status = "unclaimed"
	StatusClaimed   Status = "claimed"
)

// QRCode represents a row in the `qr_codes` table.
type QRCode struct {
	ID        int64      `db:"id"`
	Value     string     `db:"value"`
	Status    Status     `db:"status"`
	ClaimedBy *int64     `db:"claimed_by"`
	Purpose   *string    `db:"purpose"`
	ClaimedAt *time.Time `db:"claimed_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Consistent reports whether the claim fields agree with Status.
func (q *QRCode) Consistent() bool {
	switch q.Status {
	case StatusUnclaimed:
		return q.ClaimedBy == nil && q.Purpose == nil && q.ClaimedAt == nil
	case StatusClaimed:
		return q.ClaimedBy != nil && q.Purpose != nil && *q.Purpose != "" && q.ClaimedAt != nil
	default:
		return false
	}
}

// Owner is the display summary of the claiming account. Email is only shown
// to admins.
type Owner struct {
	ID    int64  `json:"id,string"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// View is the JSON projection of a code. Owner is null when unclaimed or when
// the claiming account no longer exists. LegacyID, IsClaimed, User and
// Timestamp mirror ID, Status, Owner and CreatedAt under the names the web
// client reads.
type View struct {
	ID        int64      `json:"id,string"`
	LegacyID  int64      `json:"_id,string"`
	Value     string     `json:"value"`
	Status    Status     `json:"status"`
	IsClaimed bool       `json:"isClaimed"`
	ClaimedBy *int64     `json:"claimedBy,string"`
	Purpose   *string    `json:"purpose"`
	ClaimedAt *time.Time `json:"claimedAt"`
	CreatedAt time.Time  `json:"createdAt"`
	Timestamp time.Time  `json:"timestamp"`
	Owner     *Owner     `json:"owner"`
	User      *Owner     `json:"user"`
}

func (q *QRCode) View(owner *Owner) View {
	return View{
		ID:        q.ID,
		LegacyID:  q.ID,
		Value:     q.Value,
		Status:    q.Status,
		IsClaimed: q.Status == StatusClaimed,
		ClaimedBy: q.ClaimedBy,
		Purpose:   q.Purpose,
		ClaimedAt: q.ClaimedAt,
		CreatedAt: q.CreatedAt,
		Timestamp: q.CreatedAt,
		Owner:     owner,
		User:      owner,
	}
}

// WithoutOwnerEmail returns v with the owner's email removed.
func (v View) WithoutOwnerEmail() View {
	if v.Owner == nil {
		return v
	}
	o := *v.Owner
	o.Email = ""
	v.Owner, v.User = &o, &o
	return v
}

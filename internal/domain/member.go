/**
 * @description
 * This file defines the membership domain models: the membership tiers and
 * the member record provisioned after a confirmed membership payment.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MembershipType is the tier a member registered under.
type MembershipType string

const (
	MembershipNonVoting MembershipType = "non-voting"
	MembershipVoting    MembershipType = "voting"
)

// Valid reports whether the membership type is a known tier.
func (m MembershipType) Valid() bool {
	return m == MembershipNonVoting || m == MembershipVoting
}

// MemberStatus is the lifecycle state of a member record.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
)

// Member is the record provisioned once a membership (or an opted-in
// contribution) payment is confirmed. Owned by the auth subsystem after
// creation; this service only requests it.
type Member struct {
	ID               uuid.UUID      `json:"id"`
	UserID           string         `json:"user_id"`
	MemberNumber     *string        `json:"member_number,omitempty"`
	MembershipType   MembershipType `json:"membership_type"`
	RegistrationDate time.Time      `json:"registration_date"`
	VotingRightsDate *time.Time     `json:"voting_rights_date,omitempty"`
	Status           MemberStatus   `json:"status"`
	UserInfo         UserInfo       `json:"user_info"`
}

package models

import (
	"errors"
	"strings"
	"time"
)

// RequestStatus represents the lifecycle state of a song request.
type RequestStatus string

const (
	// RequestStatusPending is the initial state, awaiting review.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusApproved means the request holds a playback queue position.
	RequestStatusApproved RequestStatus = "approved"
	// RequestStatusRejected is terminal.
	RequestStatusRejected RequestStatus = "rejected"
	// RequestStatusPlayed is terminal.
	RequestStatusPlayed RequestStatus = "played"
	// RequestStatusSkipped is terminal.
	RequestStatusSkipped RequestStatus = "skipped"
)

// RequestAction represents an action that can be performed on a song request.
type RequestAction string

const (
	RequestActionApprove RequestAction = "approve"
	RequestActionReject  RequestAction = "reject"
	RequestActionPlay    RequestAction = "play"
	RequestActionSkip    RequestAction = "skip"
	RequestActionLike    RequestAction = "like"
	RequestActionEdit    RequestAction = "edit"
)

// TimeBombExpiredReason is recorded when the sweep rejects an expired TimeBomb request.
const TimeBombExpiredReason = "timebomb expired"

// requestTransitions lists the statuses reachable from each non-terminal status.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved: {RequestStatusPlayed, RequestStatusSkipped, RequestStatusRejected},
}

// IsValid returns true if the status is a known request status.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected,
		RequestStatusPlayed, RequestStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for rejected, played and skipped requests.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusPlayed, RequestStatusSkipped:
		return true
	default:
		return false
	}
}

// IsOutstanding returns true for requests still competing for playback.
func (s RequestStatus) IsOutstanding() bool {
	return s == RequestStatusPending || s == RequestStatusApproved
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, candidate := range requestTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AvailableActions returns the actions available for a request in this status.
func (s RequestStatus) AvailableActions() []RequestAction {
	switch s {
	case RequestStatusPending:
		return []RequestAction{RequestActionApprove, RequestActionReject, RequestActionLike, RequestActionEdit}
	case RequestStatusApproved:
		return []RequestAction{RequestActionPlay, RequestActionSkip, RequestActionReject, RequestActionLike}
	default:
		return []RequestAction{}
	}
}

// HasAction returns true if the given action is available for this status.
func (s RequestStatus) HasAction(action RequestAction) bool {
	for _, a := range s.AvailableActions() {
		if a == action {
			return true
		}
	}
	return false
}

// String returns the string representation of the status.
func (s RequestStatus) String() string {
	return string(s)
}

// ValidRequestStatuses returns all valid request statuses.
func ValidRequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusPending,
		RequestStatusApproved,
		RequestStatusRejected,
		RequestStatusPlayed,
		RequestStatusSkipped,
	}
}

// Like records one user's like of a request.
type Like struct {
	UserID  string    `json:"user_id"`
	LikedAt time.Time `json:"liked_at"`
}

// Song holds the song metadata of a request.
type Song struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
	// Duration is the track length in seconds.
	Duration    int               `json:"duration,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// SongUpdate carries the fields a requester may edit. Nil fields are left unchanged.
type SongUpdate struct {
	Title    *string `json:"title,omitempty"`
	Artist   *string `json:"artist,omitempty"`
	Album    *string `json:"album,omitempty"`
	Duration *int    `json:"duration,omitempty"`
	Message  *string `json:"message,omitempty"`
}

// Validation and transition errors for song requests.
var (
	ErrSongTitleRequired  = errors.New("song title is required")
	ErrSongArtistRequired = errors.New("song artist is required")
	ErrSongFieldTooLong   = errors.New("song fields must be 200 characters or less")
	ErrSongMessageTooLong = errors.New("message must be 500 characters or less")
	ErrSongDuration       = errors.New("song duration must not be negative")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotEditable        = errors.New("only pending requests can be edited")
	ErrNotLikeable        = errors.New("only pending or approved requests can be liked")
)

// Validate checks the song metadata.
func (s *Song) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrSongTitleRequired
	}
	if strings.TrimSpace(s.Artist) == "" {
		return ErrSongArtistRequired
	}
	if len(s.Title) > 200 || len(s.Artist) > 200 || len(s.Album) > 200 {
		return ErrSongFieldTooLong
	}
	if len(s.Message) > 500 {
		return ErrSongMessageTooLong
	}
	if s.Duration < 0 {
		return ErrSongDuration
	}
	return nil
}

// SameSong reports whether two songs are duplicates: any shared external ID,
// or equal title and artist ignoring case and surrounding space.
func (s *Song) SameSong(other *Song) bool {
	for provider, id := range s.ExternalIDs {
		if id != "" && other.ExternalIDs[provider] == id {
			return true
		}
	}
	return foldEqual(s.Title, other.Title) && foldEqual(s.Artist, other.Artist)
}

func foldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// SongRequest is a participant's nomination of a song for an event.
type SongRequest struct {
	ID          string        `json:"id"`
	EventID     string        `json:"event_id"`
	RequestedBy string        `json:"requested_by"`
	Song        Song          `json:"song"`
	Status      RequestStatus `json:"status"`
	Priority    int           `json:"priority"`
	// QueuePosition is zero until the request is approved.
	QueuePosition     int        `json:"queue_position,omitempty"`
	Likes             []Like     `json:"likes"`
	LikeCount         int        `json:"like_count"`
	IsTimeBomb        bool       `json:"is_time_bomb"`
	TimeBombExpiresAt *time.Time `json:"time_bomb_expires_at,omitempty"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	RejectedBy        string     `json:"rejected_by,omitempty"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	PlayedBy          string     `json:"played_by,omitempty"`
	PlayedAt          *time.Time `json:"played_at,omitempty"`
	PlayDuration      int        `json:"play_duration,omitempty"`
	SkippedBy         string     `json:"skipped_by,omitempty"`
	SkippedAt         *time.Time `json:"skipped_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewSongRequest builds a pending request. When timeBomb is set the expiry is
// fixed here from the event's duration and never changes afterwards.
func NewSongRequest(event *Event, requestedBy string, song Song, timeBomb bool, now time.Time) *SongRequest {
	r := &SongRequest{
		EventID:     event.ID,
		RequestedBy: requestedBy,
		Song:        song,
		Status:      RequestStatusPending,
		Likes:       []Like{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if timeBomb && event.TimeBombEnabled {
		expires := event.TimeBombDeadline(now)
		r.IsTimeBomb = true
		r.TimeBombExpiresAt = &expires
	}
	return r
}

func (r *SongRequest) transition(next RequestStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Approve moves a pending request into the playback queue at position.
func (r *SongRequest) Approve(by string, position int, now time.Time) error {
	if err := r.transition(RequestStatusApproved, now); err != nil {
		return err
	}
	r.QueuePosition = position
	r.ApprovedBy = by
	r.ApprovedAt = &now
	return nil
}

// Reject ends a pending or approved request. The queue position, if any, is kept.
func (r *SongRequest) Reject(by, reason string, now time.Time) error {
	if err := r.transition(RequestStatusRejected, now); err != nil {
		return err
	}
	r.RejectedBy = by
	r.RejectedAt = &now
	r.RejectionReason = reason
	return nil
}

// MarkPlayed records that an approved request was played for duration seconds.
func (r *SongRequest) MarkPlayed(by string, duration int, now time.Time) error {
	if err := r.transition(RequestStatusPlayed, now); err != nil {
		return err
	}
	r.PlayedBy = by
	r.PlayedAt = &now
	r.PlayDuration = duration
	return nil
}

// Skip ends an approved request without playing it.
func (r *SongRequest) Skip(by string, now time.Time) error {
	if err := r.transition(RequestStatusSkipped, now); err != nil {
		return err
	}
	r.SkippedBy = by
	r.SkippedAt = &now
	return nil
}

// ToggleLike adds userID's like, or removes it if already present, and
// recomputes LikeCount. It returns true when the request is now liked by userID.
func (r *SongRequest) ToggleLike(userID string, now time.Time) (bool, error) {
	if !r.Status.IsOutstanding() {
		return false, ErrNotLikeable
	}
	for i, l := range r.Likes {
		if l.UserID == userID {
			r.Likes = append(r.Likes[:i], r.Likes[i+1:]...)
			r.LikeCount = len(r.Likes)
			r.UpdatedAt = now
			return false, nil
		}
	}
	r.Likes = append(r.Likes, Like{UserID: userID, LikedAt: now})
	r.LikeCount = len(r.Likes)
	r.UpdatedAt = now
	return true, nil
}

// HasLiked reports whether userID currently likes the request.
func (r *SongRequest) HasLiked(userID string) bool {
	for _, l := range r.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

// ApplyUpdate edits song metadata. Only pending requests may be edited.
func (r *SongRequest) ApplyUpdate(u SongUpdate, now time.Time) error {
	if r.Status != RequestStatusPending {
		return ErrNotEditable
	}
	song := r.Song
	if u.Title != nil {
		song.Title = *u.Title
	}
	if u.Artist != nil {
		song.Artist = *u.Artist
	}
	if u.Album != nil {
		song.Album = *u.Album
	}
	if u.Duration != nil {
		song.Duration = *u.Duration
	}
	if u.Message != nil {
		song.Message = *u.Message
	}
	if err := song.Validate(); err != nil {
		return err
	}
	r.Song = song
	r.UpdatedAt = now
	return nil
}

// IsTimeBombActive reports whether the request is an outstanding TimeBomb that has not yet expired.
func (r *SongRequest) IsTimeBombActive(now time.Time) bool {
	return r.IsTimeBomb && r.TimeBombExpiresAt != nil &&
		r.Status.IsOutstanding() && r.TimeBombExpiresAt.After(now)
}

// IsTimeBombExpired reports whether the request is a pending TimeBomb past its deadline.
func (r *SongRequest) IsTimeBombExpired(now time.Time) bool {
	return r.IsTimeBomb && r.TimeBombExpiresAt != nil &&
		r.Status == RequestStatusPending && !r.TimeBombExpiresAt.After(now)
}

// Clone returns a deep copy of the request.
func (r *SongRequest) Clone() *SongRequest {
	c := *r
	c.Likes = append([]Like{}, r.Likes...)
	if r.Song.ExternalIDs != nil {
		c.Song.ExternalIDs = make(map[string]string, len(r.Song.ExternalIDs))
		for k, v := range r.Song.ExternalIDs {
			c.Song.ExternalIDs[k] = v
		}
	}
	return &c
}

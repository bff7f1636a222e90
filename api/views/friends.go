package views

import (
	"context"
	"sereno/models"
	"sereno/services"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FriendStore - the part of services.FriendStore the friends view drives
type FriendStore interface {
	SendFriendRequest(ctx context.Context, sess services.Session, recipientID string) (*models.FriendRequest, error)
	CancelFriendRequest(ctx context.Context, sess services.Session, requestID string) error
	AcceptFriendRequest(ctx context.Context, sess services.Session, requestID string) error
	RejectFriendRequest(ctx context.Context, sess services.Session, requestID string) error
	RemoveFriend(ctx context.Context, sess services.Session, friendID string) error
	GetPendingFriendRequests(ctx context.Context, userID string) ([]models.FriendRequest, error)
	GetSentFriendRequests(ctx context.Context, userID string) ([]models.FriendRequest, error)
	GetFriends(ctx context.Context, userID string) ([]services.FriendProfile, error)
	SearchUsers(ctx context.Context, term, excludeUserID string) ([]models.UserProfile, error)
}

type Relation string

const (
	RelationNone            Relation = "none"
	RelationSelf            Relation = "self"
	RelationFriend          Relation = "friend"
	RelationRequestSent     Relation = "request_sent"
	RelationRequestReceived Relation = "request_received"
)

const refreshFailedMessage = "Your lists could not be refreshed, pull to reload."

// RefreshError - the action was stored but the lists shown are out of date
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return "action saved, refresh failed: " + e.Err.Error()
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// FriendsState - everything the friends page renders
type FriendsState struct {
	Friends  []services.FriendProfile `json:"friends"`
	Pending  []models.FriendRequest   `json:"pending"`
	Sent     []models.FriendRequest   `json:"sent"`
	LoadedAt time.Time                `json:"loaded_at"`
}

// SearchResult - user found by search with its relation to the viewer
type SearchResult struct {
	models.UserProfile
	Relation  Relation `json:"relation"`
	RequestID string   `json:"request_id,omitempty"`
}

// FriendsView derives the friends page state from the store.
// Mutations never touch the state directly: they write, then reload.
// A load that finishes after Close or after a newer load leaves the state alone.
type FriendsView struct {
	sess    services.Session
	store   FriendStore
	toaster Toaster

	mu         sync.Mutex
	state      FriendsState
	loaded     bool
	mounted    bool
	generation uint64
	lastToast  *Toast
}

func NewFriendsView(sess services.Session, store FriendStore, toaster Toaster) *FriendsView {
	return &FriendsView{sess: sess, store: store, toaster: toaster, mounted: true}
}

// Load fetches pending, sent and friends concurrently and applies them together
func (v *FriendsView) Load(ctx context.Context) error {
	if err := v.load(ctx); err != nil {
		v.fail(ctx, "Load", err)
		return err
	}
	return nil
}

func (v *FriendsView) load(ctx context.Context) error {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return nil
	}
	v.generation++
	gen := v.generation
	v.mu.Unlock()

	var next FriendsState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pending, err := v.store.GetPendingFriendRequests(gctx, v.sess.UserID)
		next.Pending = pending
		return err
	})
	g.Go(func() error {
		sent, err := v.store.GetSentFriendRequests(gctx, v.sess.UserID)
		next.Sent = sent
		return err
	})
	g.Go(func() error {
		friends, err := v.store.GetFriends(gctx, v.sess.UserID)
		next.Friends = friends
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	next.LoadedAt = time.Now().UTC()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted || gen != v.generation {
		logrus.WithFields(logrus.Fields{"function": "Load", "user_id": v.sess.UserID}).Debug("Dropping stale friends load")
		return nil
	}
	v.state = next
	v.loaded = true
	return nil
}

// Close unmounts the view; in-flight loads are discarded
func (v *FriendsView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mounted = false
	v.generation++
}

// State returns a copy of the last applied state
func (v *FriendsView) State() FriendsState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return FriendsState{
		Friends:  append([]services.FriendProfile(nil), v.state.Friends...),
		Pending:  append([]models.FriendRequest(nil), v.state.Pending...),
		Sent:     append([]models.FriendRequest(nil), v.state.Sent...),
		LoadedAt: v.state.LoadedAt,
	}
}

// LastToast returns the most recent toast shown by this view
func (v *FriendsView) LastToast() *Toast {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastToast == nil {
		return nil
	}
	t := *v.lastToast
	return &t
}

func (v *FriendsView) SendRequest(ctx context.Context, recipientID string) error {
	return v.act(ctx, "SendRequest", NewToast(ToastSuccess, "Friend request sent!"), func() error {
		_, err := v.store.SendFriendRequest(ctx, v.sess, recipientID)
		return err
	})
}

func (v *FriendsView) CancelRequest(ctx context.Context, requestID string) error {
	return v.act(ctx, "CancelRequest", NewToast(ToastInfo, "Friend request cancelled."), func() error {
		return v.store.CancelFriendRequest(ctx, v.sess, requestID)
	})
}

func (v *FriendsView) AcceptRequest(ctx context.Context, requestID string) error {
	return v.act(ctx, "AcceptRequest", NewToast(ToastSuccess, "Friend request accepted!"), func() error {
		return v.store.AcceptFriendRequest(ctx, v.sess, requestID)
	})
}

func (v *FriendsView) RejectRequest(ctx context.Context, requestID string) error {
	return v.act(ctx, "RejectRequest", NewToast(ToastInfo, "Friend request rejected."), func() error {
		return v.store.RejectFriendRequest(ctx, v.sess, requestID)
	})
}

func (v *FriendsView) RemoveFriend(ctx context.Context, friendID string) error {
	return v.act(ctx, "RemoveFriend", NewToast(ToastInfo, "Friend removed."), func() error {
		return v.store.RemoveFriend(ctx, v.sess, friendID)
	})
}

// act runs a mutation, reloads from the store and then reports success.
// A refused mutation reloads quietly since the lists it acted on may be stale.
// A stored mutation whose reload fails returns a *RefreshError.
func (v *FriendsView) act(ctx context.Context, function string, success Toast, mutate func() error) error {
	if err := mutate(); err != nil {
		v.fail(ctx, function, err)
		if loadErr := v.load(ctx); loadErr != nil {
			logrus.WithFields(logrus.Fields{"function": function, "error": loadErr.Error()}).Debug("Reload after failed action failed")
		}
		return err
	}
	if err := v.load(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"user_id":  v.sess.UserID,
			"kind":     services.KindOf(err),
			"error":    err.Error(),
		}).Warn("Action saved but reload failed")
		v.show(ctx, NewToast(ToastInfo, success.Message+" "+refreshFailedMessage))
		return &RefreshError{Err: err}
	}
	v.show(ctx, success)
	return nil
}

// Search finds users and annotates them from the loaded state
func (v *FriendsView) Search(ctx context.Context, term string) ([]SearchResult, error) {
	v.mu.Lock()
	loaded := v.loaded
	v.mu.Unlock()
	if !loaded {
		if err := v.Load(ctx); err != nil {
			return nil, err
		}
	}

	users, err := v.store.SearchUsers(ctx, term, v.sess.UserID)
	if err != nil {
		v.fail(ctx, "Search", err)
		return nil, err
	}
	results := make([]SearchResult, 0, len(users))
	for _, u := range users {
		relation, requestID := v.RelationTo(u.ID)
		results = append(results, SearchResult{UserProfile: u, Relation: relation, RequestID: requestID})
	}
	return results, nil
}

// RelationTo classifies userID against the loaded state
func (v *FriendsView) RelationTo(userID string) (Relation, string) {
	if userID == v.sess.UserID {
		return RelationSelf, ""
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, f := range v.state.Friends {
		if f.ID == userID {
			return RelationFriend, ""
		}
	}
	for _, r := range v.state.Sent {
		if r.RecipientID == userID {
			return RelationRequestSent, r.ID
		}
	}
	for _, r := range v.state.Pending {
		if r.SenderID == userID {
			return RelationRequestReceived, r.ID
		}
	}
	return RelationNone, ""
}

func (v *FriendsView) fail(ctx context.Context, function string, err error) {
	entry := logrus.WithFields(logrus.Fields{
		"function": function,
		"user_id":  v.sess.UserID,
		"kind":     services.KindOf(err),
		"error":    err.Error(),
	})
	if services.KindOf(err) == services.KindRemote {
		entry.Error("Friends view action failed")
	} else {
		entry.Info("Friends view action refused")
	}
	v.show(ctx, NewToast(ToastError, services.UserMessage(err)))
}

func (v *FriendsView) show(ctx context.Context, toast Toast) {
	v.mu.Lock()
	v.lastToast = &toast
	v.mu.Unlock()
	if v.toaster != nil {
		v.toaster.Show(ctx, v.sess.UserID, toast)
	}
}

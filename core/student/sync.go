package student

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/institutohope/platform/core"
)

var (
	// errors
	ErrNotConfigured         = errors.New("remote backend not configured")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrNotFound              = errors.New("student not found")
	ErrEmailExists           = errors.New("a student with this email already exists")
	ErrRegistrationForbidden = errors.New("only the designated command email may register a mentor account")
)

// Local storage keys.
const (
	KeyRoster  = "roster"
	KeyAppLogo = "app-logo"
)

// Mode selects the authoritative persistence backend. Decided once at
// startup from configuration and never re-evaluated.
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// State of the identity session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticatedLocal
	StateAuthenticatedRemoteUnsubscribed
	StateAuthenticatedRemoteSubscribed
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticatedLocal:
		return "authenticated-local"
	case StateAuthenticatedRemoteUnsubscribed:
		return "authenticated-remote"
	case StateAuthenticatedRemoteSubscribed:
		return "authenticated-remote-subscribed"
	default:
		return "unauthenticated"
	}
}

// Handle is the opaque identity returned by remote authentication.
type Handle struct {
	ID    string
	Email string
}

type (
	// RemoteStore authenticates identities and persists student documents
	// in a networked collection with live-update capability.
	RemoteStore interface {
		Authenticate(ctx context.Context, email, password string) (Handle, error)
		Register(ctx context.Context, email, password string) (Handle, error)
		// EndSession is idempotent; a no-op when already signed out.
		EndSession(ctx context.Context) error
		// Fetch returns the authoritative document for id, or ErrNotFound.
		Fetch(ctx context.Context, id string) (Student, error)
		// Subscribe opens a live subscription on the student collection. fn
		// receives the entire current snapshot (not deltas) on every change,
		// starting with the current state. No invocations may happen after
		// the returned cancel func returns; cancel is safe to call twice.
		Subscribe(ctx context.Context, fn func([]Student)) (cancel func(), err error)
		// Upsert merge-writes doc fields into the identified document;
		// absent fields are left untouched.
		Upsert(ctx context.Context, id string, doc map[string]interface{}) error
	}

	// Controller is the sync state machine: it owns the identity session
	// and the roster, and decides which backend every mutation lands on.
	// All roster writes go through one Controller instance.
	Controller struct {
		mode    Mode
		local   core.KVStore
		remote  RemoteStore
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
		newID   func() string

		mu        sync.RWMutex
		state     State
		session   *Student
		roster    []Student
		cancelSub func()
		subActive bool
		subGen    uint64

		writes sync.WaitGroup // outstanding fire-and-forget remote writes
	}
)

func NewController(
	mode Mode,
	local core.KVStore,
	remote RemoteStore,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
	newID func() string,
) *Controller {
	c := &Controller{
		mode:    mode,
		local:   local,
		remote:  remote,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
		newID:   newID,
		state:   StateUnauthenticated,
	}
	if mode == ModeLocal {
		c.hydrate()
	}
	return c
}

// hydrate loads the roster from local storage, once, at startup.
func (c *Controller) hydrate() {
	raw, ok := c.local.Get(KeyRoster)
	if !ok {
		return
	}
	var roster []Student
	if err := json.Unmarshal([]byte(raw), &roster); err != nil {
		c.logger.Error(fmt.Sprintf("parsing stored roster: %v", err), err)
		return
	}
	c.roster = roster
}

func (c *Controller) Mode() Mode { return c.mode }

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns the current identity session, if any.
func (c *Controller) Session() (Student, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return Student{}, false
	}
	return *c.session, true
}

// Roster returns a copy of the known student records. Read-only for
// callers: only the controller mutates the roster.
func (c *Controller) Roster() []Student {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Student, len(c.roster))
	copy(out, c.roster)
	return out
}

// Login authenticates against the authoritative backend and populates the
// identity session.
func (c *Controller) Login(ctx context.Context, email, password string) (Student, error) {
	email = core.CleanString(email, true /* lower */)
	c.setState(StateAuthenticating)

	if c.mode == ModeLocal {
		// offline login: match by email against the hydrated roster; the
		// password is not checked on-device.
		c.mu.Lock()
		defer c.mu.Unlock()
		for i := range c.roster {
			if c.roster[i].Email == email {
				rec := c.roster[i]
				c.session = &rec
				c.state = StateAuthenticatedLocal
				return rec, nil
			}
		}
		c.session = nil
		c.state = StateUnauthenticated
		return Student{}, ErrNotFound
	}

	h, err := c.remote.Authenticate(ctx, email, password)
	if err != nil {
		c.setState(StateUnauthenticated)
		return Student{}, err
	}

	rec := c.resolveProfile(ctx, h)
	c.mu.Lock()
	cp := rec
	c.session = &cp
	c.state = StateAuthenticatedRemoteUnsubscribed
	c.mu.Unlock()

	if rec.IsMentor() {
		if err := c.subscribe(ctx); err != nil {
			c.logger.Error(fmt.Sprintf("opening roster subscription: %v", err), err)
		}
	}
	return rec, nil
}

// resolveProfile finds the best available record for a freshly
// authenticated remote identity: the authoritative document first, then a
// cached roster profile, then a synthesized placeholder.
func (c *Controller) resolveProfile(ctx context.Context, h Handle) Student {
	fetchCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if rec, err := c.remote.Fetch(fetchCtx, h.ID); err == nil {
		return rec
	} else if !errors.Is(err, ErrNotFound) {
		c.logger.Warn(fmt.Sprintf("fetching student document %s: %v", h.ID, err))
	}

	c.mu.RLock()
	for i := range c.roster {
		if c.roster[i].Email == h.Email {
			rec := c.roster[i]
			c.mu.RUnlock()
			return rec
		}
	}
	c.mu.RUnlock()
	return placeholder(h)
}

// Register creates a new student record on the authoritative backend and
// signs it in. The mentor role is only constructible for the designated
// command email; the gate runs before any network call and no record is
// created on rejection.
func (c *Controller) Register(ctx context.Context, ns NewStudent) (Student, error) {
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	if ns.Role == RoleMentor && ns.Email != c.conf.AdminEmail {
		return Student{}, ErrRegistrationForbidden
	}
	c.setState(StateAuthenticating)

	var rec Student
	if c.mode == ModeLocal {
		c.mu.Lock()
		for i := range c.roster {
			if c.roster[i].Email == ns.Email {
				c.session = nil
				c.state = StateUnauthenticated
				c.mu.Unlock()
				return Student{}, ErrEmailExists
			}
		}
		rec = ns.provision(c.newID())
		c.roster = append(c.roster, rec)
		err := c.persistRosterLocked()
		cp := rec
		c.session = &cp
		c.state = StateAuthenticatedLocal
		c.mu.Unlock()
		if err != nil {
			return Student{}, pkgerrors.Wrap(err, "persisting roster")
		}
	} else {
		h, err := c.remote.Register(ctx, ns.Email, ns.Password)
		if err != nil {
			c.setState(StateUnauthenticated)
			return Student{}, err
		}
		rec = ns.provision(h.ID)
		// merge-write the document so mentors see the newcomer; a transport
		// failure is logged, the in-memory session stays authoritative.
		if err := c.remote.Upsert(ctx, rec.ID, docOf(rec)); err != nil {
			c.logger.Error(fmt.Sprintf("saving student document %s: %v", rec.ID, err), err)
		}
		c.mu.Lock()
		cp := rec
		c.session = &cp
		c.state = StateAuthenticatedRemoteUnsubscribed
		c.mu.Unlock()
		if rec.IsMentor() {
			if err := c.subscribe(ctx); err != nil {
				c.logger.Error(fmt.Sprintf("opening roster subscription: %v", err), err)
			}
		}
	}

	if rec.IsTeacher() {
		c.notifyPendingTeacher(rec)
	}
	return rec, nil
}

// UpdateStudent applies a mutation optimistically: the identity session
// reflects rec before, and regardless of, any persistence outcome.
func (c *Controller) UpdateStudent(ctx context.Context, rec Student) error {
	c.mu.Lock()
	cp := rec
	c.session = &cp

	if c.mode == ModeLocal {
		var found bool
		for i := range c.roster {
			if c.roster[i].ID == rec.ID {
				c.roster[i] = rec
				found = true
				break
			}
		}
		if !found {
			c.roster = append(c.roster, rec)
		}
		err := c.persistRosterLocked()
		c.mu.Unlock()
		if err != nil {
			return pkgerrors.Wrap(err, "persisting roster")
		}
		return nil
	}
	c.mu.Unlock()

	// fire-and-forget: unordered relative to other writes, never rolled
	// back; the next successful write reconciles.
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		c.upsertWithRetry(rec)
	}()
	return nil
}

func (c *Controller) upsertWithRetry(rec Student) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.remote.Upsert(ctx, rec.ID, docOf(rec)); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		c.logger.Error(fmt.Sprintf("persisting student document %s: %v", rec.ID, err), err)
	}
}

// Approve activates a pending teacher account identified by id. Role
// gating (mentor only) happens at the call boundary.
func (c *Controller) Approve(ctx context.Context, id string) (Student, error) {
	c.mu.Lock()
	idx := -1
	for i := range c.roster {
		if c.roster[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return Student{}, ErrNotFound
	}
	c.roster[idx].Status = StatusActive
	rec := c.roster[idx]

	if c.mode == ModeLocal {
		err := c.persistRosterLocked()
		c.mu.Unlock()
		if err != nil {
			return Student{}, pkgerrors.Wrap(err, "persisting roster")
		}
		return rec, nil
	}
	c.mu.Unlock()

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		c.upsertWithRetry(rec)
	}()
	return rec, nil
}

// Logout tears the session down. Idempotent: calling it twice produces the
// same terminal state as calling it once.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancelSub
	c.cancelSub = nil
	c.subActive = false
	c.session = nil
	c.state = StateUnauthenticated
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.mode == ModeRemote && c.remote != nil {
		if err := c.remote.EndSession(ctx); err != nil {
			return pkgerrors.Wrap(err, "ending remote session")
		}
	}
	return nil
}

// Close releases the subscription and waits for outstanding remote writes.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel := c.cancelSub
	c.cancelSub = nil
	c.subActive = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.writes.Wait()
}

// Logo returns the cached institution logo (data URI), in either mode.
func (c *Controller) Logo() (string, bool) { return c.local.Get(KeyAppLogo) }

func (c *Controller) SetLogo(dataURI string) error {
	return c.local.Set(KeyAppLogo, dataURI)
}

func (c *Controller) RemoveLogo() error { return c.local.Remove(KeyAppLogo) }

// WipeLocal clears all device-local data. The only way records are ever
// deleted in local mode.
func (c *Controller) WipeLocal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.local.Clear(); err != nil {
		return pkgerrors.Wrap(err, "clearing local store")
	}
	if c.mode == ModeLocal {
		c.roster = nil
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// subscribe opens the mentor roster subscription. The generation counter
// fences late emissions: a snapshot from a canceled subscription never
// mutates the roster.
func (c *Controller) subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelSub != nil {
		c.mu.Unlock()
		return nil
	}
	c.subGen++
	gen := c.subGen
	c.subActive = true
	c.mu.Unlock()

	cancel, err := c.remote.Subscribe(ctx, func(snapshot []Student) {
		c.applySnapshot(gen, snapshot)
	})
	if err != nil {
		c.mu.Lock()
		c.subActive = false
		c.mu.Unlock()
		return pkgerrors.Wrap(err, "subscribing to student collection")
	}

	c.mu.Lock()
	if !c.subActive || c.state != StateAuthenticatedRemoteUnsubscribed {
		// logged out while the subscription was being set up
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancelSub = cancel
	c.state = StateAuthenticatedRemoteSubscribed
	c.mu.Unlock()
	return nil
}

// applySnapshot fully replaces the roster with an emitted snapshot and
// reconciles the session record by id.
func (c *Controller) applySnapshot(gen uint64, snapshot []Student) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subActive || gen != c.subGen {
		return
	}
	roster := make([]Student, len(snapshot))
	copy(roster, snapshot)
	c.roster = roster
	if c.session != nil {
		for i := range roster {
			if roster[i].ID == c.session.ID {
				rec := roster[i]
				c.session = &rec
				break
			}
		}
	}
}

// persistRosterLocked rewrites the full roster under the roster key.
// Callers hold c.mu.
func (c *Controller) persistRosterLocked() error {
	b, err := json.Marshal(c.roster)
	if err != nil {
		return pkgerrors.Wrap(err, "marshaling roster")
	}
	return c.local.Set(KeyRoster, string(b))
}

func (c *Controller) notifyPendingTeacher(rec Student) {
	if c.mailSvc == nil {
		return
	}
	c.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: "Comando", Address: c.conf.AdminEmail}},
		Subject: "Novo instrutor aguardando aprovação",
		BodyStr: fmt.Sprintf("%s (%s) registrou-se como instrutor e aguarda aprovação.", rec.Name, rec.Email),
	})
}

// docOf renders a record as the merge-write document for the remote
// collection.
func docOf(rec Student) map[string]interface{} {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil
	}
	return doc
}
